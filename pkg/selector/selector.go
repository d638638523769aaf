// Package selector implements the two-tier round-robin load balancer that
// picks an upstream and then one of its keys on every forward-bound
// request.
package selector

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lkarlslund/claude-gateway/pkg/configcell"
)

// Pick is a materialized selection: owned copies of the strings so the
// caller never needs to hold the snapshot handle past this call.
type Pick struct {
	UpstreamIndex int
	Key           string
	Endpoint      string
	Model         string
	Dialect       string
}

// Selector advances one global upstream cursor and one independent cursor
// per upstream index. Cursor state lives outside the config snapshot and
// survives reloads; only its modulus (the current upstream/key counts)
// comes from whatever snapshot is live at selection time.
type Selector struct {
	cell           *configcell.Cell
	upstreamCursor atomic.Uint64

	mu         sync.Mutex
	keyCursors []*atomic.Uint64
}

// New builds a Selector reading upstream topology from cell.
func New(cell *configcell.Cell) *Selector {
	return &Selector{cell: cell}
}

// Pick performs one round-robin selection per §4.D: advance the upstream
// cursor, mod by the live upstream count; advance that upstream's own key
// cursor, mod by its live key count.
func (s *Selector) Pick() (Pick, error) {
	snap := s.cell.Load()
	n := len(snap.Upstreams)
	if n == 0 {
		return Pick{}, fmt.Errorf("selector: no upstreams configured")
	}

	u := s.upstreamCursor.Add(1) - 1
	i := int(u % uint64(n))
	upstream := snap.Upstreams[i]

	keyCursor := s.keyCursorFor(i)
	k := keyCursor.Add(1) - 1
	j := int(k % uint64(len(upstream.APIKeys)))

	return Pick{
		UpstreamIndex: i,
		Key:           upstream.APIKeys[j],
		Endpoint:      upstream.Endpoint,
		Model:         upstream.Model,
		Dialect:       upstream.Dialect,
	}, nil
}

// keyCursorFor returns the atomic cursor for upstream index i, growing the
// backing slice if this index hasn't been seen before. The lookup takes a
// short-lived lock on every call; the cursor increment (the Add itself)
// happens after the lock is released.
func (s *Selector) keyCursorFor(i int) *atomic.Uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.keyCursors) <= i {
		s.keyCursors = append(s.keyCursors, &atomic.Uint64{})
	}
	return s.keyCursors[i]
}
