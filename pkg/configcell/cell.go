// Package configcell holds the single lock-free cell through which every
// request handler reads the gateway's current configuration snapshot.
package configcell

import (
	"sync/atomic"

	"github.com/lkarlslund/claude-gateway/pkg/gwconfig"
)

// Cell is a shared, concurrently-readable pointer to the current config
// snapshot. Load is O(1) and allocation-free; Store atomically publishes a
// new snapshot without blocking any in-flight reader. Go's garbage
// collector keeps a prior snapshot alive for as long as any goroutine still
// holds the pointer returned by Load, which is what the spec calls a
// "counted handle" in a runtime without manual refcounting.
type Cell struct {
	ptr atomic.Pointer[gwconfig.Snapshot]
}

// New builds a Cell already holding the given snapshot.
func New(initial *gwconfig.Snapshot) *Cell {
	c := &Cell{}
	c.ptr.Store(initial)
	return c
}

// Load returns the currently published snapshot. Safe for any number of
// concurrent callers.
func (c *Cell) Load() *gwconfig.Snapshot {
	return c.ptr.Load()
}

// Store atomically replaces the published snapshot. Readers that already
// loaded the old snapshot keep observing it; only subsequent Load calls see
// the new value.
func (c *Cell) Store(snap *gwconfig.Snapshot) {
	c.ptr.Store(snap)
}
