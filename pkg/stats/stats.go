// Package stats implements the process-lifetime request counters described
// in §4.J: a small set of atomic additive totals plus a derived waste
// ratio, deliberately lighter than the persistent, bucketed StatsStore this
// repo's teacher carries — there is no retention window or per-provider
// breakdown to track here, just the raw token accounting the optimization
// layer needs to prove it's saving anything.
package stats

import "sync/atomic"

// Kind identifies one of the additive counters Record can bump.
type Kind int

const (
	TotalRequests Kind = iota
	InputTokens
	HistoryTokens
	AssistantTokens
	SystemTokens
	CacheReadTokens
	CacheCreationTokens
	InterceptedRequests
)

// Registry holds every counter as an independent atomic.Int64, so
// concurrent requests never contend on a shared lock the way a mutex-
// guarded aggregate would.
type Registry struct {
	totalRequests       atomic.Int64
	inputTokens         atomic.Int64
	historyTokens       atomic.Int64
	assistantTokens     atomic.Int64
	systemTokens        atomic.Int64
	cacheReadTokens     atomic.Int64
	cacheCreationTokens atomic.Int64
	interceptedRequests atomic.Int64
}

func New() *Registry {
	return &Registry{}
}

// Record adds n to the named counter. n may be negative only for
// TotalRequests/InterceptedRequests corrections in tests; production
// callers only ever add non-negative token counts.
func (r *Registry) Record(kind Kind, n int64) {
	switch kind {
	case TotalRequests:
		r.totalRequests.Add(n)
	case InputTokens:
		r.inputTokens.Add(n)
	case HistoryTokens:
		r.historyTokens.Add(n)
	case AssistantTokens:
		r.assistantTokens.Add(n)
	case SystemTokens:
		r.systemTokens.Add(n)
	case CacheReadTokens:
		r.cacheReadTokens.Add(n)
	case CacheCreationTokens:
		r.cacheCreationTokens.Add(n)
	case InterceptedRequests:
		r.interceptedRequests.Add(n)
	}
}

// Snapshot is a point-in-time read of every counter, safe to serialize to
// JSON for the debug introspection endpoint.
type Snapshot struct {
	TotalRequests       int64   `json:"total_requests"`
	InterceptedRequests int64   `json:"intercepted_requests"`
	InputTokens         int64   `json:"input_tokens"`
	HistoryTokens       int64   `json:"history_tokens"`
	AssistantTokens     int64   `json:"assistant_tokens"`
	SystemTokens        int64   `json:"system_tokens"`
	CacheReadTokens     int64   `json:"cache_read_tokens"`
	CacheCreationTokens int64   `json:"cache_creation_tokens"`
	WasteRatio          float64 `json:"waste_ratio"`
}

// Snapshot reads every counter and derives the waste ratio: the share of
// accounted input tokens that came from replayed history rather than new
// user content.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		TotalRequests:       r.totalRequests.Load(),
		InterceptedRequests: r.interceptedRequests.Load(),
		InputTokens:         r.inputTokens.Load(),
		HistoryTokens:       r.historyTokens.Load(),
		AssistantTokens:     r.assistantTokens.Load(),
		SystemTokens:        r.systemTokens.Load(),
		CacheReadTokens:     r.cacheReadTokens.Load(),
		CacheCreationTokens: r.cacheCreationTokens.Load(),
	}
	denom := s.InputTokens + s.HistoryTokens
	if denom < 1 {
		denom = 1
	}
	s.WasteRatio = float64(s.HistoryTokens) / float64(denom)
	return s
}
