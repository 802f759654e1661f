package authsession

import "sync/atomic"

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID uint8

const (
	// MetricLoginSuccess counts successful Login calls.
	MetricLoginSuccess MetricID = iota
	// MetricLogout counts Logout calls.
	MetricLogout
	// MetricImpersonationStarted counts first-target impersonation transitions.
	MetricImpersonationStarted
	// MetricImpersonationSwitched counts target switches while already impersonating.
	MetricImpersonationSwitched
	// MetricImpersonationStopped counts StopImpersonating transitions.
	MetricImpersonationStopped
	// MetricRefreshSuccess counts refresh results committed to state.
	MetricRefreshSuccess
	// MetricRefreshDiscarded counts refresh results rejected as stale.
	MetricRefreshDiscarded
	// MetricRefreshCancelled counts refresh requests actively cancelled.
	MetricRefreshCancelled
	// MetricRefreshUnauthorized counts refreshes rejected with 401/419.
	MetricRefreshUnauthorized
	// MetricRefreshFailure counts absorbed transport or persistence failures.
	MetricRefreshFailure
	// MetricStateCorrupt counts corrupt-cache recoveries at startup.
	MetricStateCorrupt
	// MetricNotifyDropped counts state notifications dropped on full buffers.
	MetricNotifyDropped

	metricIDCount
)

// Metrics holds atomic counters for session manager events. When disabled,
// all operations are no-ops.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// NewMetrics creates a [Metrics] instance configured by the given
// [MetricsConfig].
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments the counter identified by id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Get returns the current value of a single counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || !m.enabled || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() map[MetricID]uint64 {
	out := make(map[MetricID]uint64, metricIDCount)
	if m == nil || !m.enabled {
		return out
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		out[id] = m.counters[id].Load()
	}
	return out
}
