// Package clientmetrics tracks per-connection operation counts for protocol
// clients. The active count feeds fewest-outstanding connection selection.
package clientmetrics

import (
	"sync"
	"time"
)

// ClientMetrics tracks connection and operation statistics for one protocol connection.
type ClientMetrics struct {
	mu          sync.Mutex
	connectTime time.Time
	active      int
	submitted   int64
	completed   int64
	errors      int64
	rejected    int64
}

// New creates a new ClientMetrics instance.
func New() *ClientMetrics {
	return &ClientMetrics{}
}

// MarkConnected records the connection time.
func (m *ClientMetrics) MarkConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectTime = time.Now()
}

// Reset clears the connection time (used when disconnecting).
func (m *ClientMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectTime = time.Time{}
}

// Begin marks an operation as submitted and in flight.
func (m *ClientMetrics) Begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active++
	m.submitted++
}

// End marks an in-flight operation as completed.
func (m *ClientMetrics) End(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active > 0 {
		m.active--
	}
	m.completed++
	if failed {
		m.errors++
	}
}

// Reject counts an operation refused at submission time.
func (m *ClientMetrics) Reject() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
	m.errors++
}

// ActiveOperations returns the number of operations currently in flight.
func (m *ClientMetrics) ActiveOperations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// ConnectionDuration returns the duration since connection was established.
// Returns 0 if not connected.
func (m *ClientMetrics) ConnectionDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectTime.IsZero() {
		return 0
	}
	return time.Since(m.connectTime)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	ConnectionDuration time.Duration
	Active             int
	Submitted          int64
	Completed          int64
	Errors             int64
	Rejected           int64
}

// Snapshot returns a consistent snapshot of all metrics.
func (m *ClientMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := time.Duration(0)
	if !m.connectTime.IsZero() {
		duration = time.Since(m.connectTime)
	}

	return Snapshot{
		ConnectionDuration: duration,
		Active:             m.active,
		Submitted:          m.submitted,
		Completed:          m.completed,
		Errors:             m.errors,
		Rejected:           m.rejected,
	}
}
