package flight

import "sync/atomic"

// Metrics counts guarded operations. All methods are safe on a nil receiver.
type Metrics struct {
	active    atomic.Int64
	rejected  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewMetrics constructs an empty Metrics collection.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncActive increments the active operation gauge.
func (m *Metrics) IncActive() {
	if m == nil {
		return
	}
	m.active.Add(1)
}

// DecActive decrements the active operation gauge.
func (m *Metrics) DecActive() {
	if m == nil {
		return
	}
	m.active.Add(-1)
}

// Active reports the number of operations currently running.
func (m *Metrics) Active() int64 {
	if m == nil {
		return 0
	}
	return m.active.Load()
}

// IncRejected counts an operation turned away because no slot was free.
func (m *Metrics) IncRejected() {
	if m == nil {
		return
	}
	m.rejected.Add(1)
}

// Rejected reports how many operations were turned away.
func (m *Metrics) Rejected() int64 {
	if m == nil {
		return 0
	}
	return m.rejected.Load()
}

// Observe records the outcome of a finished operation.
func (m *Metrics) Observe(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.failed.Add(1)
		return
	}
	m.completed.Add(1)
}

// Completed reports how many operations finished without error.
func (m *Metrics) Completed() int64 {
	if m == nil {
		return 0
	}
	return m.completed.Load()
}

// Failed reports how many operations finished with an error.
func (m *Metrics) Failed() int64 {
	if m == nil {
		return 0
	}
	return m.failed.Load()
}
