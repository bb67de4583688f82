// Package flight limits how many operations of one kind run at a time.
package flight

import (
	"errors"
	"sync"
)

// ErrBusy indicates every slot is taken.
var ErrBusy = errors.New("flight: operation already in progress")

// Guard is a slot pool. With a single slot it is a single-flight guard that
// rejects new work while one operation is running instead of queuing it.
type Guard struct {
	slots   chan struct{}
	metrics *Metrics
}

// GuardConfig controls how a Guard gates concurrent access.
type GuardConfig struct {
	MaxConcurrent int
	Metrics       *Metrics
}

// NewGuard constructs a Guard. MaxConcurrent defaults to 1.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Guard{
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		metrics: cfg.Metrics,
	}
}

// TryAcquire reserves a slot without waiting. The returned release function
// may be called more than once; only the first call frees the slot.
func (g *Guard) TryAcquire() (func(), error) {
	select {
	case g.slots <- struct{}{}:
	default:
		g.metrics.IncRejected()
		return nil, ErrBusy
	}

	g.metrics.IncActive()

	var once sync.Once
	return func() {
		once.Do(func() {
			<-g.slots
			g.metrics.DecActive()
		})
	}, nil
}

// Busy reports whether every slot is currently taken.
func (g *Guard) Busy() bool {
	return len(g.slots) == cap(g.slots)
}
