// Package queue runs submitted jobs on a fixed pool of workers with a bounded
// backlog. Callers block until their job has run.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/insight-ai/insight-go/internal/flight"
)

var (
	ErrQueueFull = errors.New("queue: full")
	ErrShutdown  = errors.New("queue: shutdown")
)

// Config sizes a Manager. Metrics is optional.
type Config struct {
	Workers  int
	MaxQueue int
	Metrics  *flight.Metrics
}

// Manager owns the worker pool.
type Manager struct {
	jobs     chan job
	wg       sync.WaitGroup
	inflight sync.WaitGroup

	// mu orders sends on jobs against the close in Shutdown.
	mu     sync.RWMutex
	closed chan struct{}
	done   bool

	workers int32
	active  atomic.Int32
	metrics *flight.Metrics
}

type job struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

// NewManager starts cfg.Workers workers (at least one).
func NewManager(cfg Config) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxQueue < 0 {
		cfg.MaxQueue = 0
	}

	m := &Manager{
		jobs:    make(chan job, cfg.MaxQueue),
		closed:  make(chan struct{}),
		workers: int32(cfg.Workers),
		metrics: cfg.Metrics,
	}

	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}

	return m
}

// Submit queues fn and waits for its result. It returns ErrQueueFull without
// waiting when the backlog is full.
func (m *Manager) Submit(ctx context.Context, fn func(context.Context) error) error {
	j := job{ctx: ctx, fn: fn, result: make(chan error, 1)}

	if err := m.enqueue(ctx, j); err != nil {
		if errors.Is(err, ErrQueueFull) {
			m.metrics.IncRejected()
		}
		return err
	}

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closed:
		// allow in-flight job to finish if already running
		select {
		case err := <-j.result:
			return err
		default:
			return ErrShutdown
		}
	}
}

func (m *Manager) enqueue(ctx context.Context, j job) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.done {
		return ErrShutdown
	}

	if cap(m.jobs) == 0 {
		if m.active.Load() >= m.workers {
			return ErrQueueFull
		}

		select {
		case m.jobs <- j:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case m.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending reports the number of jobs waiting for a worker.
func (m *Manager) Pending() int {
	return len(m.jobs)
}

// Active reports the number of jobs currently running.
func (m *Manager) Active() int {
	return int(m.active.Load())
}

// Shutdown stops accepting jobs and waits for running ones to finish.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.done {
		m.done = true
		close(m.closed)
		close(m.jobs)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		m.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()

	for j := range m.jobs {
		m.inflight.Add(1)
		m.active.Add(1)
		m.metrics.IncActive()

		err := m.run(j)
		m.metrics.Observe(err)
		j.result <- err

		m.metrics.DecActive()
		m.active.Add(-1)
		m.inflight.Done()
	}
}

func (m *Manager) run(j job) error {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	return j.fn(j.ctx)
}
