// Package notify delivers user-facing error notifications.
package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Notifier reports an error to the user. Reports sharing a category while a
// previous one is still on screen are dropped.
type Notifier interface {
	Error(category, message string)
}

// Sink displays a notification.
type Sink func(category, message string)

// Deduper forwards notifications to a sink, suppressing repeats of the same
// category within the display window.
type Deduper struct {
	sink   Sink
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	shown  map[string]time.Time
	logger zerolog.Logger
}

// NewDeduper constructs a Deduper. A non-positive window disables suppression.
func NewDeduper(sink Sink, window time.Duration, logger zerolog.Logger) *Deduper {
	return &Deduper{
		sink:   sink,
		window: window,
		now:    time.Now,
		shown:  make(map[string]time.Time),
		logger: logger,
	}
}

// Error reports message under category.
func (d *Deduper) Error(category, message string) {
	d.mu.Lock()
	now := d.now()
	if last, ok := d.shown[category]; ok && d.window > 0 && now.Sub(last) < d.window {
		d.mu.Unlock()
		d.logger.Debug().Str("category", category).Msg("notification suppressed")
		return
	}
	d.shown[category] = now
	d.mu.Unlock()

	if d.sink != nil {
		d.sink(category, message)
	}
}

// LogSink returns a Sink writing notifications as error-level log events.
func LogSink(logger zerolog.Logger) Sink {
	return func(category, message string) {
		logger.Error().Str("category", category).Msg(message)
	}
}

// Nop discards every notification.
type Nop struct{}

// Error implements Notifier.
func (Nop) Error(string, string) {}
