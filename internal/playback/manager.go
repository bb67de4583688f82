// Package playback owns the single audio handle used to voice assistant
// replies.
package playback

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/insight-ai/insight-go/internal/prefs"
	"github.com/insight-ai/insight-go/internal/schema"
)

// ErrInvalidAudio indicates the encoded audio could not be decoded.
var ErrInvalidAudio = errors.New("playback: invalid audio")

// Handle is one running playback.
type Handle interface {
	// Stop halts playback. It is safe to call after playback has ended.
	Stop() error
	// Done is closed when playback ends, naturally or after Stop.
	Done() <-chan struct{}
}

// Engine starts audio output at the given rate.
type Engine interface {
	Start(audio []byte, rate float64) (Handle, error)
}

// State is either Idle (Playing false) or Playing(MessageID).
type State struct {
	Playing   bool
	MessageID schema.MessageID
}

// Manager is the Idle / Playing(id) state machine. At most one Handle exists
// at any time and callers only reach it through Toggle and Stop.
type Manager struct {
	engine Engine
	prefs  prefs.Reader
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	handle    Handle
	gen       uint64
	observers []func(State)
}

// NewManager creates an idle Manager.
func NewManager(engine Engine, reader prefs.Reader, logger zerolog.Logger) *Manager {
	return &Manager{
		engine: engine,
		prefs:  reader,
		logger: logger,
	}
}

// Toggle plays encodedAudio for message id, or stops it if id is the one
// already playing. Any other playback is stopped first.
func (m *Manager) Toggle(encodedAudio string, id schema.MessageID) error {
	m.mu.Lock()

	if m.state.Playing && m.state.MessageID == id {
		m.stopLocked()
		state := m.state
		m.mu.Unlock()
		m.logger.Debug().Str("id", id.String()).Msg("Playback stopped")
		m.publish(state)
		return nil
	}

	stopped := m.stopLocked()

	audio, err := base64.StdEncoding.DecodeString(encodedAudio)
	if err != nil || len(audio) == 0 {
		state := m.state
		m.mu.Unlock()
		if stopped {
			m.publish(state)
		}
		if err == nil {
			err = errors.New("empty audio")
		}
		return fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}

	rate := 1.0
	if m.prefs != nil {
		if speed := m.prefs.Load().Speed; speed > 0 {
			rate = speed
		}
	}

	handle, err := m.engine.Start(audio, rate)
	if err != nil {
		state := m.state
		m.mu.Unlock()
		if stopped {
			m.publish(state)
		}
		return fmt.Errorf("start playback: %w", err)
	}

	m.gen++
	gen := m.gen
	m.handle = handle
	m.state = State{Playing: true, MessageID: id}
	state := m.state
	m.mu.Unlock()

	m.logger.Debug().Str("id", id.String()).Float64("rate", rate).Msg("Playback started")
	go m.watch(gen, handle)
	m.publish(state)
	return nil
}

// Stop ends any playback and returns to Idle.
func (m *Manager) Stop() {
	m.mu.Lock()
	stopped := m.stopLocked()
	state := m.state
	m.mu.Unlock()

	if stopped {
		m.publish(state)
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsPlaying reports whether message id is the one currently playing.
func (m *Manager) IsPlaying(id schema.MessageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Playing && m.state.MessageID == id
}

// Watch registers fn to be called on every state change.
func (m *Manager) Watch(fn func(State)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// stopLocked disposes the current handle. The generation bump makes the
// handle's pending end-of-audio event stale.
func (m *Manager) stopLocked() bool {
	if m.handle == nil {
		return false
	}
	if err := m.handle.Stop(); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to stop playback")
	}
	m.handle = nil
	m.gen++
	m.state = State{}
	return true
}

func (m *Manager) watch(gen uint64, handle Handle) {
	<-handle.Done()

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	id := m.state.MessageID
	m.handle = nil
	m.state = State{}
	state := m.state
	m.mu.Unlock()

	m.logger.Debug().Str("id", id.String()).Msg("Playback finished")
	m.publish(state)
}

func (m *Manager) publish(state State) {
	m.mu.Lock()
	observers := make([]func(State), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}
