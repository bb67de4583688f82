// Package messages holds the in-memory conversation log.
package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/insight-ai/insight-go/internal/schema"
	"github.com/insight-ai/insight-go/internal/session"
)

var (
	// ErrNotFound is returned when no entry matches the given key or id.
	ErrNotFound = errors.New("message not found")

	// ErrDuplicateID is returned when another entry already owns the id.
	ErrDuplicateID = errors.New("message id already present")
)

// History fetches the server-side conversation.
type History interface {
	Messages(ctx context.Context) ([]schema.Message, error)
}

// Observer is called with a snapshot of the list after every change.
type Observer func([]schema.Message)

// Store is the ordered message list. No two entries share a non-empty ID.
type Store struct {
	session session.Source
	history History
	logger  zerolog.Logger

	mu        sync.RWMutex
	entries   []schema.Message
	observers []Observer
}

// NewStore creates an empty Store.
func NewStore(sess session.Source, history History, logger zerolog.Logger) *Store {
	return &Store{
		session: sess,
		history: history,
		logger:  logger,
	}
}

// Append adds m at the end of the list and returns its local key. If m has an
// ID that is already present the list is left untouched and added is false.
func (s *Store) Append(m schema.Message) (localKey string, added bool) {
	s.mu.Lock()
	if m.ID != "" {
		if i := s.indexByID(m.ID); i >= 0 {
			key := s.entries[i].LocalKey
			s.mu.Unlock()
			s.logger.Debug().Str("id", m.ID.String()).Msg("Skipping duplicate message")
			return key, false
		}
	}
	m.LocalKey = uuid.NewString()
	s.entries = append(s.entries, m)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snapshot)
	return m.LocalKey, true
}

// Refresh replaces the list with the server history. Without an authenticated
// session the list is cleared instead. On fetch failure the current list is
// kept and the error returned.
func (s *Store) Refresh(ctx context.Context) error {
	if s.session == nil || !s.session.Authenticated() {
		s.Clear()
		return nil
	}

	fetched, err := s.history.Messages(ctx)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	entries := make([]schema.Message, 0, len(fetched))
	seen := make(map[schema.MessageID]struct{}, len(fetched))
	for _, m := range fetched {
		if m.ID != "" {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		m.LocalKey = uuid.NewString()
		entries = append(entries, m)
	}

	s.mu.Lock()
	s.entries = entries
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug().Int("count", len(entries)).Msg("History refreshed")
	s.publish(snapshot)
	return nil
}

// Clear empties the list.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()

	s.publish(nil)
}

// List returns a copy of the current entries in display order.
func (s *Store) List() []schema.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Get returns the entry with the given id.
func (s *Store) Get(id schema.MessageID) (schema.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexByID(id); i >= 0 {
		return s.entries[i], true
	}
	return schema.Message{}, false
}

// Reconcile fills in the server id of the user entry created under localKey.
// The server stores a question immediately before its reply, so the id is
// taken from the user message that precedes replyID in the server history.
// ErrNotFound means the history holds no matching question.
func (s *Store) Reconcile(ctx context.Context, localKey string, replyID schema.MessageID) error {
	if replyID == "" || s.session == nil || !s.session.Authenticated() {
		return nil
	}

	s.mu.RLock()
	idx := s.indexByKey(localKey)
	var local schema.Message
	if idx >= 0 {
		local = s.entries[idx]
	}
	s.mu.RUnlock()

	if idx < 0 {
		return ErrNotFound
	}
	if local.ID != "" {
		return nil
	}

	history, err := s.history.Messages(ctx)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	for i := 1; i < len(history); i++ {
		if history[i].ID != replyID {
			continue
		}
		prev := history[i-1]
		if prev.Type != schema.MessageTypeUser || prev.ID == "" ||
			strings.TrimSpace(prev.Text) != strings.TrimSpace(local.Text) {
			break
		}
		return s.assignID(localKey, prev.ID)
	}
	return ErrNotFound
}

// assignID fills in the server id of the entry created under localKey.
func (s *Store) assignID(localKey string, id schema.MessageID) error {
	s.mu.Lock()
	idx := s.indexByKey(localKey)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	if s.entries[idx].ID == id {
		s.mu.Unlock()
		return nil
	}
	if id != "" && s.indexByID(id) >= 0 {
		s.mu.Unlock()
		return ErrDuplicateID
	}
	s.entries[idx].ID = id
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snapshot)
	return nil
}

// SetFeedback records feedback on the entry with the given id.
func (s *Store) SetFeedback(id schema.MessageID, feedback schema.Feedback) error {
	s.mu.Lock()
	i := s.indexByID(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	fb := feedback
	s.entries[i].Feedback = &fb
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snapshot)
	return nil
}

// Watch registers fn to be called after every change.
func (s *Store) Watch(fn Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Store) indexByID(id schema.MessageID) int {
	if id == "" {
		return -1
	}
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexByKey(localKey string) int {
	for i := range s.entries {
		if s.entries[i].LocalKey == localKey {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []schema.Message {
	out := make([]schema.Message, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) publish(snapshot []schema.Message) {
	s.mu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}
