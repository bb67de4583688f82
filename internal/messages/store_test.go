package messages

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-ai/insight-go/internal/schema"
	"github.com/insight-ai/insight-go/internal/session"
)

type mockHistory struct {
	messagesFunc func(ctx context.Context) ([]schema.Message, error)
	calls        int
}

func (m *mockHistory) Messages(ctx context.Context) ([]schema.Message, error) {
	m.calls++
	if m.messagesFunc != nil {
		return m.messagesFunc(ctx)
	}
	return nil, nil
}

func newTestStore(sess session.Source, history History) *Store {
	return NewStore(sess, history, zerolog.Nop())
}

func TestAppendIsIdempotentByID(t *testing.T) {
	s := newTestStore(session.Static("t"), &mockHistory{})

	key1, added := s.Append(schema.Message{ID: "42", Type: schema.MessageTypeAssistant, Text: "first"})
	assert.True(t, added)
	key2, added := s.Append(schema.Message{ID: "42", Type: schema.MessageTypeAssistant, Text: "retry"})
	assert.False(t, added)

	assert.Equal(t, key1, key2)
	require.Len(t, s.List(), 1)
	assert.Equal(t, "first", s.List()[0].Text)
}

func TestAppendWithoutIDAlwaysInserts(t *testing.T) {
	s := newTestStore(session.Static("t"), &mockHistory{})

	s.Append(schema.Message{Type: schema.MessageTypeUser, Text: "a"})
	s.Append(schema.Message{Type: schema.MessageTypeUser, Text: "a"})
	s.Append(schema.Message{ID: "1", Type: schema.MessageTypeAssistant})

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, schema.MessageID("1"), list[2].ID)
	assert.NotEqual(t, list[0].LocalKey, list[1].LocalKey)
}

func TestAppendNeverDuplicatesIDs(t *testing.T) {
	s := newTestStore(session.Static("t"), &mockHistory{})

	ids := []schema.MessageID{"1", "2", "", "1", "3", "2", "", "3", "1"}
	for _, id := range ids {
		s.Append(schema.Message{ID: id, Type: schema.MessageTypeAssistant})
	}

	seen := map[schema.MessageID]int{}
	for _, m := range s.List() {
		if m.ID != "" {
			seen[m.ID]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %s", id)
	}
	assert.Len(t, s.List(), 5)
}

func TestRefreshWithoutSessionClears(t *testing.T) {
	history := &mockHistory{}
	s := newTestStore(session.Static(""), history)
	s.Append(schema.Message{Type: schema.MessageTypeUser, Text: "hi"})

	require.NoError(t, s.Refresh(context.Background()))
	assert.Empty(t, s.List())
	assert.Equal(t, 0, history.calls)
}

func TestRefreshReplacesContents(t *testing.T) {
	history := &mockHistory{
		messagesFunc: func(ctx context.Context) ([]schema.Message, error) {
			return []schema.Message{
				{ID: "1", Type: schema.MessageTypeUser, Text: "q"},
				{ID: "2", Type: schema.MessageTypeAssistant, Text: "a"},
				{ID: "2", Type: schema.MessageTypeAssistant, Text: "dup"},
			}, nil
		},
	}
	s := newTestStore(session.Static("t"), history)
	s.Append(schema.Message{Type: schema.MessageTypeUser, Text: "old"})

	var observed [][]schema.Message
	s.Watch(func(list []schema.Message) { observed = append(observed, list) })

	require.NoError(t, s.Refresh(context.Background()))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "q", list[0].Text)
	assert.Equal(t, "a", list[1].Text)
	assert.NotEmpty(t, list[0].LocalKey)

	require.Len(t, observed, 1)
	assert.Len(t, observed[0], 2)
}

func TestRefreshFailureKeepsList(t *testing.T) {
	history := &mockHistory{
		messagesFunc: func(ctx context.Context) ([]schema.Message, error) {
			return nil, errors.New("boom")
		},
	}
	s := newTestStore(session.Static("t"), history)
	s.Append(schema.Message{Type: schema.MessageTypeUser, Text: "keep"})

	err := s.Refresh(context.Background())
	assert.Error(t, err)
	require.Len(t, s.List(), 1)
	assert.Equal(t, "keep", s.List()[0].Text)
}

func TestClear(t *testing.T) {
	s := newTestStore(session.Static("t"), &mockHistory{})
	s.Append(schema.Message{ID: "1"})
	s.Clear()

	assert.Empty(t, s.List())
	_, added := s.Append(schema.Message{ID: "1"})
	assert.True(t, added)
}

func TestAssignID(t *testing.T) {
	s := newTestStore(session.Static("t"), &mockHistory{})

	key, _ := s.Append(schema.Message{Type: schema.MessageTypeUser, Text: "hi"})
	s.Append(schema.Message{ID: "7", Type: schema.MessageTypeAssistant})

	require.NoError(t, s.assignID(key, "6"))
	m, ok := s.Get("6")
	require.True(t, ok)
	assert.Equal(t, "hi", m.Text)

	// A retried append of the reconciled message is now a no-op.
	_, added := s.Append(schema.Message{ID: "6", Type: schema.MessageTypeUser, Text: "hi"})
	assert.False(t, added)

	assert.ErrorIs(t, s.assignID(key, "7"), ErrDuplicateID)
	assert.ErrorIs(t, s.assignID("missing", "8"), ErrNotFound)
}

func serverHistory() []schema.Message {
	return []schema.Message{
		{ID: "40", Type: schema.MessageTypeAssistant, Text: "earlier"},
		{ID: "41", Type: schema.MessageTypeUser, Text: "What is this? "},
		{ID: "42", Type: schema.MessageTypeAssistant, Text: "It is a chart."},
	}
}

func TestReconcileFillsUserID(t *testing.T) {
	history := &mockHistory{
		messagesFunc: func(ctx context.Context) ([]schema.Message, error) { return serverHistory(), nil },
	}
	s := newTestStore(session.Static("t"), history)

	key, _ := s.Append(schema.Message{Type: schema.MessageTypeUser, Text: "What is this?"})
	s.Append(schema.Message{ID: "42", Type: schema.MessageTypeAssistant, Text: "It is a chart."})

	var observed [][]schema.Message
	s.Watch(func(list []schema.Message) { observed = append(observed, list) })

	require.NoError(t, s.Reconcile(context.Background(), key, "42"))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, schema.MessageID("41"), list[0].ID)
	assert.Equal(t, key, list[0].LocalKey)
	require.Len(t, observed, 1)
	assert.Equal(t, schema.MessageID("41"), observed[0][0].ID)

	// Already reconciled entries are not fetched again.
	require.NoError(t, s.Reconcile(context.Background(), key, "42"))
	assert.Equal(t, 1, history.calls)
}

func TestReconcileWithoutMatch(t *testing.T) {
	history := &mockHistory{
		messagesFunc: func(ctx context.Context) ([]schema.Message, error) { return serverHistory(), nil },
	}
	s := newTestStore(session.Static("t"), history)

	key, _ := s.Append(schema.Message{Type: schema.MessageTypeUser, Text: "something else"})

	assert.ErrorIs(t, s.Reconcile(context.Background(), key, "42"), ErrNotFound)
	assert.ErrorIs(t, s.Reconcile(context.Background(), key, "99"), ErrNotFound)
	assert.ErrorIs(t, s.Reconcile(context.Background(), "missing", "42"), ErrNotFound)
	assert.Empty(t, s.List()[0].ID)
}

func TestReconcileSkipsWithoutSessionOrReply(t *testing.T) {
	history := &mockHistory{}
	s := newTestStore(session.Static(""), history)
	key, _ := s.Append(schema.Message{Type: schema.MessageTypeUser, Text: "hi"})

	assert.NoError(t, s.Reconcile(context.Background(), key, "42"))

	s = newTestStore(session.Static("t"), history)
	key, _ = s.Append(schema.Message{Type: schema.MessageTypeUser, Text: "hi"})
	assert.NoError(t, s.Reconcile(context.Background(), key, ""))

	assert.Equal(t, 0, history.calls)
}

func TestReconcileFetchFailure(t *testing.T) {
	history := &mockHistory{
		messagesFunc: func(ctx context.Context) ([]schema.Message, error) { return nil, errors.New("boom") },
	}
	s := newTestStore(session.Static("t"), history)
	key, _ := s.Append(schema.Message{Type: schema.MessageTypeUser, Text: "hi"})

	assert.Error(t, s.Reconcile(context.Background(), key, "42"))
	assert.Empty(t, s.List()[0].ID)
}

func TestSetFeedback(t *testing.T) {
	s := newTestStore(session.Static("t"), &mockHistory{})
	s.Append(schema.Message{ID: "1", Type: schema.MessageTypeAssistant})

	require.NoError(t, s.SetFeedback("1", schema.FeedbackPositive))
	m, _ := s.Get("1")
	require.NotNil(t, m.Feedback)
	assert.Equal(t, schema.FeedbackPositive, *m.Feedback)

	assert.ErrorIs(t, s.SetFeedback("2", schema.FeedbackNegative), ErrNotFound)
}

func TestListIsACopy(t *testing.T) {
	s := newTestStore(session.Static("t"), &mockHistory{})
	s.Append(schema.Message{ID: "1", Text: "orig"})

	list := s.List()
	list[0].Text = "changed"

	assert.Equal(t, "orig", s.List()[0].Text)
}
