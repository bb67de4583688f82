package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-ai/insight-go/internal/backend"
	"github.com/insight-ai/insight-go/internal/capture"
	"github.com/insight-ai/insight-go/internal/flight"
	"github.com/insight-ai/insight-go/internal/imaging"
	"github.com/insight-ai/insight-go/internal/messages"
	"github.com/insight-ai/insight-go/internal/prefs"
	"github.com/insight-ai/insight-go/internal/schema"
	"github.com/insight-ai/insight-go/internal/session"
)

type mockCapturer struct {
	mu          sync.Mutex
	calls       int
	captureFunc func(ctx context.Context) (string, error)
}

func (m *mockCapturer) RequestCapture(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.captureFunc != nil {
		return m.captureFunc(ctx)
	}
	return "abc123", nil
}

func (m *mockCapturer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockReducer struct {
	reduceFunc func(ctx context.Context, encoded string) (string, error)
}

func (m *mockReducer) Reduce(ctx context.Context, encoded string) (string, error) {
	if m.reduceFunc != nil {
		return m.reduceFunc(ctx, encoded)
	}
	return "xyz789", nil
}

type mockBackend struct {
	completeFunc func(ctx context.Context, req *schema.CompletionRequest) (*schema.Message, error)
	messagesFunc func(ctx context.Context) ([]schema.Message, error)
	deleteFunc   func(ctx context.Context) error
	feedbackFunc func(ctx context.Context, id schema.MessageID, feedback schema.Feedback) error

	lastRequest *schema.CompletionRequest
}

func (m *mockBackend) Complete(ctx context.Context, req *schema.CompletionRequest) (*schema.Message, error) {
	m.lastRequest = req
	if m.completeFunc != nil {
		return m.completeFunc(ctx, req)
	}
	return nil, nil
}

func (m *mockBackend) Messages(ctx context.Context) ([]schema.Message, error) {
	if m.messagesFunc != nil {
		return m.messagesFunc(ctx)
	}
	return nil, nil
}

func (m *mockBackend) DeleteMessages(ctx context.Context) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx)
	}
	return nil
}

func (m *mockBackend) SetFeedback(ctx context.Context, id schema.MessageID, feedback schema.Feedback) error {
	if m.feedbackFunc != nil {
		return m.feedbackFunc(ctx, id, feedback)
	}
	return nil
}

type toggle struct {
	audio string
	id    schema.MessageID
}

type mockPlayer struct {
	toggles []toggle
	err     error
}

func (m *mockPlayer) Toggle(encodedAudio string, id schema.MessageID) error {
	m.toggles = append(m.toggles, toggle{audio: encodedAudio, id: id})
	return m.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Error(category, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, category+": "+message)
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type fixture struct {
	capture  *mockCapturer
	reducer  *mockReducer
	backend  *mockBackend
	store    *messages.Store
	player   *mockPlayer
	notifier *recordingNotifier
	metrics  *flight.Metrics
	prefs    prefs.Preferences
}

func newFixture() *fixture {
	f := &fixture{
		capture:  &mockCapturer{},
		reducer:  &mockReducer{},
		backend:  &mockBackend{},
		player:   &mockPlayer{},
		notifier: &recordingNotifier{},
		metrics:  flight.NewMetrics(),
		prefs:    prefs.Defaults(),
	}
	f.store = messages.NewStore(session.Static("token"), f.backend, zerolog.Nop())
	return f
}

func (f *fixture) orchestrator() *Orchestrator {
	return New(Deps{
		Capture:  f.capture,
		Reducer:  f.reducer,
		Backend:  f.backend,
		Store:    f.store,
		Player:   f.player,
		Prefs:    prefs.Static(f.prefs),
		Notifier: f.notifier,
		Metrics:  f.metrics,
	}, zerolog.Nop())
}

func TestSendWithAudio(t *testing.T) {
	f := newFixture()
	f.prefs.Muted = false
	f.backend.completeFunc = func(ctx context.Context, req *schema.CompletionRequest) (*schema.Message, error) {
		return &schema.Message{ID: "42", Type: schema.MessageTypeAssistant, Text: "It is a chart.", EncodedAudio: "WAV...="}, nil
	}

	reply, err := f.orchestrator().Send(context.Background(), "What is this?")
	require.NoError(t, err)
	require.NotNil(t, reply)

	req := f.backend.lastRequest
	require.NotNil(t, req)
	assert.Equal(t, "What is this?", req.Text)
	assert.Equal(t, "xyz789", req.EncodedImage)
	assert.True(t, req.GenerateAudio)
	require.NotNil(t, req.Voice)
	assert.Equal(t, schema.VoiceAlloy, req.Voice.Voice)

	list := f.store.List()
	require.Len(t, list, 2)
	assert.Equal(t, schema.MessageTypeUser, list[0].Type)
	assert.Equal(t, "What is this?", list[0].Text)
	assert.Empty(t, list[0].ID)
	assert.Equal(t, schema.MessageID("42"), list[1].ID)
	assert.Equal(t, schema.MessageTypeAssistant, list[1].Type)
	assert.Equal(t, "It is a chart.", list[1].Text)

	assert.Equal(t, []toggle{{audio: "WAV...=", id: "42"}}, f.player.toggles)
	assert.Empty(t, f.notifier.Events())
	assert.Equal(t, int64(1), f.metrics.Completed())
}

func TestSendMutedSkipsAudio(t *testing.T) {
	f := newFixture()
	f.backend.completeFunc = func(ctx context.Context, req *schema.CompletionRequest) (*schema.Message, error) {
		return &schema.Message{ID: "1", Type: schema.MessageTypeAssistant, Text: "ok", EncodedAudio: "WAV"}, nil
	}

	_, err := f.orchestrator().Send(context.Background(), "hi")
	require.NoError(t, err)

	assert.False(t, f.backend.lastRequest.GenerateAudio)
	assert.Empty(t, f.player.toggles)
	assert.Len(t, f.store.List(), 2)
}

func TestSendCaptureDenied(t *testing.T) {
	f := newFixture()
	f.capture.captureFunc = func(context.Context) (string, error) {
		return "", &capture.DeniedError{Reason: "denied"}
	}
	o := f.orchestrator()

	_, err := o.Send(context.Background(), "What is this?")
	require.Error(t, err)
	assert.ErrorIs(t, err, capture.ErrDenied)

	list := f.store.List()
	require.Len(t, list, 1)
	assert.Equal(t, "What is this?", list[0].Text)

	assert.Equal(t, []string{"capture-error: Unable to capture the screen: denied"}, f.notifier.Events())
	assert.Nil(t, f.backend.lastRequest)
	assert.False(t, o.Busy())
	assert.Equal(t, int64(1), f.metrics.Failed())
}

func TestSendCaptureNoResponse(t *testing.T) {
	f := newFixture()
	f.capture.captureFunc = func(context.Context) (string, error) {
		return "", capture.ErrNoResponse
	}

	_, err := f.orchestrator().Send(context.Background(), "hi")
	assert.ErrorIs(t, err, capture.ErrNoResponse)
	assert.Equal(t, []string{"capture-error: " + captureNoResponseMessage}, f.notifier.Events())
}

func TestSendCancelledCaptureIsNotReported(t *testing.T) {
	f := newFixture()
	f.capture.captureFunc = func(ctx context.Context) (string, error) {
		return "", context.Canceled
	}
	o := f.orchestrator()

	_, err := o.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.notifier.Events())
	assert.Nil(t, f.backend.lastRequest)
	assert.False(t, o.Busy())
}

func TestSendReconcilesQuestionID(t *testing.T) {
	f := newFixture()
	f.backend.completeFunc = func(ctx context.Context, req *schema.CompletionRequest) (*schema.Message, error) {
		return &schema.Message{ID: "42", Type: schema.MessageTypeAssistant, Text: "It is a chart."}, nil
	}
	f.backend.messagesFunc = func(ctx context.Context) ([]schema.Message, error) {
		return []schema.Message{
			{ID: "41", Type: schema.MessageTypeUser, Text: "What is this?"},
			{ID: "42", Type: schema.MessageTypeAssistant, Text: "It is a chart."},
		}, nil
	}

	_, err := f.orchestrator().Send(context.Background(), "What is this?")
	require.NoError(t, err)

	list := f.store.List()
	require.Len(t, list, 2)
	assert.Equal(t, schema.MessageID("41"), list[0].ID)
	assert.Equal(t, schema.MessageID("42"), list[1].ID)
	assert.Empty(t, f.notifier.Events())
}

func TestSendReducerFailure(t *testing.T) {
	f := newFixture()
	f.reducer.reduceFunc = func(context.Context, string) (string, error) {
		return "", imaging.ErrDecode
	}
	o := f.orchestrator()

	_, err := o.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, imaging.ErrDecode)
	assert.Equal(t, []string{"image-error: " + imageMessage}, f.notifier.Events())
	assert.Len(t, f.store.List(), 1)
	assert.Nil(t, f.backend.lastRequest)
	assert.False(t, o.Busy())
}

func TestSendCompletionFailureIsNotReportedTwice(t *testing.T) {
	f := newFixture()
	f.backend.completeFunc = func(ctx context.Context, req *schema.CompletionRequest) (*schema.Message, error) {
		return nil, &backend.APIError{Status: 429, Message: backend.RateLimitMessage}
	}
	o := f.orchestrator()

	_, err := o.Send(context.Background(), "hi")
	var apiErr *backend.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Empty(t, f.notifier.Events())
	assert.Len(t, f.store.List(), 1)
	assert.False(t, o.Busy())
}

func TestSendNoContent(t *testing.T) {
	f := newFixture()

	reply, err := f.orchestrator().Send(context.Background(), "hi")
	assert.NoError(t, err)
	assert.Nil(t, reply)
	assert.Len(t, f.store.List(), 1)
}

func TestSendIsSingleFlight(t *testing.T) {
	f := newFixture()
	started := make(chan struct{})
	release := make(chan struct{})
	f.capture.captureFunc = func(context.Context) (string, error) {
		close(started)
		<-release
		return "abc123", nil
	}
	o := f.orchestrator()

	done := make(chan error, 1)
	go func() {
		_, err := o.Send(context.Background(), "first")
		done <- err
	}()
	<-started

	assert.True(t, o.Busy())
	_, err := o.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Equal(t, 1, f.capture.Calls())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, o.Busy())

	// The rejected send left no trace in the store.
	for _, m := range f.store.List() {
		assert.NotEqual(t, "second", m.Text)
	}
	assert.Equal(t, int64(1), f.metrics.Rejected())
}

func TestSendPlaybackFailureIsReported(t *testing.T) {
	f := newFixture()
	f.prefs.Muted = false
	f.player.err = errors.New("no audio player")
	f.backend.completeFunc = func(ctx context.Context, req *schema.CompletionRequest) (*schema.Message, error) {
		return &schema.Message{ID: "5", Type: schema.MessageTypeAssistant, EncodedAudio: "WAV"}, nil
	}

	reply, err := f.orchestrator().Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.NotNil(t, reply)
	assert.Equal(t, []string{"playback-error: " + playbackMessage}, f.notifier.Events())
}

func TestDeleteHistory(t *testing.T) {
	f := newFixture()
	deleted := false
	f.backend.deleteFunc = func(context.Context) error {
		deleted = true
		return nil
	}
	f.store.Append(schema.Message{ID: "1", Type: schema.MessageTypeUser, Text: "old"})

	require.NoError(t, f.orchestrator().DeleteHistory(context.Background()))
	assert.True(t, deleted)
	assert.Empty(t, f.store.List())
}

func TestDeleteHistoryFailureKeepsStore(t *testing.T) {
	f := newFixture()
	f.backend.deleteFunc = func(context.Context) error { return backend.ErrNetwork }
	f.store.Append(schema.Message{ID: "1", Type: schema.MessageTypeUser})

	assert.ErrorIs(t, f.orchestrator().DeleteHistory(context.Background()), backend.ErrNetwork)
	assert.Len(t, f.store.List(), 1)
}

func TestFeedback(t *testing.T) {
	f := newFixture()
	var gotID schema.MessageID
	var gotFeedback schema.Feedback
	f.backend.feedbackFunc = func(ctx context.Context, id schema.MessageID, feedback schema.Feedback) error {
		gotID, gotFeedback = id, feedback
		return nil
	}
	f.store.Append(schema.Message{ID: "9", Type: schema.MessageTypeAssistant})

	require.NoError(t, f.orchestrator().Feedback(context.Background(), "9", schema.FeedbackNegative))
	assert.Equal(t, schema.MessageID("9"), gotID)
	assert.Equal(t, schema.FeedbackNegative, gotFeedback)

	m, ok := f.store.Get("9")
	require.True(t, ok)
	require.NotNil(t, m.Feedback)
	assert.Equal(t, schema.FeedbackNegative, *m.Feedback)
}
