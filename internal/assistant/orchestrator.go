// Package assistant composes capture, image reduction, completion, the message
// store and playback into the single "ask" operation.
package assistant

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/insight-ai/insight-go/internal/backend"
	"github.com/insight-ai/insight-go/internal/flight"
	"github.com/insight-ai/insight-go/internal/messages"
	"github.com/insight-ai/insight-go/internal/notify"
	"github.com/insight-ai/insight-go/internal/prefs"
	"github.com/insight-ai/insight-go/internal/schema"
)

// Capturer obtains a screenshot of the active view as base64 PNG.
type Capturer interface {
	RequestCapture(ctx context.Context) (string, error)
}

// Reducer shrinks a base64 image before upload.
type Reducer interface {
	Reduce(ctx context.Context, encoded string) (string, error)
}

// Player toggles audio playback for a message.
type Player interface {
	Toggle(encodedAudio string, id schema.MessageID) error
}

// Deps are the collaborators of an Orchestrator. Metrics is optional.
type Deps struct {
	Capture  Capturer
	Reducer  Reducer
	Backend  backend.Backend
	Store    *messages.Store
	Player   Player
	Prefs    prefs.Reader
	Notifier notify.Notifier
	Metrics  *flight.Metrics
}

// Orchestrator runs sends one at a time. A send requested while another is in
// flight is rejected, not queued.
type Orchestrator struct {
	deps   Deps
	guard  *flight.Guard
	logger zerolog.Logger
}

// New creates an Orchestrator.
func New(deps Deps, logger zerolog.Logger) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	return &Orchestrator{
		deps:   deps,
		guard:  flight.NewGuard(flight.GuardConfig{MaxConcurrent: 1, Metrics: deps.Metrics}),
		logger: logger,
	}
}

// Busy reports whether a send is in flight.
func (o *Orchestrator) Busy() bool {
	return o.guard.Busy()
}

// Send asks the assistant about the active view. The user's text is appended
// to the store immediately and kept even when a later step fails. Once the
// reply is stored the question entry receives its server id. Every failure
// except cancellation has been reported through the notifier by the time Send
// returns; the returned error is for the caller's bookkeeping only. A nil
// message with a nil error means the backend answered without content.
func (o *Orchestrator) Send(ctx context.Context, text string) (*schema.Message, error) {
	release, err := o.guard.TryAcquire()
	if err != nil {
		o.logger.Debug().Msg("Send ignored, another send is in flight")
		return nil, ErrInFlight
	}
	defer release()

	msg, err := o.send(ctx, text)
	o.deps.Metrics.Observe(err)
	return msg, err
}

func (o *Orchestrator) send(ctx context.Context, text string) (*schema.Message, error) {
	localKey, _ := o.deps.Store.Append(schema.Message{Type: schema.MessageTypeUser, Text: text})

	image, err := o.deps.Capture.RequestCapture(ctx)
	if err != nil {
		if cancelled(err) {
			return nil, fmt.Errorf("capture: %w", err)
		}
		o.logger.Warn().Err(err).Msg("Screen capture failed")
		o.deps.Notifier.Error(CategoryCapture, captureMessage(err))
		return nil, fmt.Errorf("capture: %w", err)
	}

	reduced, err := o.deps.Reducer.Reduce(ctx, image)
	if err != nil {
		if cancelled(err) {
			return nil, fmt.Errorf("reduce image: %w", err)
		}
		o.logger.Warn().Err(err).Msg("Image reduction failed")
		o.deps.Notifier.Error(CategoryImage, imageMessage)
		return nil, fmt.Errorf("reduce image: %w", err)
	}

	p := o.deps.Prefs.Load()
	voice := p.VoiceOptions()
	req := &schema.CompletionRequest{
		Text:          text,
		EncodedImage:  reduced,
		GenerateAudio: !p.Muted,
		Voice:         &voice,
	}

	// The client reports its own failures to the notifier.
	reply, err := o.deps.Backend.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	if reply == nil {
		o.logger.Debug().Msg("Completion returned no content")
		return nil, nil
	}

	o.deps.Store.Append(*reply)

	if reply.HasAudio() && !o.deps.Prefs.Load().Muted && o.deps.Player != nil {
		if err := o.deps.Player.Toggle(reply.EncodedAudio, reply.ID); err != nil {
			o.logger.Warn().Err(err).Str("id", reply.ID.String()).Msg("Playback failed")
			o.deps.Notifier.Error(CategoryPlayback, playbackMessage)
		}
	}

	if err := o.deps.Store.Reconcile(ctx, localKey, reply.ID); err != nil {
		o.logger.Debug().Err(err).Msg("Question id not reconciled")
	}

	return reply, nil
}

// DeleteHistory clears the server-side conversation and reloads the store.
func (o *Orchestrator) DeleteHistory(ctx context.Context) error {
	if err := o.deps.Backend.DeleteMessages(ctx); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return o.deps.Store.Refresh(ctx)
}

// Feedback records the user's rating of a message on the server and then in
// the store.
func (o *Orchestrator) Feedback(ctx context.Context, id schema.MessageID, feedback schema.Feedback) error {
	if err := o.deps.Backend.SetFeedback(ctx, id, feedback); err != nil {
		return fmt.Errorf("set feedback: %w", err)
	}
	if err := o.deps.Store.SetFeedback(id, feedback); err != nil {
		o.logger.Debug().Err(err).Str("id", id.String()).Msg("Feedback target not in local history")
	}
	return nil
}
