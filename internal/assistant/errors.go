package assistant

import (
	"context"
	"errors"

	"github.com/insight-ai/insight-go/internal/capture"
)

// ErrInFlight is returned by Send while another send is still running.
var ErrInFlight = errors.New("assistant: send already in progress")

// Notification categories for failures raised before the backend is called.
const (
	CategoryCapture  = "capture-error"
	CategoryImage    = "image-error"
	CategoryPlayback = "playback-error"
)

const (
	captureDeniedMessage     = "Unable to capture the screen"
	captureNoResponseMessage = "Screen capture did not respond. Is the capture agent running?"
	imageMessage             = "Unable to process the screenshot"
	playbackMessage          = "Unable to play the audio reply"
)

// captureMessage returns the user-facing text for a capture failure.
func captureMessage(err error) string {
	var denied *capture.DeniedError
	switch {
	case errors.As(err, &denied) && denied.Reason != "":
		return captureDeniedMessage + ": " + denied.Reason
	case capture.IsNoResponse(err):
		return captureNoResponseMessage
	default:
		return captureDeniedMessage
	}
}

// cancelled reports whether err comes from the caller abandoning the send.
// Such failures are not shown to the user.
func cancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
