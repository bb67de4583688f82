// Package capture requests screenshots from the privileged capture agent and
// implements that agent.
package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrDenied indicates the capture agent refused or failed to take the screenshot.
	ErrDenied = errors.New("capture denied")
	// ErrNoResponse indicates no reply arrived: the channel closed or the request timed out.
	ErrNoResponse = errors.New("capture: no response")
)

// DeniedError carries the agent's reason for a failed capture.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	if e.Reason == "" {
		return ErrDenied.Error()
	}
	return fmt.Sprintf("%s: %s", ErrDenied, e.Reason)
}

func (e *DeniedError) Unwrap() error {
	return ErrDenied
}

// IsNoResponse reports whether err means the agent never answered.
func IsNoResponse(err error) bool {
	return errors.Is(err, ErrNoResponse)
}
