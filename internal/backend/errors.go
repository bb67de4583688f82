package backend

import (
	"errors"
	"fmt"
)

// ErrNetwork indicates the backend could not be reached.
var ErrNetwork = errors.New("network error")

// RateLimitMessage replaces whatever detail the backend sends with a 429.
const RateLimitMessage = "You are sending too many actions in a short period. Please try again later."

// NetworkMessage is shown to the user when the backend is unreachable.
const NetworkMessage = "Please check your network connection"

const genericMessage = "An error has occurred, please check your input."

// Notification categories used for deduplication.
const (
	CategoryAPI     = "api-error"
	CategoryNetwork = "network-error"
)

// APIError represents a non-success response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}
