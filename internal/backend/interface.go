package backend

import (
	"context"

	"github.com/insight-ai/insight-go/internal/schema"
)

// Backend defines the interface for communicating with the assistant server.
type Backend interface {
	Complete(ctx context.Context, req *schema.CompletionRequest) (*schema.Message, error)
	Messages(ctx context.Context) ([]schema.Message, error)
	DeleteMessages(ctx context.Context) error
	SetFeedback(ctx context.Context, id schema.MessageID, feedback schema.Feedback) error
}

// TokenSource supplies the bearer token for backend requests.
type TokenSource interface {
	Token() string
}

// Notifier receives user-facing error reports.
type Notifier interface {
	Error(category, message string)
}

// Ensure Client implements Backend.
var _ Backend = (*Client)(nil)
