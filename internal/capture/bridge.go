package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/insight-ai/insight-go/internal/config"
	"github.com/insight-ai/insight-go/internal/schema"
)

// Bridge sends capture requests to the agent over a websocket. Every request
// carries its own id and is resolved only by the response echoing that id.
type Bridge struct {
	url     string
	header  http.Header
	timeout time.Duration
	dialer  *websocket.Dialer
	logger  zerolog.Logger

	mu      sync.Mutex
	link    *link
	pending map[string]chan schema.CaptureResponse
}

type link struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.closed)
		l.conn.Close()
	})
}

// NewBridge creates a Bridge. The connection is opened lazily on first use and
// re-opened after it drops.
func NewBridge(cfg *config.CaptureConfig, logger zerolog.Logger) *Bridge {
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Bridge{
		url:     cfg.URL,
		header:  header,
		timeout: timeout,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		logger:  logger,
		pending: make(map[string]chan schema.CaptureResponse),
	}
}

// RequestCapture asks the agent for a screenshot of the active view and
// returns it as base64 PNG. Failures are ErrDenied (as *DeniedError) or
// ErrNoResponse, except that a cancelled ctx yields ctx.Err().
func (b *Bridge) RequestCapture(ctx context.Context) (string, error) {
	l, err := b.connect(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", ErrNoResponse, err)
	}

	id := uuid.NewString()
	reply := make(chan schema.CaptureResponse, 1)

	b.mu.Lock()
	b.pending[id] = reply
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	req := schema.CaptureRequest{ID: id, Action: schema.ActionCaptureScreen}
	l.writeMu.Lock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(b.timeout))
	err = l.conn.WriteJSON(req)
	l.writeMu.Unlock()
	if err != nil {
		l.close()
		return "", fmt.Errorf("%w: %v", ErrNoResponse, err)
	}

	b.logger.Debug().Str("id", id).Msg("Capture requested")

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case resp := <-reply:
		if !resp.Success || resp.ImageData == "" {
			reason := resp.Error
			if reason == "" && resp.Success {
				reason = "empty image"
			}
			return "", &DeniedError{Reason: reason}
		}
		return resp.ImageData, nil
	case <-l.closed:
		return "", fmt.Errorf("%w: channel closed", ErrNoResponse)
	case <-timer.C:
		return "", fmt.Errorf("%w: timed out after %s", ErrNoResponse, b.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close shuts the connection. Waiting requests fail with ErrNoResponse.
func (b *Bridge) Close() error {
	b.mu.Lock()
	l := b.link
	b.link = nil
	b.mu.Unlock()

	if l != nil {
		l.close()
	}
	return nil
}

func (b *Bridge) connect(ctx context.Context) (*link, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.link != nil {
		select {
		case <-b.link.closed:
			b.link = nil
		default:
			return b.link, nil
		}
	}

	conn, _, err := b.dialer.DialContext(ctx, b.url, b.header)
	if err != nil {
		return nil, fmt.Errorf("dial capture agent: %w", err)
	}

	l := &link{conn: conn, closed: make(chan struct{})}
	b.link = l
	go b.readLoop(l)

	b.logger.Debug().Str("url", b.url).Msg("Connected to capture agent")
	return l, nil
}

func (b *Bridge) readLoop(l *link) {
	defer l.close()

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Warn().Err(err).Msg("Capture channel closed")
			}
			return
		}

		var resp schema.CaptureResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			b.logger.Warn().Err(err).Msg("Discarding malformed capture response")
			continue
		}

		b.mu.Lock()
		reply, ok := b.pending[resp.ID]
		if ok {
			delete(b.pending, resp.ID)
		}
		b.mu.Unlock()

		if !ok {
			b.logger.Debug().Str("id", resp.ID).Msg("Discarding stale capture response")
			continue
		}
		reply <- resp
	}
}
