package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/insight-ai/insight-go/internal/queue"
	"github.com/insight-ai/insight-go/internal/schema"
)

const (
	busyReason          = "capture busy"
	unknownActionReason = "unknown action"
	invalidFrameReason  = "invalid request"

	writeTimeout = 10 * time.Second
	maxFrameSize = 4096
)

// Screenshotter takes a screenshot of the active view and returns PNG bytes.
type Screenshotter interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Agent answers capture requests on the privileged side. Screenshots run one
// at a time on a queue.Manager; requests beyond its backlog are refused.
type Agent struct {
	shooter Screenshotter
	queue   *queue.Manager
	timeout time.Duration
	logger  zerolog.Logger
}

// NewAgent creates an Agent. timeout bounds a single screenshot.
func NewAgent(shooter Screenshotter, q *queue.Manager, timeout time.Duration, logger zerolog.Logger) *Agent {
	return &Agent{
		shooter: shooter,
		queue:   q,
		timeout: timeout,
		logger:  logger,
	}
}

// Handle answers a single request. The response always echoes req.ID.
func (a *Agent) Handle(ctx context.Context, req schema.CaptureRequest) schema.CaptureResponse {
	resp := schema.CaptureResponse{ID: req.ID}

	if req.Action != schema.ActionCaptureScreen {
		resp.Error = unknownActionReason
		return resp
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var png []byte
	err := a.queue.Submit(ctx, func(ctx context.Context) error {
		var err error
		png, err = a.shooter.Capture(ctx)
		return err
	})

	switch {
	case err == nil:
		resp.Success = true
		resp.ImageData = base64.StdEncoding.EncodeToString(png)
	case errors.Is(err, queue.ErrQueueFull):
		resp.Error = busyReason
	default:
		var denied *DeniedError
		if errors.As(err, &denied) {
			resp.Error = denied.Reason
		} else {
			resp.Error = err.Error()
		}
		a.logger.Warn().Err(err).Str("id", req.ID).Msg("Capture failed")
	}

	return resp
}

// Serve reads request frames from conn until it closes. Each request is handled
// concurrently so a busy queue can refuse overlapping requests.
func (a *Agent) Serve(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	defer wg.Wait()
	defer conn.Close()
	defer cancel()

	// The read loop only wakes on a connection error, so a cancelled ctx
	// closes the connection to end the session.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "agent shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	reply := func(resp schema.CaptureResponse) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(resp); err != nil {
			a.logger.Debug().Err(err).Str("id", resp.ID).Msg("Failed to write capture response")
		}
	}

	conn.SetReadLimit(maxFrameSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Warn().Err(err).Msg("Capture client disconnected")
			}
			return
		}

		var req schema.CaptureRequest
		if err := json.Unmarshal(data, &req); err != nil {
			reply(schema.CaptureResponse{Error: invalidFrameReason})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			reply(a.Handle(ctx, req))
		}()
	}
}
