package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/insight-ai/insight-go/internal/config"
	"github.com/insight-ai/insight-go/internal/schema"
)

// Client handles communication with the assistant backend.
//
// Every failure is reported to the notifier before it is returned, so callers
// must not report client errors a second time.
type Client struct {
	httpClient *http.Client
	endpoint   string
	tokens     TokenSource
	notifier   Notifier
	logger     zerolog.Logger
}

// NewClient creates a new backend client with connection pooling.
func NewClient(cfg *config.BackendConfig, tokens TokenSource, notifier Notifier, logger zerolog.Logger) *Client {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 16
	}

	transport := &http.Transport{
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		endpoint: strings.TrimRight(cfg.URL, "/"),
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
	}
}

// Complete uploads a question with an optional screenshot and returns the
// assistant's reply. A nil message with a nil error means the backend answered
// with no content.
func (c *Client) Complete(ctx context.Context, req *schema.CompletionRequest) (*schema.Message, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}
	if err := req.Validate(); err != nil {
		c.report(CategoryAPI, err.Error())
		return nil, err
	}

	body, contentType, err := encodeMultipart(req.Fields())
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var msg schema.Message
	found, err := c.do(ctx, http.MethodPost, "/assistant/completion", body, contentType, &msg)
	if err != nil || !found {
		return nil, err
	}
	if msg.Type == "" {
		msg.Type = schema.MessageTypeAssistant
	}

	c.logger.Debug().
		Str("id", msg.ID.String()).
		Bool("audio", msg.HasAudio()).
		Msg("completion received")

	return &msg, nil
}

// Messages returns the stored conversation history in display order.
func (c *Client) Messages(ctx context.Context) ([]schema.Message, error) {
	var msgs []schema.Message
	found, err := c.do(ctx, http.MethodGet, "/assistant/messages", nil, "", &msgs)
	if err != nil {
		return nil, err
	}
	if !found || msgs == nil {
		return []schema.Message{}, nil
	}
	return msgs, nil
}

// DeleteMessages clears the server-side history.
func (c *Client) DeleteMessages(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/assistant/messages", nil, "", nil)
	return err
}

// SetFeedback records the user's rating of a message.
func (c *Client) SetFeedback(ctx context.Context, id schema.MessageID, feedback schema.Feedback) error {
	path := "/assistant/messages/" + url.PathEscape(id.String()) + "/feedback?feedback=" + url.QueryEscape(string(feedback))
	_, err := c.do(ctx, http.MethodPut, path, nil, "", nil)
	return err
}

// do sends the request and decodes a JSON or msgpack body into out. It reports
// whether a body was decoded.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json, application/msgpack")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// A request the user abandoned is not a network failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.logger.Debug().Str("method", method).Str("path", path).Msg("backend request cancelled")
			return false, ctxErr
		}
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("backend unreachable")
		c.report(CategoryNetwork, NetworkMessage)
		return false, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.report(CategoryNetwork, NetworkMessage)
		return false, fmt.Errorf("%w: failed to read response: %v", ErrNetwork, err)
	}

	respType := resp.Header.Get("Content-Type")
	decodable := resp.StatusCode != http.StatusNoContent && len(respBody) > 0 && isStructured(respType)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(resp, respType, respBody, decodable)}
		c.logger.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("detail", apiErr.Message).
			Msg("backend request failed")
		c.report(CategoryAPI, apiErr.Message)
		return false, apiErr
	}

	if !decodable || out == nil {
		return false, nil
	}

	if err := decodeBody(respType, respBody, out); err != nil {
		apiErr := &APIError{Status: resp.StatusCode, Message: "Failed to parse response"}
		c.report(CategoryAPI, apiErr.Message)
		return false, apiErr
	}

	return true, nil
}

func (c *Client) report(category, message string) {
	if c.notifier != nil {
		c.notifier.Error(category, message)
	}
}

func errorMessage(resp *http.Response, contentType string, body []byte, decodable bool) string {
	if resp.StatusCode == http.StatusTooManyRequests {
		return RateLimitMessage
	}

	if decodable {
		var detail schema.ErrorResponse
		if err := decodeBody(contentType, body, &detail); err == nil && detail.Detail != "" {
			return detail.Detail
		}
	}

	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return genericMessage
}

func isStructured(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "json") || strings.Contains(ct, "msgpack")
}

func encodeMultipart(fields map[string]string) (io.Reader, string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf, w.FormDataContentType(), nil
}
