package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"agenthub/internal/domain"
)

// APISenderOption configures an APISender.
type APISenderOption func(*APISender)

// WithClient overrides the HTTP client used for outbound sends.
func WithClient(c *http.Client) APISenderOption {
	return func(s *APISender) { s.client = c }
}

// APISender implements domain.Sender against an HTTP messaging-channel
// API. Messages are POSTed as JSON with bearer-token authentication.
type APISender struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewAPISender creates a channel sender for the API at baseURL.
func NewAPISender(baseURL, token string, logger *slog.Logger, opts ...APISenderOption) *APISender {
	s := &APISender{
		baseURL: baseURL,
		token:   token,
		logger:  logger,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name implements domain.Sender.
func (s *APISender) Name() string { return "http-api" }

type sendRequest struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

// Send delivers an outbound message. Error responses are prefixed with
// "Error: " so the recipient can distinguish agent failures from output.
func (s *APISender) Send(ctx context.Context, msg domain.OutboundMessage) error {
	content := msg.Content
	if msg.IsError {
		content = "Error: " + content
	}

	body, err := json.Marshal(sendRequest{To: msg.To, Content: content})
	if err != nil {
		return fmt.Errorf("channel send: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("channel send: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelSend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("%w: status %d: %s", domain.ErrChannelSend, resp.StatusCode, respBody)
	}

	s.logger.Debug("channel message sent", "to", msg.To, "user", msg.UserID)
	return nil
}
