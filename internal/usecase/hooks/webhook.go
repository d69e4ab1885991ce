package hooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"agenthub/internal/domain"
	"agenthub/internal/infra/tracer"
)

// Delivery defaults and backoff bounds.
const (
	defaultRetryCount = 3
	defaultTimeout    = 5 * time.Second
	backoffBase       = time.Second
	backoffCap        = 10 * time.Second
	maxDiagnosticBody = 64 * 1024
)

// DelivererOption configures a Deliverer.
type DelivererOption func(*Deliverer)

// WithBackoff overrides the retry backoff base and cap.
func WithBackoff(base, cap time.Duration) DelivererOption {
	return func(d *Deliverer) {
		d.backoffBase = base
		d.backoffCap = cap
	}
}

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) DelivererOption {
	return func(d *Deliverer) { d.client = c }
}

// Deliverer performs signed webhook deliveries with per-attempt timeouts
// and exponential backoff between retries.
type Deliverer struct {
	client      *http.Client
	logger      *slog.Logger
	backoffBase time.Duration
	backoffCap  time.Duration
}

// NewDeliverer creates a webhook deliverer.
func NewDeliverer(logger *slog.Logger, opts ...DelivererOption) *Deliverer {
	d := &Deliverer{
		client:      &http.Client{},
		logger:      logger,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Hook builds the hook record for a webhook config. The hook filters on
// the config's user: events belonging to other users succeed immediately
// without a delivery attempt, so the dispatcher records them as handled.
func (d *Deliverer) Hook(cfg domain.WebhookConfig) domain.Hook {
	return domain.Hook{
		ID:         HookID(cfg.ID),
		Name:       cfg.Name,
		EventTypes: cfg.EventTypes,
		Enabled:    cfg.Enabled,
		Priority:   PriorityWebhook,
		Invoke: func(ctx context.Context, event domain.Event) error {
			if event.UserID != cfg.UserID {
				return nil
			}
			return d.Deliver(ctx, cfg, event)
		},
	}
}

// HookID returns the registry ID for a webhook config ID.
func HookID(webhookID string) string { return "webhook:" + webhookID }

type webhookEnvelope struct {
	Event webhookEvent `json:"event"`
}

type webhookEvent struct {
	ID        string           `json:"id"`
	Type      domain.EventType `json:"type"`
	Timestamp string           `json:"timestamp"`
	UserID    string           `json:"userId,omitempty"`
	Source    string           `json:"source,omitempty"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}

// Deliver POSTs the event to the webhook URL. Attempts are bounded by
// cfg.RetryCount; each attempt has its own cfg.TimeoutMs deadline. 5xx
// responses and network errors (timeouts included) are retried with
// backoff min(base*2^(n-1), cap); other non-2xx responses are terminal.
func (d *Deliverer) Deliver(ctx context.Context, cfg domain.WebhookConfig, event domain.Event) error {
	ctx, span := tracer.StartSpan(ctx, "webhook.deliver")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("webhook.id", cfg.ID),
		tracer.StringAttr("event.type", string(event.Type)),
		tracer.StringAttr("event.id", event.ID),
	)

	body, err := json.Marshal(webhookEnvelope{Event: webhookEvent{
		ID:        event.ID,
		Type:      event.Type,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		UserID:    event.UserID,
		Source:    event.Source,
		Payload:   event.Payload,
	}})
	if err != nil {
		return domain.WrapOp("webhook.deliver: marshal envelope", err)
	}

	var signature string
	if cfg.Secret != "" {
		signature = Sign(cfg.Secret, body)
	}

	retries := cfg.RetryCount
	if retries < 1 {
		retries = defaultRetryCount
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		status, respBody, err := d.post(ctx, cfg, event, body, signature, timeout)

		if err == nil && status >= 200 && status < 300 {
			d.logger.Info("webhook delivered",
				"webhook", cfg.ID,
				"event", string(event.Type),
				"status", status,
				"attempt", attempt,
			)
			tracer.SetOK(span)
			return nil
		}

		retryable := false
		switch {
		case err != nil:
			if errors.Is(err, context.DeadlineExceeded) {
				d.logger.Warn("webhook request timed out",
					"webhook", cfg.ID, "timeout_ms", timeout.Milliseconds(), "attempt", attempt)
			}
			lastErr = fmt.Errorf("%w: %s: %v", domain.ErrDeliveryFailed, cfg.URL, err)
			retryable = true
		default:
			lastErr = fmt.Errorf("%w: %s: status %d: %s", domain.ErrDeliveryFailed, cfg.URL, status, respBody)
			retryable = status >= 500
		}

		if !retryable || attempt >= retries {
			break
		}

		delay := d.backoffDelay(attempt)
		d.logger.Warn("webhook delivery failed, retrying",
			"webhook", cfg.ID,
			"attempt", attempt,
			"max_attempts", retries,
			"backoff", delay,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			tracer.RecordError(span, ctx.Err())
			return domain.WrapOp("webhook.deliver", ctx.Err())
		}
	}

	tracer.RecordError(span, lastErr)
	return lastErr
}

func (d *Deliverer) post(ctx context.Context, cfg domain.WebhookConfig, event domain.Event, body []byte, signature string, timeout time.Duration) (int, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", string(event.Type))
	req.Header.Set("X-Webhook-Id", cfg.ID)
	req.Header.Set("X-Webhook-Timestamp", event.Timestamp.UTC().Format(time.RFC3339))
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	// Best-effort diagnostic read; a failed read is not itself an error.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxDiagnosticBody))
	return resp.StatusCode, string(respBody), nil
}

func (d *Deliverer) backoffDelay(attempt int) time.Duration {
	if attempt > 16 {
		return d.backoffCap
	}
	delay := d.backoffBase << (attempt - 1)
	if delay > d.backoffCap {
		delay = d.backoffCap
	}
	return delay
}

// Sign computes the signature header value for a request body:
// "sha256=" + lowercase hex HMAC-SHA256(secret, body).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
