package domain

import (
	"context"
	"time"
)

// WebhookConfig is a user-configured webhook endpoint. Each persisted
// config is one-to-one with a registered hook ("webhook:<id>"). An update
// always re-registers the hook so its closure captures fresh config.
type WebhookConfig struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Name       string      `json:"name"`
	URL        string      `json:"url"`
	Secret     string      `json:"secret,omitempty"`
	EventTypes []EventType `json:"event_types"`
	Enabled    bool        `json:"enabled"`
	RetryCount int         `json:"retry_count"`
	TimeoutMs  int         `json:"timeout_ms"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// WebhookStore persists webhook configurations.
type WebhookStore interface {
	Save(ctx context.Context, cfg WebhookConfig) error
	Get(ctx context.Context, id string) (*WebhookConfig, error)
	List(ctx context.Context) ([]WebhookConfig, error)
	ListByUser(ctx context.Context, userID string) ([]WebhookConfig, error)
	Delete(ctx context.Context, id string) error
}
