package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"agenthub/internal/domain"
	"agenthub/internal/infra/config"
)

// Patch contains optional fields for updating a webhook.
type Patch struct {
	Name       *string             `json:"name,omitempty"`
	URL        *string             `json:"url,omitempty"`
	Secret     *string             `json:"secret,omitempty"`
	EventTypes *[]domain.EventType `json:"event_types,omitempty"`
	Enabled    *bool               `json:"enabled,omitempty"`
	RetryCount *int                `json:"retry_count,omitempty"`
	TimeoutMs  *int                `json:"timeout_ms,omitempty"`
}

// Service owns the lifecycle of user-configured webhooks: persistence,
// hook registration, and the invariant that a config change always
// re-registers the hook so its closure captures fresh config.
type Service struct {
	store      domain.WebhookStore
	registry   domain.HookRegistry
	deliverer  *Deliverer
	logger     *slog.Logger
	defaults   config.WebhookConfig
	passphrase string // optional, encrypts secrets at rest
	mu         sync.Mutex
}

// NewService creates a webhook service. When passphrase is non-empty,
// webhook secrets are stored encrypted with the "enc:" prefix.
func NewService(store domain.WebhookStore, registry domain.HookRegistry, deliverer *Deliverer, defaults config.WebhookConfig, passphrase string, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		registry:   registry,
		deliverer:  deliverer,
		logger:     logger,
		defaults:   defaults,
		passphrase: passphrase,
	}
}

// Create validates, persists, and registers a new webhook.
func (s *Service) Create(ctx context.Context, cfg domain.WebhookConfig) (*domain.WebhookConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.ID == "" {
		cfg.ID = NewID()
	}
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	cfg.Enabled = true

	if cfg.RetryCount <= 0 {
		cfg.RetryCount = s.defaults.RetryCount
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = s.defaults.TimeoutMs
	}

	if err := validateWebhook(cfg); err != nil {
		return nil, domain.WrapOp("webhookservice", err)
	}

	if err := s.save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("webhookservice: save: %w", err)
	}

	s.registry.Register(s.deliverer.Hook(cfg))
	s.emitEvent(ctx, domain.EventWebhookCreated, cfg.UserID, webhookEventPayload(cfg))
	s.logger.Info("webhook created", "id", cfg.ID, "user", cfg.UserID, "url", cfg.URL)

	return &cfg, nil
}

// Update patches a webhook, persists it, and re-registers its hook.
// The hook is always fully unregistered and registered again, never
// mutated in place, so the delivery closure sees the new config.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*domain.WebhookConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		cfg.Name = *patch.Name
	}
	if patch.URL != nil {
		cfg.URL = *patch.URL
	}
	if patch.Secret != nil {
		cfg.Secret = *patch.Secret
	}
	if patch.EventTypes != nil {
		cfg.EventTypes = *patch.EventTypes
	}
	if patch.Enabled != nil {
		cfg.Enabled = *patch.Enabled
	}
	if patch.RetryCount != nil {
		cfg.RetryCount = *patch.RetryCount
	}
	if patch.TimeoutMs != nil {
		cfg.TimeoutMs = *patch.TimeoutMs
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := validateWebhook(*cfg); err != nil {
		return nil, domain.WrapOp("webhookservice", err)
	}

	if err := s.save(ctx, *cfg); err != nil {
		return nil, fmt.Errorf("webhookservice: save: %w", err)
	}

	s.registry.Unregister(HookID(cfg.ID))
	s.registry.Register(s.deliverer.Hook(*cfg))
	s.emitEvent(ctx, domain.EventWebhookUpdated, cfg.UserID, webhookEventPayload(*cfg))
	s.logger.Info("webhook updated", "id", id)

	return cfg, nil
}

// Delete removes a webhook row and unregisters its hook.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.registry.Unregister(HookID(id))
	s.emitEvent(ctx, domain.EventWebhookDeleted, "", map[string]string{"id": id})
	s.logger.Info("webhook deleted", "id", id)
	return nil
}

// Get returns a single webhook with its secret decrypted.
func (s *Service) Get(ctx context.Context, id string) (*domain.WebhookConfig, error) {
	return s.get(ctx, id)
}

// List returns all webhooks for a user with secrets decrypted.
func (s *Service) List(ctx context.Context, userID string) ([]domain.WebhookConfig, error) {
	cfgs, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range cfgs {
		if err := s.decryptSecret(&cfgs[i]); err != nil {
			return nil, err
		}
	}
	return cfgs, nil
}

// LoadAndRegister loads persisted webhooks and registers their hooks.
// Should be called once during startup.
func (s *Service) LoadAndRegister(ctx context.Context) error {
	cfgs, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("webhookservice: load: %w", err)
	}

	registered := 0
	for _, cfg := range cfgs {
		if err := s.decryptSecret(&cfg); err != nil {
			s.logger.Warn("skipping webhook with undecryptable secret", "id", cfg.ID, "error", err)
			continue
		}
		s.registry.Register(s.deliverer.Hook(cfg))
		registered++
	}

	s.logger.Info("webhooks loaded", "total", len(cfgs), "registered", registered)
	return nil
}

// --- internal ---

func (s *Service) get(ctx context.Context, id string) (*domain.WebhookConfig, error) {
	cfg, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.decryptSecret(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// save persists cfg, encrypting the secret at rest when a passphrase is
// configured.
func (s *Service) save(ctx context.Context, cfg domain.WebhookConfig) error {
	if s.passphrase != "" && cfg.Secret != "" && !strings.HasPrefix(cfg.Secret, "enc:") {
		enc, err := config.EncryptValue(cfg.Secret, s.passphrase)
		if err != nil {
			return fmt.Errorf("encrypt secret: %w", err)
		}
		cfg.Secret = "enc:" + enc
	}
	return s.store.Save(ctx, cfg)
}

func (s *Service) decryptSecret(cfg *domain.WebhookConfig) error {
	if !strings.HasPrefix(cfg.Secret, "enc:") {
		return nil
	}
	if s.passphrase == "" {
		return fmt.Errorf("webhook %s: secret is encrypted but no passphrase is configured", cfg.ID)
	}
	plain, err := config.DecryptValue(strings.TrimPrefix(cfg.Secret, "enc:"), s.passphrase)
	if err != nil {
		return fmt.Errorf("webhook %s: decrypt secret: %w", cfg.ID, err)
	}
	cfg.Secret = plain
	return nil
}

func (s *Service) emitEvent(ctx context.Context, eventType domain.EventType, userID string, payload any) {
	if s.registry == nil {
		return
	}
	data, _ := json.Marshal(payload)
	s.registry.Emit(ctx, domain.Event{
		Type:    eventType,
		UserID:  userID,
		Source:  "webhook-service",
		Payload: data,
	})
}

// webhookEventPayload strips the secret before a config is put on the wire.
func webhookEventPayload(cfg domain.WebhookConfig) map[string]any {
	return map[string]any{
		"id":          cfg.ID,
		"user_id":     cfg.UserID,
		"name":        cfg.Name,
		"url":         cfg.URL,
		"event_types": cfg.EventTypes,
		"enabled":     cfg.Enabled,
	}
}

func validateWebhook(cfg domain.WebhookConfig) error {
	if cfg.UserID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if cfg.URL == "" {
		return fmt.Errorf("%w: url is required", domain.ErrInvalidInput)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be absolute http(s)", domain.ErrInvalidInput)
	}
	if len(cfg.EventTypes) == 0 {
		return fmt.Errorf("%w: at least one event type is required", domain.ErrInvalidInput)
	}
	return nil
}
