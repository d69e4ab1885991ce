package hooks

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"agenthub/internal/domain"
	"agenthub/internal/infra/config"
)

type memStore struct {
	mu   sync.Mutex
	rows map[string]domain.WebhookConfig
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]domain.WebhookConfig)}
}

func (s *memStore) Save(_ context.Context, cfg domain.WebhookConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[cfg.ID] = cfg
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*domain.WebhookConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	return &cfg, nil
}

func (s *memStore) List(_ context.Context) ([]domain.WebhookConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WebhookConfig, 0, len(s.rows))
	for _, cfg := range s.rows {
		out = append(out, cfg)
	}
	return out, nil
}

func (s *memStore) ListByUser(_ context.Context, userID string) ([]domain.WebhookConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WebhookConfig
	for _, cfg := range s.rows {
		if cfg.UserID == userID {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return domain.ErrWebhookNotFound
	}
	delete(s.rows, id)
	return nil
}

// raw returns the stored row, bypassing decryption.
func (s *memStore) raw(id string) domain.WebhookConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id]
}

func newTestService(t *testing.T, store domain.WebhookStore, passphrase string) (*Service, *Manager) {
	t.Helper()
	manager := NewManager(slog.Default())
	deliverer := testDeliverer()
	defaults := config.WebhookConfig{RetryCount: 3, TimeoutMs: 5000}
	return NewService(store, manager, deliverer, defaults, passphrase, slog.Default()), manager
}

func TestServiceCreateAppliesDefaults(t *testing.T) {
	store := newMemStore()
	svc, manager := newTestService(t, store, "")

	created, err := svc.Create(context.Background(), domain.WebhookConfig{
		UserID:     "u1",
		URL:        "https://example.com/hook",
		EventTypes: []domain.EventType{domain.EventMessageReceived},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if created.ID == "" {
		t.Error("no ID assigned")
	}
	if !created.Enabled {
		t.Error("not enabled by default")
	}
	if created.RetryCount != 3 || created.TimeoutMs != 5000 {
		t.Errorf("defaults not applied: retry=%d timeout=%d", created.RetryCount, created.TimeoutMs)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
	if !manager.Has(HookID(created.ID)) {
		t.Error("hook not registered")
	}
}

func TestServiceCreateValidates(t *testing.T) {
	svc, _ := newTestService(t, newMemStore(), "")
	types := []domain.EventType{domain.EventMessageSent}
	cases := map[string]domain.WebhookConfig{
		"no user":       {URL: "https://example.com", EventTypes: types},
		"no url":        {UserID: "u1", EventTypes: types},
		"bad scheme":    {UserID: "u1", URL: "ftp://example.com", EventTypes: types},
		"no event type": {UserID: "u1", URL: "https://example.com"},
	}
	for name, cfg := range cases {
		if _, err := svc.Create(context.Background(), cfg); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestServiceUpdateReRegisters(t *testing.T) {
	store := newMemStore()
	svc, manager := newTestService(t, store, "")

	created, err := svc.Create(context.Background(), domain.WebhookConfig{
		UserID:     "u1",
		URL:        "https://example.com/hook",
		EventTypes: []domain.EventType{domain.EventMessageReceived},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	enabled := false
	updated, err := svc.Update(context.Background(), created.ID, Patch{Enabled: &enabled})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Enabled {
		t.Error("enabled not patched")
	}
	if !manager.Has(HookID(created.ID)) {
		t.Error("hook missing after update")
	}

	// A disabled webhook must not match events anymore.
	results := manager.Emit(context.Background(), domain.Event{
		Type:   domain.EventMessageReceived,
		UserID: "u1",
	})
	if len(results) != 0 {
		t.Errorf("disabled webhook still dispatched: %+v", results)
	}
}

func TestServiceUpdateNotFound(t *testing.T) {
	svc, _ := newTestService(t, newMemStore(), "")
	name := "x"
	if _, err := svc.Update(context.Background(), "missing", Patch{Name: &name}); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestServiceDelete(t *testing.T) {
	store := newMemStore()
	svc, manager := newTestService(t, store, "")

	created, err := svc.Create(context.Background(), domain.WebhookConfig{
		UserID:     "u1",
		URL:        "https://example.com/hook",
		EventTypes: []domain.EventType{domain.EventMessageReceived},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if manager.Has(HookID(created.ID)) {
		t.Error("hook still registered after delete")
	}
	if _, err := svc.Get(context.Background(), created.ID); err == nil {
		t.Error("webhook still readable after delete")
	}
}

func TestServiceEncryptsSecretAtRest(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store, "passphrase-123")

	created, err := svc.Create(context.Background(), domain.WebhookConfig{
		UserID:     "u1",
		URL:        "https://example.com/hook",
		Secret:     "plain-secret",
		EventTypes: []domain.EventType{domain.EventMessageReceived},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	raw := store.raw(created.ID)
	if !strings.HasPrefix(raw.Secret, "enc:") {
		t.Errorf("stored secret = %q, want enc: prefix", raw.Secret)
	}

	got, err := svc.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Secret != "plain-secret" {
		t.Errorf("decrypted secret = %q", got.Secret)
	}
}

func TestServiceLoadAndRegister(t *testing.T) {
	store := newMemStore()

	for _, id := range []string{"a", "b"} {
		err := store.Save(context.Background(), domain.WebhookConfig{
			ID:         id,
			UserID:     "u1",
			URL:        "https://example.com/" + id,
			EventTypes: []domain.EventType{domain.EventMessageReceived},
			Enabled:    true,
			RetryCount: 1,
			TimeoutMs:  1000,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	svc, manager := newTestService(t, store, "")
	if err := svc.LoadAndRegister(context.Background()); err != nil {
		t.Fatalf("LoadAndRegister: %v", err)
	}
	if !manager.Has(HookID("a")) || !manager.Has(HookID("b")) {
		t.Error("persisted webhooks not registered")
	}
}
