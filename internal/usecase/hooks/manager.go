package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"agenthub/internal/domain"
)

// Built-in dispatch priorities. Lower values run first, so the status
// broadcaster and message sender complete before user-configured webhooks.
const (
	PriorityStatusBroadcast = 50
	PriorityMessageSender   = 100
	PriorityWebhook         = 500
)

// Manager is the central hook registry and dispatcher. Hooks are keyed by
// ID with replace-on-ID semantics; Emit invokes matching hooks one at a
// time in ascending priority order so completion order is observable by
// handlers sharing an external resource.
type Manager struct {
	mu      sync.RWMutex
	hooks   map[string]domain.Hook
	order   map[string]uint64 // registration sequence, tiebreak for equal priorities
	nextSeq uint64
	logger  *slog.Logger
}

// NewManager creates a hook manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		hooks:  make(map[string]domain.Hook),
		order:  make(map[string]uint64),
		logger: logger,
	}
}

// Register inserts or replaces a hook by its ID. Event types are not
// validated against a known set.
func (m *Manager) Register(h domain.Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.hooks[h.ID]; !exists {
		m.nextSeq++
		m.order[h.ID] = m.nextSeq
	}
	m.hooks[h.ID] = h
	m.logger.Debug("hook registered", "id", h.ID, "priority", h.Priority, "events", len(h.EventTypes))
}

// Unregister removes a hook by ID. No-op if absent.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.hooks[id]; !exists {
		return
	}
	delete(m.hooks, id)
	delete(m.order, id)
	m.logger.Debug("hook unregistered", "id", id)
}

// Has reports whether a hook with the given ID is registered.
func (m *Manager) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.hooks[id]
	return ok
}

// Emit assigns the event an ID and timestamp, then invokes every enabled
// hook subscribed to the event's type in ascending priority order. Each
// invocation is isolated: a hook that returns an error or panics yields a
// failed HookResult and does not stop dispatch to the remaining hooks.
// Returns one result per matched hook; hooks that don't match are never
// invoked.
func (m *Manager) Emit(ctx context.Context, event domain.Event) []domain.HookResult {
	if event.ID == "" {
		event.ID = NewID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	type entry struct {
		hook domain.Hook
		seq  uint64
	}

	m.mu.RLock()
	matched := make([]entry, 0, len(m.hooks))
	for id, h := range m.hooks {
		if h.Matches(event.Type) {
			matched = append(matched, entry{hook: h, seq: m.order[id]})
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].hook.Priority != matched[j].hook.Priority {
			return matched[i].hook.Priority < matched[j].hook.Priority
		}
		return matched[i].seq < matched[j].seq
	})

	results := make([]domain.HookResult, 0, len(matched))
	for _, e := range matched {
		res := m.invoke(ctx, e.hook, event)
		if !res.Success {
			m.logger.Warn("hook failed",
				"hook", e.hook.ID,
				"event", string(event.Type),
				"event_id", event.ID,
				"error", res.Error,
			)
		}
		results = append(results, res)
	}
	return results
}

func (m *Manager) invoke(ctx context.Context, h domain.Hook, event domain.Event) (res domain.HookResult) {
	res = domain.HookResult{HookID: h.ID, Success: true}
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("panic: %v", r)
		}
	}()
	if err := h.Invoke(ctx, event); err != nil {
		res.Success = false
		res.Error = err.Error()
	}
	return res
}

// NewID returns a new ULID suitable for event and webhook IDs.
func NewID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
