package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being emitted.
type EventType string

const (
	// Connection lifecycle events for the messaging-channel integration.
	EventAppConnecting   EventType = "app:connecting"
	EventAppConnected    EventType = "app:connected"
	EventAppDisconnected EventType = "app:disconnected"
	EventAppDegraded     EventType = "app:degraded"

	// Health check events.
	EventAppHealthWarning EventType = "app:health_warning"
	EventAppHealthCleared EventType = "app:health_cleared"
	EventAppHealthCheck   EventType = "app:health_check"

	// Message flow events.
	EventMessageReceived EventType = "message:received"
	EventMessageSent     EventType = "message:sent"
	EventAgentResponse   EventType = "agent:response"

	// Backup events.
	EventBackupCompleted EventType = "backup:completed"

	// Webhook lifecycle events.
	EventWebhookCreated EventType = "webhook:created"
	EventWebhookUpdated EventType = "webhook:updated"
	EventWebhookDeleted EventType = "webhook:deleted"
)

// Event is the envelope dispatched to registered hooks. It is immutable
// once constructed; hooks receive it by value and must not mutate Payload.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	UserID    string          `json:"userId,omitempty"`
	Source    string          `json:"source,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// HookFunc is the unit of logic invoked when a subscribed event occurs.
type HookFunc func(ctx context.Context, event Event) error

// Hook is a registered handler record. Hooks are keyed by ID; registering
// a hook under an existing ID replaces the previous record.
type Hook struct {
	ID         string
	Name       string
	EventTypes []EventType
	Enabled    bool
	Priority   int // lower values dispatch first
	Invoke     HookFunc
}

// Matches reports whether the hook is enabled and subscribed to t.
func (h Hook) Matches(t EventType) bool {
	if !h.Enabled {
		return false
	}
	for _, et := range h.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// HookResult records the outcome of one hook invocation. Dispatch does not
// roll back on failure; results are informational.
type HookResult struct {
	HookID  string `json:"hook_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// HookRegistry dispatches events to registered hooks in priority order.
type HookRegistry interface {
	// Register inserts or replaces a hook by its ID.
	Register(h Hook)
	// Unregister removes a hook by ID. No-op if absent.
	Unregister(id string)
	// Emit assigns the event an ID and timestamp, invokes every matching
	// enabled hook in ascending priority order, and returns one result
	// per matched hook after all have completed.
	Emit(ctx context.Context, event Event) []HookResult
}

// Notifier pushes an event to a user's connected clients.
// Fire-and-forget: there is no delivery confirmation.
type Notifier interface {
	Notify(userID string, event EventType, payload json.RawMessage)
}
