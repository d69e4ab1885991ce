package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"agenthub/internal/domain"
)

// statusEvents are the connection and health events relayed to the user's
// connected clients.
var statusEvents = []domain.EventType{
	domain.EventAppConnecting,
	domain.EventAppConnected,
	domain.EventAppDisconnected,
	domain.EventAppDegraded,
	domain.EventAppHealthWarning,
	domain.EventAppHealthCleared,
}

// StatusBroadcastHook relays connection-status and health events to the
// owning user's connected clients. Notification is fire-and-forget, so
// this hook never fails dispatch.
func StatusBroadcastHook(notifier domain.Notifier) domain.Hook {
	return domain.Hook{
		ID:         "builtin:status-broadcast",
		Name:       "connection status broadcast",
		EventTypes: statusEvents,
		Enabled:    true,
		Priority:   PriorityStatusBroadcast,
		Invoke: func(_ context.Context, event domain.Event) error {
			notifier.Notify(event.UserID, event.Type, event.Payload)
			return nil
		},
	}
}

// Circuit breaker defaults for the message sender.
const (
	senderCBMaxFailures uint32 = 5
	senderCBTimeout            = 30 * time.Second
	senderCBInterval           = 60 * time.Second
)

// SenderHook delivers agent responses through the messaging channel.
// Sends are routed through a circuit breaker: when the channel API fails
// repeatedly, the circuit opens and subsequent sends fail fast instead of
// piling up on a dead endpoint.
func SenderHook(sender domain.Sender, logger *slog.Logger) domain.Hook {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "channel:" + sender.Name(),
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    senderCBInterval,
		Timeout:     senderCBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= senderCBMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return domain.Hook{
		ID:         "builtin:message-sender",
		Name:       "agent response sender",
		EventTypes: []domain.EventType{domain.EventAgentResponse},
		Enabled:    true,
		Priority:   PriorityMessageSender,
		Invoke: func(ctx context.Context, event domain.Event) error {
			var msg domain.OutboundMessage
			if err := json.Unmarshal(event.Payload, &msg); err != nil {
				return fmt.Errorf("decode outbound message: %w", err)
			}
			_, err := cb.Execute(func() (struct{}, error) {
				return struct{}{}, sender.Send(ctx, msg)
			})
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return fmt.Errorf("%w: channel %q: %v", domain.ErrChannelCircuitOn, sender.Name(), err)
			}
			return domain.WrapOp("sender", err)
		},
	}
}
