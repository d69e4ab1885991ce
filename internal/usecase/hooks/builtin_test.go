package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"agenthub/internal/domain"
)

type fakeNotifier struct {
	mu     sync.Mutex
	pushed []domain.EventType
}

func (n *fakeNotifier) Notify(_ string, event domain.EventType, _ json.RawMessage) {
	n.mu.Lock()
	n.pushed = append(n.pushed, event)
	n.mu.Unlock()
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []domain.OutboundMessage
	err   error
	calls int
}

func (s *fakeSender) Send(_ context.Context, msg domain.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) Name() string { return "fake" }

func TestStatusBroadcastHook(t *testing.T) {
	n := &fakeNotifier{}
	hook := StatusBroadcastHook(n)

	if hook.Priority != PriorityStatusBroadcast {
		t.Errorf("priority = %d", hook.Priority)
	}
	if !hook.Matches(domain.EventAppConnected) || !hook.Matches(domain.EventAppHealthWarning) {
		t.Error("hook does not match status events")
	}
	if hook.Matches(domain.EventMessageReceived) {
		t.Error("hook matches non-status event")
	}

	err := hook.Invoke(context.Background(), domain.Event{
		Type:   domain.EventAppConnected,
		UserID: "u1",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(n.pushed) != 1 || n.pushed[0] != domain.EventAppConnected {
		t.Errorf("pushed = %v", n.pushed)
	}
}

func TestSenderHookDelivers(t *testing.T) {
	sender := &fakeSender{}
	hook := SenderHook(sender, slog.Default())

	payload, _ := json.Marshal(domain.OutboundMessage{UserID: "u1", To: "chat-1", Content: "hello"})
	err := hook.Invoke(context.Background(), domain.Event{
		Type:    domain.EventAgentResponse,
		UserID:  "u1",
		Payload: payload,
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].Content != "hello" {
		t.Errorf("sent = %+v", sender.sent)
	}
}

func TestSenderHookBadPayload(t *testing.T) {
	hook := SenderHook(&fakeSender{}, slog.Default())
	err := hook.Invoke(context.Background(), domain.Event{
		Type:    domain.EventAgentResponse,
		Payload: json.RawMessage(`not json`),
	})
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSenderHookCircuitOpens(t *testing.T) {
	sender := &fakeSender{err: errors.New("api down")}
	hook := SenderHook(sender, slog.Default())

	payload, _ := json.Marshal(domain.OutboundMessage{To: "chat-1", Content: "x"})
	event := domain.Event{Type: domain.EventAgentResponse, Payload: payload}

	// Trip the breaker with consecutive failures.
	for i := 0; i < 5; i++ {
		if err := hook.Invoke(context.Background(), event); err == nil {
			t.Fatalf("attempt %d: expected send error", i)
		}
	}

	before := sender.calls
	err := hook.Invoke(context.Background(), event)
	if !errors.Is(err, domain.ErrChannelCircuitOn) {
		t.Fatalf("err = %v, want circuit-open error", err)
	}
	if sender.calls != before {
		t.Error("sender was called while circuit open")
	}
}
