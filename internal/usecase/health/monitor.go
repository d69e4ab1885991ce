package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"agenthub/internal/domain"
)

// Monitor periodically evaluates every registered app adapter and emits
// health events: app:health_check on every pass, app:health_warning when
// an adapter is unhealthy, and app:health_cleared once it recovers.
type Monitor struct {
	registry domain.HookRegistry
	logger   *slog.Logger
	interval time.Duration

	mu        sync.Mutex
	adapters  map[string]domain.AppAdapter
	unhealthy map[string]bool // last observed unhealthy state per user

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewMonitor creates a health monitor. Call Run to start the check loop.
func NewMonitor(registry domain.HookRegistry, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		registry:  registry,
		logger:    logger,
		interval:  interval,
		adapters:  make(map[string]domain.AppAdapter),
		unhealthy: make(map[string]bool),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Track adds an adapter to the monitored set, replacing any previous
// adapter for the same user.
func (m *Monitor) Track(adapter domain.AppAdapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters[adapter.UserID()] = adapter
}

// Untrack removes a user's adapter and forgets its health state.
func (m *Monitor) Untrack(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.adapters, userID)
	delete(m.unhealthy, userID)
}

// CheckNow evaluates one user's adapter immediately and returns the
// report, or nil when the user is not tracked.
func (m *Monitor) CheckNow(ctx context.Context, userID string) *domain.HealthReport {
	m.mu.Lock()
	adapter, ok := m.adapters[userID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	report := Check(adapter.ConnectionInfo(), time.Now())
	m.publish(ctx, userID, report)
	return &report
}

// Run blocks, checking all tracked adapters every interval until Stop is
// called or ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkAll(ctx)
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the Run loop and waits for it to exit. Safe to call more
// than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

func (m *Monitor) checkAll(ctx context.Context) {
	m.mu.Lock()
	snapshot := make(map[string]domain.AppAdapter, len(m.adapters))
	for id, a := range m.adapters {
		snapshot[id] = a
	}
	m.mu.Unlock()

	now := time.Now()
	for userID, adapter := range snapshot {
		m.publish(ctx, userID, Check(adapter.ConnectionInfo(), now))
	}
}

// publish emits the health events for one report and updates the
// per-user unhealthy flag.
func (m *Monitor) publish(ctx context.Context, userID string, report domain.HealthReport) {
	payload, _ := json.Marshal(report)
	m.registry.Emit(ctx, domain.Event{
		Type:    domain.EventAppHealthCheck,
		UserID:  userID,
		Source:  "health-monitor",
		Payload: payload,
	})

	m.mu.Lock()
	wasUnhealthy := m.unhealthy[userID]
	m.unhealthy[userID] = !report.Healthy
	m.mu.Unlock()

	switch {
	case !report.Healthy:
		m.logger.Warn("health check unhealthy",
			"user", userID,
			"status", string(report.Status),
			"message", report.WarningMessage,
		)
		m.registry.Emit(ctx, domain.Event{
			Type:    domain.EventAppHealthWarning,
			UserID:  userID,
			Source:  "health-monitor",
			Payload: payload,
		})
	case wasUnhealthy:
		m.logger.Info("health recovered", "user", userID)
		m.registry.Emit(ctx, domain.Event{
			Type:    domain.EventAppHealthCleared,
			UserID:  userID,
			Source:  "health-monitor",
			Payload: payload,
		})
	}
}
