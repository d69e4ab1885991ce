package backup

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"agenthub/internal/domain"
)

// Status reports the scheduler state and last persisted backup for one
// agent.
type Status struct {
	SchedulerActive bool               `json:"scheduler_active"`
	LastBackup      *domain.BackupInfo `json:"last_backup,omitempty"`
}

// Scheduler drives per-agent sandbox backups. Each started agent gets a
// periodic cron entry bounding staleness, and write activity schedules a
// coalescing debounce timer bounding latency after a burst: triggering
// while one is pending cancels and replaces it, never stacks.
type Scheduler struct {
	snapshotter domain.Snapshotter
	sink        domain.BackupSink
	registry    domain.HookRegistry // optional; emits backup:completed
	logger      *slog.Logger
	interval    time.Duration
	debounce    time.Duration

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID // agent id -> periodic entry
	pending map[string]*time.Timer  // agent id -> debounce timer
}

// NewScheduler creates and starts a backup scheduler. The registry may be
// nil; when set, a backup:completed event is emitted after each persisted
// backup.
func NewScheduler(snapshotter domain.Snapshotter, sink domain.BackupSink, registry domain.HookRegistry, interval, debounce time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if debounce <= 0 {
		debounce = 30 * time.Second
	}
	s := &Scheduler{
		snapshotter: snapshotter,
		sink:        sink,
		registry:    registry,
		logger:      logger,
		interval:    interval,
		debounce:    debounce,
		cron:        cron.New(),
		entries:     make(map[string]cron.EntryID),
		pending:     make(map[string]*time.Timer),
	}
	s.cron.Start()
	return s
}

// Start schedules periodic backups for an agent and runs one immediate
// fire-and-forget backup. Starting an already-started agent is a no-op.
func (s *Scheduler) Start(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[agentID]; exists {
		return
	}

	id := agentID
	entryID := s.cron.Schedule(constantDelay{delay: s.interval}, cron.FuncJob(func() {
		s.runBackup(context.Background(), id)
	}))
	s.entries[agentID] = entryID
	s.logger.Info("backup scheduler started", "agent", agentID, "interval", s.interval)

	go s.runBackup(context.Background(), id)
}

// Stop cancels the agent's periodic entry and any pending debounce timer.
// Silent no-op when nothing is scheduled. No further ticks fire after Stop
// returns; an already in-flight backup is not canceled.
func (s *Scheduler) Stop(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(agentID)
}

func (s *Scheduler) stopLocked(agentID string) {
	if entryID, ok := s.entries[agentID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, agentID)
		s.logger.Info("backup scheduler stopped", "agent", agentID)
	}
	if timer, ok := s.pending[agentID]; ok {
		timer.Stop()
		delete(s.pending, agentID)
	}
}

// TriggerDebounced schedules a backup at now + debounce delay, canceling
// and replacing any pending debounce for the agent. Bursts of writes
// within the window coalesce into one backup at last-write + delay.
func (s *Scheduler) TriggerDebounced(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.pending[agentID]; ok {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		current, ok := s.pending[agentID]
		if !ok || current != timer {
			// Replaced or canceled between fire and lock acquisition.
			s.mu.Unlock()
			return
		}
		delete(s.pending, agentID)
		s.mu.Unlock()
		s.runBackup(context.Background(), agentID)
	})
	s.pending[agentID] = timer
}

// Status reports whether the agent's periodic timer is active and the
// last persisted backup metadata. Read-only.
func (s *Scheduler) Status(ctx context.Context, agentID string) (Status, error) {
	s.mu.Lock()
	_, active := s.entries[agentID]
	s.mu.Unlock()

	info, err := s.sink.GetBackupInfo(ctx, agentID)
	if err != nil {
		return Status{SchedulerActive: active}, domain.WrapOp("backup.status", err)
	}
	return Status{SchedulerActive: active, LastBackup: info}, nil
}

// StopAll cancels every periodic entry and pending debounce timer and
// stops the cron runner. Idempotent and safe with no agents registered.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for agentID := range s.entries {
		s.cron.Remove(s.entries[agentID])
		delete(s.entries, agentID)
	}
	for agentID, timer := range s.pending {
		timer.Stop()
		delete(s.pending, agentID)
	}
	s.mu.Unlock()

	// Waits for in-flight jobs; safe to call repeatedly.
	<-s.cron.Stop().Done()
	s.logger.Info("backup scheduler shut down")
}

// runBackup is the shared action behind both timers. All failures are
// caught and logged so a bad tick never stops future ticks.
func (s *Scheduler) runBackup(ctx context.Context, agentID string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("backup panicked", "agent", agentID, "panic", r)
		}
	}()

	if !s.snapshotter.HasActiveSession(agentID) {
		s.logger.Debug("backup skipped: no active session", "agent", agentID)
		return
	}

	files, err := s.snapshotter.SnapshotFiles(ctx, agentID)
	if err != nil {
		s.logger.Warn("backup snapshot failed", "agent", agentID, "error", err)
		return
	}
	if len(files) == 0 {
		s.logger.Debug("backup skipped: empty snapshot", "agent", agentID)
		return
	}

	if err := s.sink.PersistBackup(ctx, agentID, files); err != nil {
		s.logger.Warn("backup persist failed", "agent", agentID, "error", err)
		return
	}

	var total int64
	for _, f := range files {
		total += int64(len(f.Content))
	}
	s.logger.Info("backup persisted", "agent", agentID, "files", len(files), "bytes", total)

	if s.registry != nil {
		payload, _ := json.Marshal(map[string]any{
			"agent_id":   agentID,
			"file_count": len(files),
			"total_size": total,
		})
		s.registry.Emit(ctx, domain.Event{
			Type:    domain.EventBackupCompleted,
			UserID:  agentID,
			Source:  "backup-scheduler",
			Payload: payload,
		})
	}
}

// constantDelay implements cron.Schedule for a fixed interval.
// Unlike cron.Every(), it supports sub-second durations.
type constantDelay struct {
	delay time.Duration
}

func (d constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}
