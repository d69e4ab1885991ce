package domain

import (
	"context"
	"time"
)

// BackupFile is one file captured from an agent's sandbox.
type BackupFile struct {
	Path    string
	Content []byte
}

// Snapshotter reads the current state of an agent's sandbox.
// SnapshotFiles may fail on transient resource errors.
type Snapshotter interface {
	// HasActiveSession reports whether the agent has a live or cached
	// sandbox. Backing up an agent without one would wake the resource
	// for nothing, so callers skip those agents.
	HasActiveSession(agentID string) bool
	SnapshotFiles(ctx context.Context, agentID string) ([]BackupFile, error)
}

// BackupInfo summarizes the last persisted backup for an agent.
type BackupInfo struct {
	FileCount int       `json:"file_count"`
	TotalSize int64     `json:"total_size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BackupSink persists sandbox snapshots. Persisting the same content twice
// is expected to be idempotent; the later write wins.
type BackupSink interface {
	PersistBackup(ctx context.Context, agentID string, files []BackupFile) error
	// GetBackupInfo returns nil (no error) when the agent has never been
	// backed up.
	GetBackupInfo(ctx context.Context, agentID string) (*BackupInfo, error)
}
