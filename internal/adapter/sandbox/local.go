package sandbox

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"agenthub/internal/domain"
)

// Snapshot size guard. Files past the cap are skipped with a warning
// rather than failing the whole snapshot.
const maxFileSize = 10 * 1024 * 1024

// LocalDir implements domain.Snapshotter over per-agent directories on
// the local filesystem. An agent has an active session when its
// directory exists under the root.
type LocalDir struct {
	root   string
	logger *slog.Logger
}

// NewLocalDir creates a snapshotter rooted at dir.
func NewLocalDir(dir string, logger *slog.Logger) *LocalDir {
	return &LocalDir{root: dir, logger: logger}
}

func (l *LocalDir) sessionDir(agentID string) string {
	return filepath.Join(l.root, agentID)
}

// HasActiveSession reports whether the agent's sandbox directory exists.
func (l *LocalDir) HasActiveSession(agentID string) bool {
	info, err := os.Stat(l.sessionDir(agentID))
	return err == nil && info.IsDir()
}

// SnapshotFiles reads every regular file under the agent's sandbox
// directory. Paths in the result are relative to the sandbox root.
func (l *LocalDir) SnapshotFiles(ctx context.Context, agentID string) ([]domain.BackupFile, error) {
	dir := l.sessionDir(agentID)

	var files []domain.BackupFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxFileSize {
			l.logger.Warn("snapshot skipping oversized file", "agent", agentID, "path", path, "size", info.Size())
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, domain.BackupFile{Path: filepath.ToSlash(rel), Content: content})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", agentID, err)
	}
	return files, nil
}
