package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"agenthub/internal/domain"
)

// SQLiteStore backs webhook configs and sandbox backups with a single
// SQLite database. Implements domain.WebhookStore and domain.BackupSink.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS webhooks (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			url         TEXT NOT NULL,
			secret      TEXT NOT NULL DEFAULT '',
			event_types TEXT NOT NULL DEFAULT '[]',
			enabled     INTEGER NOT NULL DEFAULT 1,
			retry_count INTEGER NOT NULL DEFAULT 3,
			timeout_ms  INTEGER NOT NULL DEFAULT 5000,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_webhooks_user ON webhooks(user_id);

		CREATE TABLE IF NOT EXISTS backups (
			agent_id   TEXT PRIMARY KEY,
			file_count INTEGER NOT NULL,
			total_size INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS backup_files (
			agent_id TEXT NOT NULL,
			path     TEXT NOT NULL,
			content  BLOB NOT NULL,
			PRIMARY KEY (agent_id, path)
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- domain.WebhookStore ---

func (s *SQLiteStore) Save(_ context.Context, cfg domain.WebhookConfig) error {
	typesJSON, err := json.Marshal(cfg.EventTypes)
	if err != nil {
		return fmt.Errorf("marshal event types: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO webhooks (id, user_id, name, url, secret, event_types, enabled, retry_count, timeout_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			url = excluded.url,
			secret = excluded.secret,
			event_types = excluded.event_types,
			enabled = excluded.enabled,
			retry_count = excluded.retry_count,
			timeout_ms = excluded.timeout_ms,
			updated_at = excluded.updated_at`,
		cfg.ID, cfg.UserID, cfg.Name, cfg.URL, cfg.Secret, string(typesJSON),
		boolToInt(cfg.Enabled), cfg.RetryCount, cfg.TimeoutMs,
		cfg.CreatedAt.UTC().Format(time.RFC3339Nano), cfg.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) Get(_ context.Context, id string) (*domain.WebhookConfig, error) {
	row := s.db.QueryRow(
		"SELECT id, user_id, name, url, secret, event_types, enabled, retry_count, timeout_ms, created_at, updated_at FROM webhooks WHERE id = ?", id,
	)
	cfg, err := scanWebhook(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrWebhookNotFound
	}
	return cfg, err
}

func (s *SQLiteStore) List(ctx context.Context) ([]domain.WebhookConfig, error) {
	return s.queryWebhooks(ctx,
		"SELECT id, user_id, name, url, secret, event_types, enabled, retry_count, timeout_ms, created_at, updated_at FROM webhooks ORDER BY created_at")
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]domain.WebhookConfig, error) {
	return s.queryWebhooks(ctx,
		"SELECT id, user_id, name, url, secret, event_types, enabled, retry_count, timeout_ms, created_at, updated_at FROM webhooks WHERE user_id = ? ORDER BY created_at", userID)
}

func (s *SQLiteStore) Delete(_ context.Context, id string) error {
	res, err := s.db.Exec("DELETE FROM webhooks WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrWebhookNotFound
	}
	return nil
}

func (s *SQLiteStore) queryWebhooks(_ context.Context, query string, args ...any) ([]domain.WebhookConfig, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cfgs []domain.WebhookConfig
	for rows.Next() {
		cfg, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, *cfg)
	}
	return cfgs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWebhook(row scanner) (*domain.WebhookConfig, error) {
	var cfg domain.WebhookConfig
	var typesStr, createdStr, updatedStr string
	var enabled int
	if err := row.Scan(&cfg.ID, &cfg.UserID, &cfg.Name, &cfg.URL, &cfg.Secret,
		&typesStr, &enabled, &cfg.RetryCount, &cfg.TimeoutMs, &createdStr, &updatedStr); err != nil {
		return nil, err
	}
	cfg.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(typesStr), &cfg.EventTypes); err != nil {
		return nil, fmt.Errorf("unmarshal event types: %w", err)
	}
	cfg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return &cfg, nil
}

// --- domain.BackupSink ---

// PersistBackup replaces the agent's stored snapshot atomically: old file
// rows are dropped and the new set inserted in one transaction.
func (s *SQLiteStore) PersistBackup(ctx context.Context, agentID string, files []domain.BackupFile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin backup tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM backup_files WHERE agent_id = ?", agentID); err != nil {
		return fmt.Errorf("clear backup files: %w", err)
	}

	var total int64
	for _, f := range files {
		if _, err := tx.Exec(
			"INSERT INTO backup_files (agent_id, path, content) VALUES (?, ?, ?)",
			agentID, f.Path, f.Content,
		); err != nil {
			return fmt.Errorf("insert backup file %s: %w", f.Path, err)
		}
		total += int64(len(f.Content))
	}

	if _, err := tx.Exec(`
		INSERT INTO backups (agent_id, file_count, total_size, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			file_count = excluded.file_count,
			total_size = excluded.total_size,
			updated_at = excluded.updated_at`,
		agentID, len(files), total, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("upsert backup meta: %w", err)
	}

	return tx.Commit()
}

// GetBackupInfo returns nil with no error when the agent has never been
// backed up.
func (s *SQLiteStore) GetBackupInfo(_ context.Context, agentID string) (*domain.BackupInfo, error) {
	var info domain.BackupInfo
	var updatedStr string
	err := s.db.QueryRow(
		"SELECT file_count, total_size, updated_at FROM backups WHERE agent_id = ?", agentID,
	).Scan(&info.FileCount, &info.TotalSize, &updatedStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return &info, nil
}

// RestoreFiles returns the stored snapshot for an agent.
func (s *SQLiteStore) RestoreFiles(_ context.Context, agentID string) ([]domain.BackupFile, error) {
	rows, err := s.db.Query("SELECT path, content FROM backup_files WHERE agent_id = ? ORDER BY path", agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []domain.BackupFile
	for rows.Next() {
		var f domain.BackupFile
		if err := rows.Scan(&f.Path, &f.Content); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
