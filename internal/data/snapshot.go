package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// snapshotRepo implements the SQLite snapshot repository
type snapshotRepo struct {
	db *sql.DB
}

// NewSnapshotRepo opens (or creates) the snapshot database
func NewSnapshotRepo(dbPath string) (repo.SnapshotRepo, error) {
	// Ensure directory exists
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS entity_snapshots (
			scope TEXT NOT NULL,
			id TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (scope, id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS reminders (
			id TEXT PRIMARY KEY,
			trigger_at INTEGER NOT NULL,
			data TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &snapshotRepo{db: db}, nil
}

// SaveEntity stores one entity snapshot
func (r *snapshotRepo) SaveEntity(ctx context.Context, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	updatedAt := snap.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO entity_snapshots (scope, id, data, updated_at)
		VALUES (?, ?, ?, ?)
	`, string(snap.Scope), snap.ID, string(data), updatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadEntities loads every entity snapshot
func (r *snapshotRepo) LoadEntities(ctx context.Context) ([]*domain.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT scope, id, data FROM entity_snapshots ORDER BY scope, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var result []*domain.Snapshot
	for rows.Next() {
		var scope, id, data string
		if err := rows.Scan(&scope, &id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		var snap domain.Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %s:%s: %w", scope, id, err)
		}
		// the row key wins over whatever the blob says
		snap.Scope = domain.Scope(scope)
		snap.ID = id
		result = append(result, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	return result, nil
}

// SaveReminders replaces the reminder collection in one transaction
func (r *snapshotRepo) SaveReminders(ctx context.Context, reminders []*domain.Reminder) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reminders`); err != nil {
		return fmt.Errorf("failed to clear reminders: %w", err)
	}
	for _, rem := range reminders {
		data, err := json.Marshal(rem)
		if err != nil {
			return fmt.Errorf("failed to encode reminder: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reminders (id, trigger_at, data) VALUES (?, ?, ?)
		`, rem.ID, rem.TriggerAt.UnixMilli(), string(data)); err != nil {
			return fmt.Errorf("failed to save reminder: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reminders: %w", err)
	}
	return nil
}

// LoadReminders loads the reminder collection ordered by trigger time
func (r *snapshotRepo) LoadReminders(ctx context.Context) ([]*domain.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT data FROM reminders ORDER BY trigger_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	var result []*domain.Reminder
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		var rem domain.Reminder
		if err := json.Unmarshal([]byte(data), &rem); err != nil {
			return nil, fmt.Errorf("failed to decode reminder: %w", err)
		}
		result = append(result, &rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reminders: %w", err)
	}
	return result, nil
}

// Close closes the database
func (r *snapshotRepo) Close() error {
	return r.db.Close()
}
