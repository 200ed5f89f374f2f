package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rpggio/fieldaudit/internal/repository"
)

// DraftStore is the device-local key-value store behind draft.Store
type DraftStore struct {
	db *DB
}

// NewDraftStore creates a new DraftStore
func NewDraftStore(db *DB) *DraftStore {
	return &DraftStore{db: db}
}

// Get returns the value for key or repository.ErrNotFound
func (s *DraftStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM drafts WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return value, nil
}

// Set writes value under key, replacing any previous value
func (s *DraftStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set draft: %w", err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *DraftStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// Keys lists the keys starting with prefix
func (s *DraftStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM drafts WHERE substr(key, 1, ?) = ? ORDER BY updated_at DESC`,
		len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan draft key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating draft keys: %w", err)
	}
	return keys, nil
}
