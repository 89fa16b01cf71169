package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ganot/taskdeck/internal/repository"
)

// BlobRepository implements repository.BlobRepository for SQLite
type BlobRepository struct {
	db *DB
}

// NewBlobRepository creates a new BlobRepository
func NewBlobRepository(db *DB) *BlobRepository {
	return &BlobRepository{db: db}
}

// Get reads the blob stored under key and unmarshals it into out.
func (r *BlobRepository) Get(ctx context.Context, key string, out any) error {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM blobs WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get blob %s: %w", key, err)
	}

	if err := json.Unmarshal(value, out); err != nil {
		return fmt.Errorf("failed to decode blob %s: %w", key, err)
	}
	return nil
}

// Put marshals value and overwrites the blob stored under key. Each key is
// its own atomic write; last writer wins.
func (r *BlobRepository) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode blob %s: %w", key, err)
	}

	query := `
		INSERT INTO blobs (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, key, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to put blob %s: %w", key, err)
	}
	return nil
}
