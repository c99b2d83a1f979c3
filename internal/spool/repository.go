// Package spool persists outbound batches that could not be delivered, so
// they survive a process restart and are retried on the next run.
package spool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS unsent_batches (
		batch_id TEXT PRIMARY KEY,
		payload  TEXT NOT NULL,
		saved_at TIMESTAMP NOT NULL
	)`

// Repository implements domain.SpoolRepository on a local SQLite file.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (and creates if missing) the spool database at the
// given path, verifies the connection, and bootstraps the schema. The caller
// should call Close when the repository is no longer needed.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open spool database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping spool database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create spool schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// SaveBatch persists a batch under the given id. Saving the same id twice
// overwrites the previous payload.
func (r *Repository) SaveBatch(ctx context.Context, id string, batch domain.Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO unsent_batches (batch_id, payload, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT (batch_id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		id, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// LoadBatches returns all persisted batches, oldest first. Rows whose
// payload no longer decodes are skipped rather than blocking the rest.
func (r *Repository) LoadBatches(ctx context.Context) ([]domain.SpooledBatch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT batch_id, payload
		FROM unsent_batches
		ORDER BY saved_at ASC, batch_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.SpooledBatch
	for rows.Next() {
		var (
			id      string
			payload string
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}

		var batch domain.Batch
		if err := json.Unmarshal([]byte(payload), &batch); err != nil {
			continue
		}
		batches = append(batches, domain.SpooledBatch{ID: id, Batch: batch})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

// DeleteBatch removes a persisted batch by id.
func (r *Repository) DeleteBatch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM unsent_batches WHERE batch_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return nil
}
