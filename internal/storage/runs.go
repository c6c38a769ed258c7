package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/runstore"
)

var _ runstore.Index = (*DB)(nil)

// Upsert records or refreshes the summary of one run.
func (db *DB) Upsert(ctx context.Context, sum model.RunSummary) error {
	err := withRetry(ctx, 2, 50*time.Millisecond, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO run_index (run_id, created_at, status, run_hash)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (run_id) DO UPDATE
			 SET created_at = EXCLUDED.created_at, status = EXCLUDED.status, run_hash = EXCLUDED.run_hash`,
			sum.RunID, sum.CreatedAt.UTC(), string(sum.Status), sum.RunHash,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: upsert run: %w", err)
	}
	return nil
}

// List returns run summaries newest first.
func (db *DB) List(ctx context.Context, filter runstore.ListFilter) ([]model.RunSummary, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Hash != "" {
		args = append(args, filter.Hash)
		where = append(where, fmt.Sprintf("run_hash = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = runstore.DefaultListLimit
	}
	args = append(args, limit)

	query := `SELECT run_id, created_at, status, run_hash FROM run_index`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, run_id DESC LIMIT $%d", len(args))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RunSummary, error) {
		var (
			sum    model.RunSummary
			status string
		)
		if err := row.Scan(&sum.RunID, &sum.CreatedAt, &status, &sum.RunHash); err != nil {
			return model.RunSummary{}, err
		}
		sum.CreatedAt = sum.CreatedAt.UTC()
		sum.Status = model.RunStatus(status)
		return sum, nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan runs: %w", err)
	}
	if out == nil {
		out = []model.RunSummary{}
	}
	return out, nil
}
