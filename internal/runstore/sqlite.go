package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/ashita-ai/prism/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id     TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    status     TEXT NOT NULL,
    run_hash   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs (created_at DESC, run_id DESC);
CREATE INDEX IF NOT EXISTS idx_runs_hash ON runs (run_hash);
`

// SQLiteIndex is an Index backed by a local SQLite file.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLiteIndex opens (creating if needed) the index database at path.
func OpenSQLiteIndex(ctx context.Context, path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runstore: open sqlite: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("runstore: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runstore: create sqlite schema: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

// Upsert implements Index.
func (x *SQLiteIndex) Upsert(ctx context.Context, sum model.RunSummary) error {
	_, err := x.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, created_at, status, run_hash) VALUES (?, ?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET created_at = excluded.created_at,
		     status = excluded.status, run_hash = excluded.run_hash`,
		sum.RunID, sum.CreatedAt.UTC().UnixNano(), string(sum.Status), sum.RunHash)
	if err != nil {
		return fmt.Errorf("runstore: sqlite upsert: %w", err)
	}
	return nil
}

// List implements Index.
func (x *SQLiteIndex) List(ctx context.Context, filter ListFilter) ([]model.RunSummary, error) {
	filter = filter.normalize()
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Hash != "" {
		where = append(where, "run_hash = ?")
		args = append(args, filter.Hash)
	}
	query := "SELECT run_id, created_at, status, run_hash FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, run_id DESC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("runstore: sqlite list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.RunSummary{}
	for rows.Next() {
		var (
			sum     model.RunSummary
			created int64
			status  string
		)
		if err := rows.Scan(&sum.RunID, &created, &status, &sum.RunHash); err != nil {
			return nil, fmt.Errorf("runstore: sqlite scan: %w", err)
		}
		sum.CreatedAt = time.Unix(0, created).UTC()
		sum.Status = model.RunStatus(status)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("runstore: sqlite rows: %w", err)
	}
	return out, nil
}

// Close implements Index.
func (x *SQLiteIndex) Close() error { return x.db.Close() }
