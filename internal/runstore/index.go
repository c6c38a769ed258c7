package runstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashita-ai/prism/internal/model"
)

// Index is a queryable secondary view of persisted runs. The files remain
// the source of truth; an index only speeds up listing.
type Index interface {
	Upsert(ctx context.Context, sum model.RunSummary) error
	List(ctx context.Context, filter ListFilter) ([]model.RunSummary, error)
	Close() error
}

// Indexed is a FileStore whose listings are served from an Index.
type Indexed struct {
	files  *FileStore
	index  Index
	logger *slog.Logger
}

// NewIndexed wraps files with index.
func NewIndexed(files *FileStore, index Index, logger *slog.Logger) *Indexed {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Indexed{files: files, index: index, logger: logger}
}

// Persist writes the document, then records it in the index. Index failures
// are logged; the file write alone decides success.
func (s *Indexed) Persist(ctx context.Context, doc model.RunDocument) error {
	if err := s.files.Persist(ctx, doc); err != nil {
		return err
	}
	if err := s.index.Upsert(ctx, doc.Summary()); err != nil {
		s.logger.Warn("runstore: index upsert failed", "run_id", doc.RequestID, "error", err)
	}
	return nil
}

// List queries the index, falling back to a directory scan if it fails.
func (s *Indexed) List(ctx context.Context, filter ListFilter) ([]model.RunSummary, error) {
	out, err := s.index.List(ctx, filter.normalize())
	if err == nil {
		return out, nil
	}
	s.logger.Warn("runstore: index list failed, scanning files", "error", err)
	return s.files.List(ctx, filter)
}

// Get reads the document from disk.
func (s *Indexed) Get(ctx context.Context, runID string) (model.RunDocument, error) {
	return s.files.Get(ctx, runID)
}

// Reindex records every document on disk in the index. It is run at startup
// so runs written while the index was unavailable become listable.
func (s *Indexed) Reindex(ctx context.Context) (int, error) {
	n := 0
	var upsertErr error
	err := s.files.scan(ctx, func(sum model.RunSummary) bool {
		if err := s.index.Upsert(ctx, sum); err != nil {
			upsertErr = fmt.Errorf("runstore: reindex %s: %w", sum.RunID, err)
			return false
		}
		n++
		return true
	})
	if err != nil {
		return n, err
	}
	return n, upsertErr
}

// Close closes the index.
func (s *Indexed) Close() error { return s.index.Close() }
