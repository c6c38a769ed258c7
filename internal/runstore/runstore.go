// Package runstore persists evaluation runs as self-contained JSON documents,
// one file per run, and lists or fetches them back.
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/redact"
)

// rename is swapped in tests to exercise the write fallbacks.
var rename = os.Rename

// ErrNotFound is returned by Get for unknown or malformed run ids.
var ErrNotFound = errors.New("run not found")

// Listing bounds.
const (
	DefaultListLimit = 20
	MaxListLimit     = 200
)

// ListFilter narrows a run listing. Zero fields do not filter.
type ListFilter struct {
	Limit  int
	Status model.RunStatus
	Hash   string
}

// normalize clamps Limit into [1, MaxListLimit], defaulting to DefaultListLimit.
func (f ListFilter) normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return f
}

func (f ListFilter) matches(s model.RunSummary) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.Hash != "" && s.RunHash != f.Hash {
		return false
	}
	return true
}

// Store is the run persistence capability used by the engine and transports.
type Store interface {
	Persist(ctx context.Context, doc model.RunDocument) error
	List(ctx context.Context, filter ListFilter) ([]model.RunSummary, error)
	Get(ctx context.Context, runID string) (model.RunDocument, error)
}

// runIDPattern keeps ids to hex and dashes so they cannot name paths
// outside the store directory.
var runIDPattern = regexp.MustCompile(`^[0-9a-fA-F-]{1,64}$`)

// ValidRunID reports whether id has the shape of a run id.
func ValidRunID(id string) bool { return runIDPattern.MatchString(id) }

const (
	docExt = ".json"
	tmpExt = ".json.tmp"
)

// FileStore keeps one JSON document per run in a directory. Writes go through
// a synced temp file and a rename, so readers never see a partial document
// unless every atomic strategy has failed.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("runstore: create dir: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(id string) string { return filepath.Join(s.dir, id+docExt) }

// Persist writes doc as <request_id>.json.
func (s *FileStore) Persist(_ context.Context, doc model.RunDocument) error {
	if !ValidRunID(doc.RequestID) {
		return fmt.Errorf("runstore: invalid run id %q", doc.RequestID)
	}
	doc.RawGenerations = redactRaw(doc.RawGenerations)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("runstore: marshal run: %w", err)
	}

	tmp := filepath.Join(s.dir, doc.RequestID+tmpExt)
	final := s.path(doc.RequestID)
	defer func() {
		if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("runstore: remove temp file", "path", tmp, "error", err)
		}
	}()

	if err := writeSynced(tmp, data); err != nil {
		return fmt.Errorf("runstore: write temp: %w", err)
	}

	err = rename(tmp, final)
	if err == nil {
		return nil
	}
	s.logger.Warn("runstore: rename failed, retrying after removing target", "run_id", doc.RequestID, "error", err)

	if rmErr := os.Remove(final); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		s.logger.Warn("runstore: remove target", "run_id", doc.RequestID, "error", rmErr)
	}
	if err = rename(tmp, final); err == nil {
		return nil
	}

	s.logger.Warn("runstore: fell back to non-atomic write", "run_id", doc.RequestID, "error", err)
	if err := copyFile(tmp, final); err != nil {
		return fmt.Errorf("runstore: copy fallback: %w", err)
	}
	return nil
}

// redactRaw masks credentials in provider I/O regardless of what the
// provider already masked. It returns a copy; the caller's maps are untouched.
func redactRaw(raws []model.RawGeneration) []model.RawGeneration {
	if raws == nil {
		return nil
	}
	out := make([]model.RawGeneration, len(raws))
	for i, g := range raws {
		g.RawRequest = redactIO(g.RawRequest)
		g.RawResponse = redactIO(g.RawResponse)
		out[i] = g
	}
	return out
}

func redactIO(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := redact.Value(m).(map[string]any)
	if headers, ok := out["headers"].(map[string]any); ok {
		for k := range headers {
			if redact.IsSecretHeader(k) {
				headers[k] = redact.Mask
			}
		}
	}
	return out
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // path is constructed from the store dir
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // path is constructed from the store dir
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // path is constructed from the store dir
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// List returns summaries newest first by file name. Unreadable or corrupt
// files are skipped.
func (s *FileStore) List(ctx context.Context, filter ListFilter) ([]model.RunSummary, error) {
	filter = filter.normalize()
	out := []model.RunSummary{}
	err := s.scan(ctx, func(sum model.RunSummary) bool {
		if filter.matches(sum) {
			out = append(out, sum)
		}
		return len(out) < filter.Limit
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scan visits every readable document's summary in descending file-name
// order until fn returns false.
func (s *FileStore) scan(ctx context.Context, fn func(model.RunSummary) bool) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("runstore: read dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, docExt) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	slices.Reverse(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum, err := s.readSummary(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Debug("runstore: skip unreadable run", "file", name, "error", err)
			continue
		}
		if !fn(sum) {
			return nil
		}
	}
	return nil
}

func (s *FileStore) readSummary(path string) (model.RunSummary, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is constructed from the store dir
	if err != nil {
		return model.RunSummary{}, err
	}
	var doc model.RunDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.RunSummary{}, err
	}
	return doc.Summary(), nil
}

// Get returns the full document for runID.
func (s *FileStore) Get(_ context.Context, runID string) (model.RunDocument, error) {
	if !ValidRunID(runID) {
		return model.RunDocument{}, ErrNotFound
	}
	data, err := os.ReadFile(s.path(runID))
	if errors.Is(err, os.ErrNotExist) {
		return model.RunDocument{}, ErrNotFound
	}
	if err != nil {
		return model.RunDocument{}, fmt.Errorf("runstore: read run: %w", err)
	}
	var doc model.RunDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.RunDocument{}, fmt.Errorf("runstore: decode run %s: %w", runID, err)
	}
	return doc, nil
}
