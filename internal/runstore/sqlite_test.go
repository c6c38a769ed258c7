package runstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/runstore"
	"github.com/ashita-ai/prism/internal/testutil"
)

func openIndex(t *testing.T) *runstore.SQLiteIndex {
	t.Helper()
	idx, err := runstore.OpenSQLiteIndex(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteIndex_UpsertAndList(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, idx.Upsert(ctx, model.RunSummary{RunID: "c1", CreatedAt: base, Status: model.RunStatusSuccess, RunHash: "h1"}))
	require.NoError(t, idx.Upsert(ctx, model.RunSummary{RunID: "c2", CreatedAt: base.Add(time.Second), Status: model.RunStatusPartial, RunHash: "h2"}))
	require.NoError(t, idx.Upsert(ctx, model.RunSummary{RunID: "c3", CreatedAt: base.Add(2 * time.Second), Status: model.RunStatusSuccess, RunHash: "h1"}))
	// Re-upserting updates in place.
	require.NoError(t, idx.Upsert(ctx, model.RunSummary{RunID: "c1", CreatedAt: base, Status: model.RunStatusFailed, RunHash: "h1"}))

	all, err := idx.List(ctx, runstore.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c3", "c2", "c1"}, []string{all[0].RunID, all[1].RunID, all[2].RunID})
	assert.True(t, base.Equal(all[2].CreatedAt))
	assert.Equal(t, model.RunStatusFailed, all[2].Status)

	byHash, err := idx.List(ctx, runstore.ListFilter{Hash: "h1"})
	require.NoError(t, err)
	assert.Len(t, byHash, 2)

	byStatus, err := idx.List(ctx, runstore.ListFilter{Status: model.RunStatusPartial, Hash: "h2"})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "c2", byStatus[0].RunID)

	limited, err := idx.List(ctx, runstore.ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestIndexed_WithSQLite(t *testing.T) {
	files := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	// Written before the index existed.
	require.NoError(t, files.Persist(ctx, doc("d001", model.RunStatusSuccess, "h", base)))

	s := runstore.NewIndexed(files, openIndex(t), testutil.TestLogger())
	n, err := s.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Persist(ctx, doc("d002", model.RunStatusFailed, "h", base.Add(time.Minute))))

	got, err := s.List(ctx, runstore.ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d002", got[0].RunID)
	assert.Equal(t, "d001", got[1].RunID)
}
