package storage_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/runstore"
	"github.com/ashita-ai/prism/internal/storage"
	"github.com/ashita-ai/prism/internal/testutil"
	"github.com/ashita-ai/prism/migrations"
)

var (
	containerOnce sync.Once
	container     *testutil.TestContainer
	containerErr  error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if container != nil {
		container.Terminate()
	}
	os.Exit(code)
}

// testDB starts the shared container on first use and returns a migrated DB.
// Tests are skipped when no container runtime is available.
func testDB(t *testing.T) *storage.DB {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	containerOnce.Do(func() {
		container, containerErr = testutil.StartPostgres(context.Background())
	})
	require.NoError(t, containerErr)

	db, err := container.NewTestDB(context.Background(), testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.RunMigrations(context.Background(), migrations.FS))
	require.NoError(t, db.Ping(context.Background()))
}

func TestRunIndex_UpsertAndList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	prefix := t.Name()

	sums := []model.RunSummary{
		{RunID: prefix + "-1", CreatedAt: base, Status: model.RunStatusSuccess, RunHash: prefix + "-h1"},
		{RunID: prefix + "-2", CreatedAt: base.Add(time.Second), Status: model.RunStatusPartial, RunHash: prefix + "-h1"},
		{RunID: prefix + "-3", CreatedAt: base.Add(2 * time.Second), Status: model.RunStatusFailed, RunHash: prefix + "-h2"},
	}
	for _, s := range sums {
		require.NoError(t, db.Upsert(ctx, s))
	}

	byHash, err := db.List(ctx, runstore.ListFilter{Hash: prefix + "-h1"})
	require.NoError(t, err)
	require.Len(t, byHash, 2)
	assert.Equal(t, prefix+"-2", byHash[0].RunID)
	assert.Equal(t, prefix+"-1", byHash[1].RunID)
	assert.True(t, base.Equal(byHash[1].CreatedAt))

	both, err := db.List(ctx, runstore.ListFilter{Hash: prefix + "-h1", Status: model.RunStatusPartial})
	require.NoError(t, err)
	require.Len(t, both, 1)

	// Upsert overwrites the status.
	sums[0].Status = model.RunStatusFailed
	require.NoError(t, db.Upsert(ctx, sums[0]))
	failed, err := db.List(ctx, runstore.ListFilter{Hash: prefix + "-h1", Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, prefix+"-1", failed[0].RunID)

	limited, err := db.List(ctx, runstore.ListFilter{Hash: prefix + "-h1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRunIndex_BacksIndexedStore(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	files, err := runstore.NewFileStore(t.TempDir(), testutil.TestLogger())
	require.NoError(t, err)

	store := runstore.NewIndexed(files, db, testutil.TestLogger())
	doc := model.RunDocument{
		RequestID: "feedface0001",
		RunHash:   "hash-" + t.Name(),
		Response: model.EvaluateResponse{
			RequestID: "feedface0001",
			CreatedAt: time.Now().UTC(),
			Status:    model.RunStatusSuccess,
		},
	}
	require.NoError(t, store.Persist(ctx, doc))

	got, err := store.List(ctx, runstore.ListFilter{Hash: doc.RunHash})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "feedface0001", got[0].RunID)
}
