package runstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/redact"
	"github.com/ashita-ai/prism/internal/runstore"
	"github.com/ashita-ai/prism/internal/testutil"
)

const secretKey = "sk-live-ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func doc(id string, status model.RunStatus, hash string, created time.Time) model.RunDocument {
	text := "answer"
	return model.RunDocument{
		RequestID:        id,
		RunHash:          hash,
		SchemaVersion:    model.SchemaVersion,
		APIVersion:       model.APIVersion,
		TimestampUTC:     created,
		CanonicalRequest: []byte(`{"models":["mock:echo"],"params":{},"prompt":"hi"}`),
		Request:          model.EvaluateRequest{Prompt: "hi", Models: []string{"mock:echo"}},
		Response: model.EvaluateResponse{
			RequestID: id,
			CreatedAt: created,
			RunHash:   hash,
			Status:    status,
			Results: []model.ModelResult{
				model.Succeeded("mock:echo", "mock", model.GenerationResult{Text: &text}, 1.5),
			},
		},
		RawGenerations: []model.RawGeneration{{
			ModelID:  "mock:echo",
			Provider: "mock",
			RawRequest: redact.RawIO("https://api.example.com/v1/chat",
				map[string]any{"Authorization": "Bearer " + secretKey, "Accept": "application/json"},
				map[string]any{"prompt": "hi", "api_key_echo": secretKey, "max_tokens": 16}),
		}},
	}
}

func newStore(t *testing.T) *runstore.FileStore {
	t.Helper()
	s, err := runstore.NewFileStore(t.TempDir(), testutil.TestLogger())
	require.NoError(t, err)
	return s
}

func TestFileStore_RoundTripWithRedaction(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := doc("0190a1b2c3d4e5f60718293a4b5c6d7e", model.RunStatusSuccess, "h1", created)

	require.NoError(t, s.Persist(ctx, in))

	raw, err := os.ReadFile(filepath.Join(s.Dir(), in.RequestID+".json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), secretKey)
	assert.Contains(t, string(raw), redact.Mask)

	got, err := s.Get(ctx, in.RequestID)
	require.NoError(t, err)
	assert.Equal(t, in.RequestID, got.RequestID)
	assert.Equal(t, in.RunHash, got.RunHash)
	assert.True(t, created.Equal(got.Response.CreatedAt))
	assert.JSONEq(t, string(in.CanonicalRequest), string(got.CanonicalRequest))
	require.Len(t, got.Response.Results, 1)
	assert.Equal(t, "answer", *got.Response.Results[0].Text)

	headers := got.RawGenerations[0].RawRequest["headers"].(map[string]any)
	assert.Equal(t, redact.Mask, headers["Authorization"])
	assert.Equal(t, "application/json", headers["Accept"])
	body := got.RawGenerations[0].RawRequest["body"].(map[string]any)
	assert.Equal(t, "sk-l"+redact.Mask+"6789", body["api_key_echo"])
	assert.Equal(t, float64(16), body["max_tokens"])

	// Redaction is one-way: persisting the read-back document stays masked.
	require.NoError(t, s.Persist(ctx, got))
	again, err := s.Get(ctx, in.RequestID)
	require.NoError(t, err)
	assert.Equal(t, got.RawGenerations[0].RawRequest, again.RawGenerations[0].RawRequest)
}

func TestFileStore_RedactsUnmaskedProviderIO(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	in := doc("0190a1b2c3d4e5f60718293a4b5c6d7f", model.RunStatusSuccess, "h1", time.Now())
	// A backend that records its raw I/O without masking anything.
	in.RawGenerations = []model.RawGeneration{{
		ModelID:  "custom:m",
		Provider: "custom",
		RawRequest: map[string]any{
			"url":     "https://llm.example.com/generate",
			"headers": map[string]string{"X-Api-Key": "short-but-secret", "Accept": "application/json"},
			"body":    map[string]any{"key": secretKey},
		},
		RawResponse: map[string]any{"echo": []any{secretKey}},
	}}
	reqBefore := in.RawGenerations[0].RawRequest["body"].(map[string]any)["key"]

	require.NoError(t, s.Persist(ctx, in))

	raw, err := os.ReadFile(filepath.Join(s.Dir(), in.RequestID+".json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), secretKey)
	assert.NotContains(t, string(raw), "short-but-secret")

	got, err := s.Get(ctx, in.RequestID)
	require.NoError(t, err)
	headers := got.RawGenerations[0].RawRequest["headers"].(map[string]any)
	assert.Equal(t, redact.Mask, headers["X-Api-Key"])
	assert.Equal(t, "application/json", headers["Accept"])

	// The caller's document is not modified.
	assert.Equal(t, secretKey, reqBefore)
	assert.Equal(t, secretKey, in.RawGenerations[0].RawRequest["body"].(map[string]any)["key"])
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Persist(context.Background(), doc("aa01", model.RunStatusSuccess, "h", time.Now())))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "aa01.json", entries[0].Name())
}

func TestFileStore_PersistRejectsBadID(t *testing.T) {
	s := newStore(t)
	err := s.Persist(context.Background(), doc("../escape", model.RunStatusSuccess, "h", time.Now()))
	assert.Error(t, err)
}

func TestFileStore_List(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Persist(ctx, doc("a001", model.RunStatusSuccess, "h1", base)))
	require.NoError(t, s.Persist(ctx, doc("a002", model.RunStatusFailed, "h2", base.Add(time.Minute))))
	require.NoError(t, s.Persist(ctx, doc("a003", model.RunStatusSuccess, "h1", base.Add(2*time.Minute))))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "a004.json"), []byte("{not json"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("ignore"), 0o600))

	t.Run("newest first, corrupt skipped", func(t *testing.T) {
		got, err := s.List(ctx, runstore.ListFilter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "a003", got[0].RunID)
		assert.Equal(t, "a002", got[1].RunID)
		assert.Equal(t, "a001", got[2].RunID)
	})

	t.Run("status", func(t *testing.T) {
		got, err := s.List(ctx, runstore.ListFilter{Status: model.RunStatusFailed})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a002", got[0].RunID)
	})

	t.Run("hash", func(t *testing.T) {
		got, err := s.List(ctx, runstore.ListFilter{Hash: "h1"})
		require.NoError(t, err)
		require.Len(t, got, 2)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := s.List(ctx, runstore.ListFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a003", got[0].RunID)
	})
}

func TestFileStore_ListEmpty(t *testing.T) {
	got, err := newStore(t).List(context.Background(), runstore.ListFilter{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFileStore_GetNotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, id := range []string{"abc123", "../../etc/passwd", "", strings.Repeat("a", 65)} {
		_, err := s.Get(ctx, id)
		assert.ErrorIs(t, err, runstore.ErrNotFound, id)
	}
}

type brokenIndex struct{}

func (brokenIndex) Upsert(context.Context, model.RunSummary) error { return errors.New("index down") }
func (brokenIndex) List(context.Context, runstore.ListFilter) ([]model.RunSummary, error) {
	return nil, errors.New("index down")
}
func (brokenIndex) Close() error { return nil }

func TestIndexed_FallsBackToFiles(t *testing.T) {
	s := runstore.NewIndexed(newStore(t), brokenIndex{}, testutil.TestLogger())
	ctx := context.Background()
	require.NoError(t, s.Persist(ctx, doc("b001", model.RunStatusSuccess, "h", time.Now())))

	got, err := s.List(ctx, runstore.ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b001", got[0].RunID)

	d, err := s.Get(ctx, "b001")
	require.NoError(t, err)
	assert.Equal(t, "b001", d.RequestID)
}
