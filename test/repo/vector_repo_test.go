package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/funtusov/telequery/internal/model"
	"github.com/funtusov/telequery/internal/repo"
	"github.com/funtusov/telequery/test/testutil"
)

// makeVec returns a 1536-dim unit-ish vector dominated by one axis, so
// cosine ordering between test vectors is predictable.
func makeVec(axis int) []float32 {
	v := make([]float32, 1536)
	for i := range v {
		v[i] = 0.001
	}
	v[axis] = 1
	return v
}

func vecEntry(id, chatID string, axis int, ts time.Time) model.VectorEntry {
	return model.VectorEntry{
		MessageID:  id,
		Document:   "doc " + id,
		ChatID:     chatID,
		UserID:     "u1",
		SenderName: "alice",
		Timestamp:  ts,
		Embedding:  makeVec(axis),
	}
}

func TestVectorRepo_UpsertAndQuery(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	testutil.ResetTables(t, db)

	r := repo.NewVectorRepo(db)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	e1 := vecEntry("m1", "c1", 0, ts)
	e2 := vecEntry("m2", "c1", 100, ts)
	require.NoError(t, r.Upsert(ctx, &e1))
	require.NoError(t, r.Upsert(ctx, &e2))

	hits, err := r.Query(ctx, makeVec(0), 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "m1", hits[0].MessageID)
	require.Greater(t, hits[0].Score, hits[1].Score)

	// Re-upsert replaces in place, never duplicates.
	e1.Document = "updated"
	require.NoError(t, r.Upsert(ctx, &e1))
	count, err := r.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestVectorRepo_ReplaceAll(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	testutil.ResetTables(t, db)

	r := repo.NewVectorRepo(db)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	old := vecEntry("old", "c1", 0, ts)
	require.NoError(t, r.Upsert(ctx, &old))

	fresh := []model.VectorEntry{
		vecEntry("m1", "c1", 1, ts),
		vecEntry("m2", "c1", 2, ts),
	}
	require.NoError(t, r.ReplaceAll(ctx, fresh))

	hits, err := r.Query(ctx, makeVec(1), 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, hit := range hits {
		require.NotEqual(t, "old", hit.MessageID)
	}
}

func TestVectorRepo_ReplaceAllEmpty(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	testutil.ResetTables(t, db)

	r := repo.NewVectorRepo(db)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := vecEntry("m1", "c1", 0, ts)
	require.NoError(t, r.Upsert(ctx, &seed))
	require.NoError(t, r.ReplaceAll(ctx, nil))

	count, err := r.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}
