package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NethermindEth/chaosfeed/core"
)

func openTestDB(t *testing.T) *DBStorage {
	t.Helper()
	db, err := Open(InMemoryConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDBStoragePutGet(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Put("a", []byte("1")))
	v, err := db.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	_, err = db.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Delete("a"))
	_, err = db.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)

	m := db.Metrics()
	assert.Equal(t, int64(1), m.PutCount)
	assert.Equal(t, int64(3), m.GetCount)
	assert.Zero(t, m.Errors)
}

func TestDBStorageObjects(t *testing.T) {
	db := openTestDB(t)

	type thing struct{ Name string }
	require.NoError(t, db.PutObject("thing:1", thing{Name: "x"}))

	var got thing
	require.NoError(t, db.GetObject("thing:1", &got))
	assert.Equal(t, "x", got.Name)

	assert.ErrorIs(t, db.GetObject("thing:2", &got), ErrNotFound)
}

func TestDBStoragePrefixOperations(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.PutBatch(map[string][]byte{
		"p:2": []byte("b"),
		"p:1": []byte("a"),
		"q:1": []byte("z"),
	}))

	var keys []string
	require.NoError(t, db.IteratePrefix("p:", func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	}))
	assert.Equal(t, []string{"p:1", "p:2"}, keys)

	all, err := db.GetByPrefix("p:")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, db.DeleteByPrefix("p:"))
	all, err = db.GetByPrefix("p:")
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = db.Get("q:1")
	assert.NoError(t, err)
}

func TestDBStorageCloseTwice(t *testing.T) {
	db, err := Open(InMemoryConfig(), nil)
	require.NoError(t, err)
	assert.NoError(t, db.Close())
	assert.NoError(t, db.Close())
}

func records(n int) []core.IterationRecord {
	out := make([]core.IterationRecord, n)
	for i := range out {
		out[i] = core.IterationRecord{
			Iteration: i + 1,
			Outcome:   core.OutcomeApplied,
			Action:    core.ActionExchange{Agent: fmt.Sprintf("agent-%d", i)},
		}
	}
	return out
}

func TestIterationRepositoryRoundTrip(t *testing.T) {
	repo := NewIterationRepository(openTestDB(t))
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	// more than nine records to make sure keys sort numerically
	require.NoError(t, repo.SaveRun(RunInfo{ID: "run-1", Topic: "cats", StartedAt: start}, records(12)))

	got, err := repo.Records("run-1")
	require.NoError(t, err)
	require.Len(t, got, 12)
	for i, rec := range got {
		assert.Equal(t, i+1, rec.Iteration)
	}

	info, err := repo.Run("run-1")
	require.NoError(t, err)
	assert.Equal(t, 12, info.Count)
	assert.Equal(t, "cats", info.Topic)
}

func TestIterationRepositorySaveReplaces(t *testing.T) {
	repo := NewIterationRepository(openTestDB(t))

	require.NoError(t, repo.SaveRun(RunInfo{ID: "r"}, records(5)))
	require.NoError(t, repo.SaveRun(RunInfo{ID: "r"}, records(2)))

	got, err := repo.Records("r")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestIterationRepositoryRuns(t *testing.T) {
	repo := NewIterationRepository(openTestDB(t))

	_, err := repo.Latest()
	assert.ErrorIs(t, err, ErrNotFound)

	t1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveRun(RunInfo{ID: "old", StartedAt: t1}, records(1)))
	require.NoError(t, repo.SaveRun(RunInfo{ID: "new", StartedAt: t1.Add(time.Hour)}, records(1)))

	latest, err := repo.Latest()
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID)

	require.NoError(t, repo.DeleteRun("new"))
	runs, err := repo.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "old", runs[0].ID)

	empty, err := repo.Records("new")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestIterationRepositoryAppendRun(t *testing.T) {
	repo := NewIterationRepository(openTestDB(t))
	all := records(11)

	info, err := repo.AppendRun(RunInfo{ID: "r", Topic: "cats"}, all[:4])
	require.NoError(t, err)
	assert.Equal(t, 4, info.Count)

	info, err = repo.AppendRun(info, all[4:])
	require.NoError(t, err)
	assert.Equal(t, 11, info.Count)

	got, err := repo.Records("r")
	require.NoError(t, err)
	assert.Equal(t, all, got)

	stored, err := repo.Run("r")
	require.NoError(t, err)
	assert.Equal(t, info, stored)

	_, err = repo.AppendRun(RunInfo{}, all)
	assert.Error(t, err)
}
