package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndList(t *testing.T) {
	j := openMemory(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, j.Record(ctx, Entry{MessageType: "MT103", Outcome: "success", PayloadBytes: 120, CreatedAt: base}))
	require.NoError(t, j.Record(ctx, Entry{MessageType: "MT202", Outcome: "quota_exceeded", Message: "out of credits", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, j.Record(ctx, Entry{MessageType: "MT940", Outcome: "failure", CreatedAt: base.Add(2 * time.Minute)}))

	entries, err := j.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "MT940", entries[0].MessageType, "newest first")
	assert.Equal(t, "MT202", entries[1].MessageType)
	assert.Equal(t, "out of credits", entries[1].Message)
	assert.NotEmpty(t, entries[0].ID)
	assert.True(t, entries[1].CreatedAt.Equal(base.Add(time.Minute)))

	all, err := j.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, 120, all[2].PayloadBytes)
}

func TestCountByOutcome(t *testing.T) {
	j := openMemory(t)
	ctx := context.Background()

	for _, outcome := range []string{"success", "success", "failure"} {
		require.NoError(t, j.Record(ctx, Entry{MessageType: "MT103", Outcome: outcome}))
	}

	counts, err := j.CountByOutcome(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"success": 2, "failure": 1}, counts)
}

func TestPrune(t *testing.T) {
	j := openMemory(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, j.Record(ctx, Entry{MessageType: "MT103", Outcome: "success", CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, j.Record(ctx, Entry{MessageType: "MT103", Outcome: "success", CreatedAt: now}))

	n, err := j.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := j.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOpen_FileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), Entry{MessageType: "MT102", Outcome: "success"}))
	require.NoError(t, j.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	entries, err := reopened.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
