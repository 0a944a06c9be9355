package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBadger(t *testing.T) *BadgerPersister {
	t.Helper()
	p, err := OpenBadger("", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestBadgerPersisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := openTestBadger(t)

	lcp := 2100.0
	run := analyzedRun("r1", 1800, "https://example.com/hero.jpg", &lcp)
	require.NoError(t, p.SaveRun(ctx, run))
	require.NoError(t, p.SaveRun(ctx, testRun("r2", "https://example.com/", time.Minute)))

	runs, err := p.LoadRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "r1", runs[0].ID)
	require.NotNil(t, runs[0].Analysis)
	assert.Equal(t, 1800.0, runs[0].Analysis.TotalDuration)
	assert.Equal(t, "https://example.com/hero.jpg", runs[0].Analysis.Bottleneck.URL())
	assert.True(t, runs[0].AnalyzedAt.Equal(run.AnalyzedAt))

	require.NoError(t, p.DeleteRun(ctx, "r1"))
	require.NoError(t, p.DeleteRun(ctx, "never-existed"))
	runs, err = p.LoadRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].ID)

	require.NoError(t, p.Clear(ctx))
	runs, err = p.LoadRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestBadgerPersisterCancelled(t *testing.T) {
	p := openTestBadger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, p.SaveRun(ctx, testRun("r1", "u", 0)))
	assert.Error(t, p.Clear(ctx))
}

func TestRunStoreWithPersistence(t *testing.T) {
	ctx := context.Background()
	p := openTestBadger(t)

	s := NewRunStore(2, p)
	require.NoError(t, s.Add(ctx, testRun("old", "u", 0)))
	require.NoError(t, s.Add(ctx, testRun("mid", "u", time.Second)))
	require.NoError(t, s.Add(ctx, testRun("new", "u", 2*time.Second)))
	assert.True(t, s.Stats().Persistent)

	// Eviction also removes the run from the database.
	runs, err := p.LoadRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	restored := NewRunStore(10, p)
	n, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	latest, err := restored.Latest()
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID, "restore replays in analyzed-at order")

	require.NoError(t, restored.Clear(ctx))
	runs, err = p.LoadRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRestoreWithoutPersister(t *testing.T) {
	n, err := NewRunStore(5, nil).Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
