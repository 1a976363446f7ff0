package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nrterrors "github.com/Aman-CERP/nrtindex/internal/errors"
	"github.com/Aman-CERP/nrtindex/internal/metrics"
	"github.com/Aman-CERP/nrtindex/internal/store"
)

func newTestManager(t *testing.T, root string, opts Options) *Manager {
	t.Helper()
	st, err := store.Open(root)
	require.NoError(t, err)
	m := NewManager(st, opts)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func docs(n int) []store.Document {
	out := make([]store.Document, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, store.Document{ID: fmt.Sprint(i), Content: fmt.Sprintf("entity number %d", i)})
	}
	return out
}

func TestManager_PoolCreatesWriter(t *testing.T) {
	m := newTestManager(t, "", Options{})

	pool, err := m.Pool()
	require.NoError(t, err)
	require.NotNil(t, pool)

	st := m.Stats()
	assert.True(t, st.WriterOpen)
	assert.True(t, st.PoolOpen)
	assert.True(t, m.Store().Exists())
}

func TestManager_WriterReplacedAfterClose(t *testing.T) {
	m := newTestManager(t, "", Options{})

	w1, err := m.Writer()
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	w2, err := m.Writer()
	require.NoError(t, err)
	assert.NotSame(t, w1, w2)
	assert.False(t, w2.Closed())
}

func TestManager_RebuildCommitsInSteps(t *testing.T) {
	// Given: 12 entities and a commit every 5 documents
	reg := metrics.New(nil)
	m := newTestManager(t, t.TempDir(), Options{Metrics: reg})
	var progressed []int

	// When: rebuilding
	err := m.Rebuild(context.Background(), docs(12), func(done, total int) {
		assert.Equal(t, 12, total)
		progressed = append(progressed, done)
	})
	require.NoError(t, err)

	// Then: 12/5 step commits + final commit + close
	assert.Equal(t, 4.0, testutil.ToFloat64(reg.Commits))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Rebuilds))
	assert.Len(t, progressed, 12)

	n, err := m.Store().DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(12), n)

	// And: the marker is gone
	_, err = os.Stat(filepath.Join(m.Store().Root(), store.RebuildMarkerFile))
	assert.True(t, os.IsNotExist(err))
}

func TestManager_RebuildStartsNewLineage(t *testing.T) {
	// Given: a lineage that has issued generations
	m := newTestManager(t, "", Options{})
	w, err := m.Writer()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := w.AddDocument("stale", "old text")
		require.NoError(t, err)
	}
	old := m.Tracker()
	require.Equal(t, uint64(3), old.Issued())

	// When: rebuilding from two documents
	require.NoError(t, m.Rebuild(context.Background(), docs(2), nil))

	// Then: a new tracker with tokens restarting at 1
	assert.NotSame(t, old, m.Tracker())
	assert.Equal(t, uint64(2), m.Tracker().Issued())
	assert.True(t, w.Closed())

	w2, err := m.Writer()
	require.NoError(t, err)
	gen, err := w2.AddDocument("3", "new")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), gen)

	// And: the old content is gone
	assert.Empty(t, storeIDs(t, m.Store(), "old"))
}

func TestManager_RebuildIsIdempotent(t *testing.T) {
	m := newTestManager(t, "", Options{})
	in := docs(7)

	require.NoError(t, m.Rebuild(context.Background(), in, nil))
	first := storeIDs(t, m.Store(), "entity")
	require.NoError(t, m.Rebuild(context.Background(), in, nil))
	second := storeIDs(t, m.Store(), "entity")

	assert.ElementsMatch(t, first, second)
	assert.Len(t, second, 7)
}

func TestManager_RebuildCancelledLeavesIndexStale(t *testing.T) {
	// Given: a cancelled context
	reg := metrics.New(nil)
	m := newTestManager(t, t.TempDir(), Options{Metrics: reg})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When: rebuilding
	err := m.Rebuild(ctx, docs(3), nil)

	// Then: it fails, and the index reports stale until rebuilt
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.RebuildFailures))
	_, err = m.OpenSnapshot()
	assert.ErrorIs(t, err, nrterrors.ErrIndexFormatStale)

	require.NoError(t, m.Rebuild(context.Background(), docs(3), nil))
	snap, err := m.OpenSnapshot()
	require.NoError(t, err)
	assert.NoError(t, snap.Close())
}

func TestManager_SchedulerLifecycle(t *testing.T) {
	m := newTestManager(t, "", Options{MaxStale: 10 * time.Millisecond})

	require.NoError(t, m.StartScheduler())
	require.NoError(t, m.StartScheduler())
	assert.True(t, m.Stats().SchedulerActive)

	w, err := m.Writer()
	require.NoError(t, err)
	gen, err := w.AddDocument("1", "red car")
	require.NoError(t, err)
	require.NoError(t, w.Commit())
	assert.True(t, m.Tracker().Wait(context.Background(), gen, time.Second))

	m.StopScheduler()
	assert.False(t, m.Stats().SchedulerActive)
}

func TestManager_ResetClosesComponents(t *testing.T) {
	m := newTestManager(t, "", Options{})
	_, err := m.Pool()
	require.NoError(t, err)
	require.NoError(t, m.StartScheduler())

	require.NoError(t, m.Reset())

	st := m.Stats()
	assert.False(t, st.WriterOpen)
	assert.False(t, st.PoolOpen)
	assert.False(t, st.SchedulerActive)
	assert.Zero(t, st.Issued)
}

func TestManager_OpenSnapshotMissing(t *testing.T) {
	m := newTestManager(t, t.TempDir(), Options{})

	_, err := m.OpenSnapshot()

	assert.ErrorIs(t, err, nrterrors.ErrIndexMissing)
}
