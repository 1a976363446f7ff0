package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Aman-CERP/nrtindex/internal/store"
)

// poolFixture builds store, writer and pool without t.Cleanup so that the
// caller can close everything before checking for leaked goroutines.
type poolFixture struct {
	st   *store.Store
	tr   *GenerationTracker
	w    *Writer
	pool *SearcherPool
}

func newPoolFixture(t *testing.T) *poolFixture {
	t.Helper()
	st, err := store.Open("")
	require.NoError(t, err)
	tr := NewGenerationTracker()
	w, err := OpenWriter(context.Background(), st, store.CreateOrAppend, tr, WriterOptions{})
	require.NoError(t, err)
	pool, err := NewSearcherPool(st, tr, nil, nil)
	require.NoError(t, err)
	return &poolFixture{st: st, tr: tr, w: w, pool: pool}
}

func (f *poolFixture) close() error {
	return errors.Join(f.pool.Close(), f.w.Close(), f.st.Close())
}

func TestReopenScheduler_RefreshesAtMaxStale(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// Given: a scheduler with a short max stale interval
	f := newPoolFixture(t)
	defer func() { assert.NoError(t, f.close()) }()

	sched := NewReopenScheduler(f.pool, f.tr, 20*time.Millisecond, 5*time.Millisecond, nil)
	sched.Start()
	defer sched.Stop()

	// When: a write is committed
	gen, err := f.w.AddDocument("1", "red car")
	require.NoError(t, err)
	require.NoError(t, f.w.Commit())

	// Then: the pool catches up without anyone asking
	require.Eventually(t, func() bool { return f.pool.Generation() >= gen }, time.Second, 5*time.Millisecond)
}

func TestReopenScheduler_WaiterUsesMinStale(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// Given: a scheduler that would otherwise wait an hour
	f := newPoolFixture(t)
	defer func() { assert.NoError(t, f.close()) }()

	sched := NewReopenScheduler(f.pool, f.tr, time.Hour, 10*time.Millisecond, nil)
	sched.Start()
	defer sched.Stop()

	gen, err := f.w.AddDocument("1", "red car")
	require.NoError(t, err)
	require.NoError(t, f.w.Commit())

	// When: a caller waits for the generation
	start := time.Now()
	ok := f.tr.Wait(context.Background(), gen, time.Second)

	// Then: the scheduler refreshed promptly
	assert.True(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestReopenScheduler_StartStopIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newPoolFixture(t)
	defer func() { assert.NoError(t, f.close()) }()

	sched := NewReopenScheduler(f.pool, f.tr, 0, 0, nil)
	assert.False(t, sched.Running())

	sched.Start()
	sched.Start()
	assert.True(t, sched.Running())

	sched.Stop()
	sched.Stop()
	assert.False(t, sched.Running())

	// A stopped scheduler cannot be restarted.
	sched.Start()
	assert.False(t, sched.Running())
}

func TestReopenScheduler_ExitsWhenPoolClosed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newPoolFixture(t)
	defer func() { assert.NoError(t, f.close()) }()

	sched := NewReopenScheduler(f.pool, f.tr, 5*time.Millisecond, time.Millisecond, nil)
	sched.Start()
	require.NoError(t, f.pool.Close())

	// Stop still joins cleanly after the loop has exited on its own.
	time.Sleep(20 * time.Millisecond)
	sched.Stop()
}
