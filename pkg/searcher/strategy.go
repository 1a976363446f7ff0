package searcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/nrtindex/internal/index"
	"github.com/Aman-CERP/nrtindex/internal/store"
)

// StrategyKind names an access strategy.
type StrategyKind string

const (
	// Legacy commits every write and opens a fresh snapshot per query.
	Legacy StrategyKind = "legacy"
	// CachedNRT shares one writer, batches commits and serves queries from
	// a pool refreshed in the background.
	CachedNRT StrategyKind = "cached_nrt"
	// ManagedPool batches commits and refreshes the pool before every
	// acquire.
	ManagedPool StrategyKind = "managed_pool"
	// TrackedReopen is CachedNRT plus generation tracking: tracked writes
	// return a token that searches can wait for.
	TrackedReopen StrategyKind = "tracked_reopen"
	// DirectReader batches commits like CachedNRT but keeps one shared
	// reader opened from the writer's lineage, refreshed only on request.
	DirectReader StrategyKind = "direct_reader"
)

// StrategyKinds lists the available strategies.
func StrategyKinds() []StrategyKind {
	return []StrategyKind{Legacy, CachedNRT, ManagedPool, TrackedReopen, DirectReader}
}

// MutateFunc applies one operation to the writer and returns its
// generation.
type MutateFunc func(w *index.Writer) (uint64, error)

// Strategy decides how a processor reads and writes one index lineage.
// Implementations share the lineage's Manager and are safe for concurrent
// use.
type Strategy interface {
	Kind() StrategyKind
	// Acquire returns a snapshot and the function that releases it.
	Acquire(ctx context.Context) (*store.Snapshot, func() error, error)
	// Mutate runs op against the shared writer. Strategies that support
	// read-your-write commit tracked mutations before returning.
	Mutate(tracked bool, op MutateFunc) (uint64, error)
	// MaybeRefresh brings the strategy's snapshot up to the last commit.
	MaybeRefresh() error
	// WaitForGeneration reports whether a snapshot covering gen became
	// searchable within timeout.
	WaitForGeneration(ctx context.Context, gen uint64, timeout time.Duration) bool
}

// NewStrategy builds the strategy kind over m. policy is used by the
// batching strategies and may be nil for Legacy.
func NewStrategy(kind StrategyKind, m *index.Manager, policy *index.CommitPolicy, logger *slog.Logger) (Strategy, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == nil {
		policy = index.NewCommitPolicy(index.DefaultCommitThreshold, nil)
	}
	base := poolBase{manager: m, policy: policy, logger: logger}
	switch kind {
	case Legacy:
		return &legacyStrategy{manager: m}, nil
	case CachedNRT:
		return &cachedNRTStrategy{poolBase: base}, nil
	case ManagedPool:
		return &managedPoolStrategy{poolBase: base}, nil
	case TrackedReopen:
		return &trackedReopenStrategy{poolBase: base}, nil
	case DirectReader:
		return &directReaderStrategy{poolBase: base}, nil
	default:
		return nil, ErrUnknownStrategy
	}
}

// legacyStrategy never shares a reader: every query opens a snapshot of the
// latest commit, and every write commits before returning.
type legacyStrategy struct {
	manager *index.Manager
}

func (s *legacyStrategy) Kind() StrategyKind { return Legacy }

func (s *legacyStrategy) Acquire(ctx context.Context) (*store.Snapshot, func() error, error) {
	snap, err := s.manager.OpenSnapshot()
	if err != nil {
		return nil, nil, err
	}
	return snap, snap.Close, nil
}

func (s *legacyStrategy) Mutate(_ bool, op MutateFunc) (uint64, error) {
	w, err := s.manager.Writer()
	if err != nil {
		return 0, err
	}
	gen, err := op(w)
	if err != nil {
		return gen, err
	}
	return gen, w.Commit()
}

func (s *legacyStrategy) MaybeRefresh() error { return nil }

// WaitForGeneration never blocks: every write is committed and every query
// reads the latest commit.
func (s *legacyStrategy) WaitForGeneration(_ context.Context, gen uint64, _ time.Duration) bool {
	return s.manager.Tracker().IsCommitted(gen)
}

// poolBase holds what the pooled strategies share.
type poolBase struct {
	manager *index.Manager
	policy  *index.CommitPolicy
	logger  *slog.Logger
}

func (b *poolBase) acquireFrom(pool *index.SearcherPool) (*store.Snapshot, func() error, error) {
	h, err := pool.Acquire()
	if err != nil {
		return nil, nil, err
	}
	return h.Snapshot(), func() error { return pool.Release(h) }, nil
}

// mutate applies op under the commit policy. Tracked operations commit at
// once so their generation can become searchable on the next refresh.
func (b *poolBase) mutate(tracked bool, op MutateFunc) (uint64, error) {
	w, err := b.manager.Writer()
	if err != nil {
		return 0, err
	}
	if tracked {
		gen, err := op(w)
		if err != nil {
			return gen, err
		}
		return gen, w.Commit()
	}

	var gen uint64
	err = b.policy.Do(func() error {
		var opErr error
		gen, opErr = op(w)
		return opErr
	}, w.Commit)
	return gen, err
}

// scheduledPool returns the pool with its reopen scheduler running.
func (b *poolBase) scheduledPool() (*index.SearcherPool, error) {
	if err := b.manager.StartScheduler(); err != nil {
		return nil, err
	}
	return b.manager.Pool()
}

func (b *poolBase) refresh() error {
	pool, err := b.manager.Pool()
	if err != nil {
		return err
	}
	return pool.MaybeRefreshBlocking()
}

// cachedNRTStrategy serves queries from the shared pool without refreshing
// inline; the reopen scheduler bounds staleness.
type cachedNRTStrategy struct {
	poolBase
}

func (s *cachedNRTStrategy) Kind() StrategyKind { return CachedNRT }

func (s *cachedNRTStrategy) Acquire(ctx context.Context) (*store.Snapshot, func() error, error) {
	pool, err := s.scheduledPool()
	if err != nil {
		return nil, nil, err
	}
	return s.acquireFrom(pool)
}

// Mutate always goes through the commit policy; tracking does not force a
// commit here.
func (s *cachedNRTStrategy) Mutate(_ bool, op MutateFunc) (uint64, error) {
	return s.mutate(false, op)
}

func (s *cachedNRTStrategy) MaybeRefresh() error { return s.refresh() }

// WaitForGeneration does not block: it reports whether the current
// snapshot already covers gen.
func (s *cachedNRTStrategy) WaitForGeneration(_ context.Context, gen uint64, _ time.Duration) bool {
	if _, err := s.scheduledPool(); err != nil {
		s.logger.Warn("reopen_scheduler_unavailable", slog.String("error", err.Error()))
		return false
	}
	return s.manager.Tracker().IsSearchable(gen)
}

// managedPoolStrategy refreshes before every acquire. A refresh already
// running elsewhere is not waited for.
type managedPoolStrategy struct {
	poolBase
}

func (s *managedPoolStrategy) Kind() StrategyKind { return ManagedPool }

func (s *managedPoolStrategy) Acquire(ctx context.Context) (*store.Snapshot, func() error, error) {
	pool, err := s.manager.Pool()
	if err != nil {
		return nil, nil, err
	}
	if _, err := pool.MaybeRefresh(); err != nil {
		return nil, nil, err
	}
	return s.acquireFrom(pool)
}

func (s *managedPoolStrategy) Mutate(tracked bool, op MutateFunc) (uint64, error) {
	return s.mutate(tracked, op)
}

func (s *managedPoolStrategy) MaybeRefresh() error { return s.refresh() }

// WaitForGeneration refreshes in the caller's goroutine; there is no
// scheduler to wake.
func (s *managedPoolStrategy) WaitForGeneration(ctx context.Context, gen uint64, timeout time.Duration) bool {
	if err := s.refresh(); err != nil {
		s.logger.Warn("searcher_refresh_failed", slog.String("error", err.Error()))
		return false
	}
	return s.manager.Tracker().Wait(ctx, gen, timeout)
}

// trackedReopenStrategy is the pooled strategy with read-your-write waits
// driven by the reopen scheduler.
type trackedReopenStrategy struct {
	poolBase
}

func (s *trackedReopenStrategy) Kind() StrategyKind { return TrackedReopen }

func (s *trackedReopenStrategy) Acquire(ctx context.Context) (*store.Snapshot, func() error, error) {
	pool, err := s.scheduledPool()
	if err != nil {
		return nil, nil, err
	}
	return s.acquireFrom(pool)
}

func (s *trackedReopenStrategy) Mutate(tracked bool, op MutateFunc) (uint64, error) {
	return s.mutate(tracked, op)
}

func (s *trackedReopenStrategy) MaybeRefresh() error { return s.refresh() }

func (s *trackedReopenStrategy) WaitForGeneration(ctx context.Context, gen uint64, timeout time.Duration) bool {
	if _, err := s.scheduledPool(); err != nil {
		s.logger.Warn("reopen_scheduler_unavailable", slog.String("error", err.Error()))
		return false
	}
	return s.manager.Tracker().Wait(ctx, gen, timeout)
}

// directReaderStrategy opens the shared reader once, together with the
// writer, and builds a searcher over it per query. Nothing refreshes it in
// the background: queries see the index as of the last MaybeRefresh.
type directReaderStrategy struct {
	poolBase
}

func (s *directReaderStrategy) Kind() StrategyKind { return DirectReader }

func (s *directReaderStrategy) Acquire(ctx context.Context) (*store.Snapshot, func() error, error) {
	pool, err := s.manager.Pool()
	if err != nil {
		return nil, nil, err
	}
	return s.acquireFrom(pool)
}

func (s *directReaderStrategy) Mutate(_ bool, op MutateFunc) (uint64, error) {
	return s.mutate(false, op)
}

func (s *directReaderStrategy) MaybeRefresh() error { return s.refresh() }

// WaitForGeneration does not block; with no scheduler, waiting could only
// time out.
func (s *directReaderStrategy) WaitForGeneration(_ context.Context, gen uint64, _ time.Duration) bool {
	return s.manager.Tracker().IsSearchable(gen)
}
