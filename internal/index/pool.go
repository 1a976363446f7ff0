package index

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	nrterrors "github.com/Aman-CERP/nrtindex/internal/errors"
	"github.com/Aman-CERP/nrtindex/internal/metrics"
	"github.com/Aman-CERP/nrtindex/internal/store"
)

// SearcherPool hands out the current searcher handle and replaces it with a
// fresher snapshot on refresh. Callers Acquire a handle, search, and Release
// it; a retired handle stays usable until its last holder releases it.
type SearcherPool struct {
	store   *store.Store
	tracker *GenerationTracker
	metrics *metrics.Metrics
	logger  *slog.Logger

	refreshMu sync.Mutex
	current   atomic.Pointer[Handle]
	closed    atomic.Bool
}

// NewSearcherPool opens the first snapshot. The index must exist.
func NewSearcherPool(st *store.Store, tracker *GenerationTracker, m *metrics.Metrics, logger *slog.Logger) (*SearcherPool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &SearcherPool{
		store:   st,
		tracker: tracker,
		metrics: m,
		logger:  logger,
	}

	gen := tracker.Committed()
	snap, err := st.Snapshot(store.OpenExisting)
	if err != nil {
		return nil, err
	}
	p.current.Store(NewHandle(snap, gen))
	tracker.MarkSearching(gen)
	return p, nil
}

// Acquire returns the current handle with a reference taken.
func (p *SearcherPool) Acquire() (*Handle, error) {
	for {
		if p.closed.Load() {
			return nil, nrterrors.ErrPoolClosed
		}
		h := p.current.Load()
		if h == nil {
			return nil, nrterrors.ErrPoolClosed
		}
		if h.TryIncRef() {
			return h, nil
		}
		// Retired between Load and TryIncRef; its replacement is already
		// installed.
		runtime.Gosched()
	}
}

// Release returns a handle obtained from Acquire.
func (p *SearcherPool) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	return h.DecRef()
}

// MaybeRefresh replaces the current handle if newer generations have been
// committed. When another refresh is already running it returns at once
// and the caller keeps searching the existing snapshot.
func (p *SearcherPool) MaybeRefresh() (bool, error) {
	if !p.refreshMu.TryLock() {
		return false, nil
	}
	defer p.refreshMu.Unlock()
	return p.refreshLocked()
}

// MaybeRefreshBlocking is MaybeRefresh that waits for a concurrent refresh
// to finish and then checks again.
func (p *SearcherPool) MaybeRefreshBlocking() error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()
	_, err := p.refreshLocked()
	return err
}

func (p *SearcherPool) refreshLocked() (bool, error) {
	if p.closed.Load() {
		return false, nrterrors.ErrPoolClosed
	}

	// Read the committed generation before opening the reader: the new
	// snapshot covers at least this generation.
	gen := p.tracker.Committed()
	cur := p.current.Load()
	if cur != nil && cur.Generation() == gen {
		return false, nil
	}

	snap, err := p.store.Snapshot(store.OpenExisting)
	if err != nil {
		return false, err
	}
	old := p.current.Swap(NewHandle(snap, gen))
	if old != nil {
		if err := old.DecRef(); err != nil {
			p.logger.Warn("searcher_release_failed", slog.String("error", err.Error()))
		}
	}
	p.tracker.MarkSearching(gen)
	p.metrics.Refresh()

	p.logger.Debug("searcher_refreshed", slog.Uint64("generation", gen))
	return true, nil
}

// Generation returns the generation covered by the current handle.
func (p *SearcherPool) Generation() uint64 {
	if h := p.current.Load(); h != nil {
		return h.Generation()
	}
	return 0
}

// Close retires the current handle. Handles still held by callers stay
// valid until released.
func (p *SearcherPool) Close() error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	if p.closed.Swap(true) {
		return nil
	}
	if old := p.current.Swap(nil); old != nil {
		return old.DecRef()
	}
	return nil
}
