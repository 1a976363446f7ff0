// Package index manages the lifecycle of one index lineage: the lazily
// created writer, the searcher pool and its reopen scheduler, generation
// tracking, commit batching and full rebuilds.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/nrtindex/internal/metrics"
	"github.com/Aman-CERP/nrtindex/internal/store"
)

// DefaultRebuildCommitEvery is the number of documents written between
// commits during a rebuild.
const DefaultRebuildCommitEvery = 5

// Options configures a Manager.
type Options struct {
	WriteBufferSize    int
	SortByInsertion    bool
	RebuildCommitEvery int
	MaxStale           time.Duration
	MinStale           time.Duration
	Metrics            *metrics.Metrics
	Logger             *slog.Logger
}

// Stats is a point-in-time summary of a Manager.
type Stats struct {
	Path            string `json:"path"`
	Documents       uint64 `json:"documents"`
	Issued          uint64 `json:"issued_generation"`
	Committed       uint64 `json:"committed_generation"`
	Searching       uint64 `json:"searching_generation"`
	PendingOps      int    `json:"pending_operations"`
	WriterOpen      bool   `json:"writer_open"`
	PoolOpen        bool   `json:"pool_open"`
	SchedulerActive bool   `json:"scheduler_active"`
}

// Manager owns the shared components built on one store. Writer and pool
// are created on first use; Reset tears them down and starts a new lineage.
type Manager struct {
	store  *store.Store
	opts   Options
	logger *slog.Logger

	tracker atomic.Pointer[GenerationTracker]
	writer  *Lazy[*Writer]
	pool    *Lazy[*SearcherPool]

	schedMu sync.Mutex
	sched   *ReopenScheduler
}

// NewManager creates a Manager over st.
func NewManager(st *store.Store, opts Options) *Manager {
	if opts.RebuildCommitEvery <= 0 {
		opts.RebuildCommitEvery = DefaultRebuildCommitEvery
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &Manager{
		store:  st,
		opts:   opts,
		logger: opts.Logger,
	}
	m.tracker.Store(NewGenerationTracker())
	m.writer = NewLazy(m.openWriter)
	m.pool = NewLazy(m.openPool)
	return m
}

func (m *Manager) writerOptions() WriterOptions {
	return WriterOptions{
		BufferSize:      m.opts.WriteBufferSize,
		SortByInsertion: m.opts.SortByInsertion,
		Metrics:         m.opts.Metrics,
		Logger:          m.logger,
	}
}

func (m *Manager) openWriter() (*Writer, error) {
	return OpenWriter(context.Background(), m.store, store.CreateOrAppend, m.Tracker(), m.writerOptions())
}

// openPool creates the writer first so the index exists before the first
// snapshot is taken.
func (m *Manager) openPool() (*SearcherPool, error) {
	if _, err := m.Writer(); err != nil {
		return nil, err
	}
	return NewSearcherPool(m.store, m.Tracker(), m.opts.Metrics, m.logger)
}

// Store returns the underlying store.
func (m *Manager) Store() *store.Store {
	return m.store
}

// Tracker returns the generation tracker of the current lineage.
func (m *Manager) Tracker() *GenerationTracker {
	return m.tracker.Load()
}

// Writer returns the shared writer, creating it on first use. A writer that
// was closed is replaced by a new one.
func (m *Manager) Writer() (*Writer, error) {
	w, err := m.writer.Get()
	if err != nil {
		return nil, err
	}
	if w.Closed() {
		m.writer.ResetIf(func(cur *Writer) bool { return cur == w })
		return m.writer.Get()
	}
	return w, nil
}

// Pool returns the shared searcher pool, creating it (and the writer) on
// first use.
func (m *Manager) Pool() (*SearcherPool, error) {
	return m.pool.Get()
}

// StartScheduler starts the background reopen goroutine for the current
// pool. It is a no-op when one is already running.
func (m *Manager) StartScheduler() error {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()

	if m.sched != nil {
		return nil
	}
	pool, err := m.Pool()
	if err != nil {
		return err
	}
	m.sched = NewReopenScheduler(pool, m.Tracker(), m.opts.MaxStale, m.opts.MinStale, m.logger)
	m.sched.Start()
	return nil
}

// StopScheduler stops the reopen goroutine and waits for it.
func (m *Manager) StopScheduler() {
	m.schedMu.Lock()
	sched := m.sched
	m.sched = nil
	m.schedMu.Unlock()

	if sched != nil {
		sched.Stop()
	}
}

// OpenSnapshot opens a fresh snapshot of the existing index without going
// through the pool.
func (m *Manager) OpenSnapshot() (*store.Snapshot, error) {
	return m.store.Snapshot(store.OpenExisting)
}

// Reset stops the scheduler, closes the pool and the writer, and starts a
// new lineage. Every step runs even if an earlier one fails.
func (m *Manager) Reset() error {
	err := m.teardown()
	old := m.tracker.Swap(NewGenerationTracker())
	old.Close()
	return err
}

func (m *Manager) teardown() error {
	var errs []error

	m.StopScheduler()
	if pool, ok := m.pool.Reset(); ok {
		if err := pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close searcher pool: %w", err))
		}
	}
	if w, ok := m.writer.Reset(); ok {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Rebuild recreates the index from docs: it resets the lineage, marks the
// store as rebuilding, writes every document into a freshly created index
// with a commit every RebuildCommitEvery documents, and clears the marker.
// progress, when set, is called after each document.
func (m *Manager) Rebuild(ctx context.Context, docs []store.Document, progress func(done, total int)) (err error) {
	start := time.Now()
	defer func() {
		m.opts.Metrics.Rebuild(time.Since(start), err)
	}()

	if resetErr := m.Reset(); resetErr != nil {
		m.logger.Warn("index_reset_failed", slog.String("error", resetErr.Error()))
	}
	if err := m.store.MarkRebuilding(); err != nil {
		return err
	}

	w, err := OpenWriter(ctx, m.store, store.Create, m.Tracker(), m.writerOptions())
	if err != nil {
		return err
	}

	if err := m.writeAll(ctx, w, docs, progress); err != nil {
		// The marker stays, so the next open reports the index stale.
		return errors.Join(err, w.Close(), m.store.Clean())
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := m.store.ClearRebuilding(); err != nil {
		return err
	}

	m.logger.Info("index_rebuilt",
		slog.String("path", m.store.Path()),
		slog.Int("documents", len(docs)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (m *Manager) writeAll(ctx context.Context, w *Writer, docs []store.Document, progress func(done, total int)) error {
	every := m.opts.RebuildCommitEvery
	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.AddDocument(d.ID, d.Content); err != nil {
			return fmt.Errorf("index document %q: %w", d.ID, err)
		}
		if (i+1)%every == 0 {
			if err := w.Commit(); err != nil {
				return err
			}
		}
		if progress != nil {
			progress(i+1, len(docs))
		}
	}
	return w.Commit()
}

// Stats reports the current state without creating the writer or pool.
func (m *Manager) Stats() Stats {
	tr := m.Tracker()
	st := Stats{
		Path:      m.store.Path(),
		Issued:    tr.Issued(),
		Committed: tr.Committed(),
		Searching: tr.Searching(),
	}
	if n, err := m.store.DocCount(); err == nil {
		st.Documents = n
	}
	if w, ok := m.writer.Peek(); ok && !w.Closed() {
		st.WriterOpen = true
		st.PendingOps = w.Pending()
	}
	_, st.PoolOpen = m.pool.Peek()

	m.schedMu.Lock()
	st.SchedulerActive = m.sched != nil && m.sched.Running()
	m.schedMu.Unlock()
	return st
}

// Close tears down the lineage and closes the store.
func (m *Manager) Close() error {
	err := m.teardown()
	m.Tracker().Close()
	return errors.Join(err, m.store.Close())
}
