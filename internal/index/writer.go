package index

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/blevesearch/bleve/v2"

	nrterrors "github.com/Aman-CERP/nrtindex/internal/errors"
	"github.com/Aman-CERP/nrtindex/internal/metrics"
	"github.com/Aman-CERP/nrtindex/internal/store"
)

// DefaultWriteBufferSize is the number of buffered operations that forces a
// flush of the pending batch.
const DefaultWriteBufferSize = 1000

// WriterOptions configures a Writer.
type WriterOptions struct {
	// BufferSize bounds the pending batch. Zero uses DefaultWriteBufferSize.
	BufferSize int
	// SortByInsertion stamps every document with its insertion time.
	SortByInsertion bool
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

// Writer is the single mutable entry point of an index lineage. Operations
// are buffered in a batch and become visible to new snapshots when the
// batch is applied by Commit or by an automatic flush.
type Writer struct {
	store   *store.Store
	lock    *store.WriteLock
	tracker *GenerationTracker
	opts    WriterOptions
	logger  *slog.Logger

	mu         sync.Mutex
	batch      *bleve.Batch
	firstGen   uint64 // first generation in the pending batch
	pendingGen uint64
	closed     bool
}

// OpenWriter acquires the store's write lock and opens the index in mode.
func OpenWriter(ctx context.Context, st *store.Store, mode store.OpenMode, tracker *GenerationTracker, opts WriterOptions) (*Writer, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultWriteBufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lock, err := st.AcquireWriteLock(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := st.Index(mode); err != nil {
		return nil, errors.Join(err, lock.Unlock())
	}
	batch, err := st.NewBatch()
	if err != nil {
		return nil, errors.Join(err, lock.Unlock())
	}

	logger.Debug("index_writer_opened",
		slog.String("path", st.Path()),
		slog.String("mode", mode.String()))

	return &Writer{
		store:   st,
		lock:    lock,
		tracker: tracker,
		opts:    opts,
		logger:  logger,
		batch:   batch,
	}, nil
}

// AddDocument buffers id with content, replacing any existing document
// with the same id. Returns the generation of the operation.
func (w *Writer) AddDocument(id, content string) (uint64, error) {
	if id == "" {
		return 0, nrterrors.InvalidInput("document id must not be empty", nil)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, nrterrors.ErrWriterClosed
	}

	doc := store.Document{ID: id, Content: content}
	if w.opts.SortByInsertion {
		doc.InsertedAt = store.NextInsertionStamp()
	}
	if err := doc.AddTo(w.batch); err != nil {
		return 0, store.Classify(w.store.Path(), err)
	}
	return w.issueLocked()
}

// DeleteDocument buffers the removal of id. Deleting an id that is not in
// the index is a no-op that still consumes a generation.
func (w *Writer) DeleteDocument(id string) (uint64, error) {
	if id == "" {
		return 0, nrterrors.InvalidInput("document id must not be empty", nil)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, nrterrors.ErrWriterClosed
	}

	w.batch.Delete(id)
	return w.issueLocked()
}

func (w *Writer) issueLocked() (uint64, error) {
	gen := w.tracker.Issue()
	if w.firstGen == 0 {
		w.firstGen = gen
	}
	w.pendingGen = gen
	if w.batch.Size() >= w.opts.BufferSize {
		if err := w.flushLocked(); err != nil {
			return gen, err
		}
	}
	return gen, nil
}

// Commit applies every buffered operation and publishes the highest
// included generation as committed.
func (w *Writer) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nrterrors.ErrWriterClosed
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	w.opts.Metrics.Commit()
	return nil
}

// flushLocked applies the pending batch. A batch that fails to apply is
// discarded and its generations are marked dropped, so waiters on them do
// not succeed when a later batch commits.
func (w *Writer) flushLocked() error {
	first, gen := w.firstGen, w.pendingGen
	w.firstGen, w.pendingGen = 0, 0
	if w.batch.Size() > 0 {
		err := w.store.Apply(w.batch)
		size := w.batch.Size()
		w.batch.Reset()
		if err != nil {
			w.tracker.MarkDropped(first, gen)
			w.logger.Warn("index_batch_dropped",
				slog.Int("operations", size),
				slog.Uint64("first_generation", first),
				slog.Uint64("generation", gen),
				slog.String("error", err.Error()))
			return err
		}
	}
	if gen > 0 {
		w.tracker.MarkCommitted(gen)
	}
	return nil
}

// Pending returns the number of buffered operations.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.batch.Size()
}

// Closed reports whether Close has been called.
func (w *Writer) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Tracker returns the generation tracker the writer issues from.
func (w *Writer) Tracker() *GenerationTracker {
	return w.tracker
}

// Close commits pending operations and releases the write lock. The lock
// is released even when the final commit fails.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := w.flushLocked(); err != nil {
		errs = append(errs, err)
	} else {
		w.opts.Metrics.Commit()
	}
	if err := w.lock.Unlock(); err != nil {
		errs = append(errs, nrterrors.StorageIO("failed to release write lock", err))
	}

	w.logger.Debug("index_writer_closed", slog.String("path", w.store.Path()))
	return errors.Join(errs...)
}
