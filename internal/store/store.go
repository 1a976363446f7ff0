// Package store owns the on-disk (or in-memory) bleve index behind a
// processor: opening it in the right mode, cleaning it for a rebuild,
// validating its integrity and classifying its failures.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	nrterrors "github.com/Aman-CERP/nrtindex/internal/errors"
)

const (
	// IndexDir is the directory under the root that holds the bleve index.
	IndexDir = "index"
	// RebuildMarkerFile exists under the root while a rebuild is in progress.
	RebuildMarkerFile = "rebuild.lock"

	memoryPath = ":memory:"
)

// OpenMode selects how Index treats an existing or absent index.
type OpenMode int

const (
	// OpenExisting fails with ErrIndexMissing when there is no index.
	OpenExisting OpenMode = iota
	// CreateOrAppend opens the index, creating it when absent.
	CreateOrAppend
	// Create discards any existing index and starts an empty one.
	Create
)

// String returns the mode name.
func (m OpenMode) String() string {
	switch m {
	case OpenExisting:
		return "open_existing"
	case CreateOrAppend:
		return "create_or_append"
	case Create:
		return "create"
	default:
		return "unknown"
	}
}

// Option configures a Store.
type Option func(*Store)

// WithAnalyzer sets the analyzer used for the content field of newly
// created indexes. See Analyzers for accepted names.
func WithAnalyzer(name string) Option {
	return func(s *Store) {
		s.analyzer = name
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store is the index storage location for one processor. The opened bleve
// index is cached and shared by the writer and every snapshot.
type Store struct {
	root     string
	analyzer string
	logger   *slog.Logger
	mapping  *mapping.IndexMappingImpl

	mu         sync.Mutex
	idx        bleve.Index
	rebuilding bool // in-memory stand-in for the marker file
	closed     bool
}

// Open prepares a store rooted at root. An empty root selects an in-memory
// index. The bleve index itself is opened lazily by Index.
func Open(root string, opts ...Option) (*Store, error) {
	s := &Store{
		root:     root,
		analyzer: AnalyzerStandard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	im, err := NewMapping(s.analyzer)
	if err != nil {
		return nil, nrterrors.InvalidInput("invalid index analyzer", err).
			WithDetail("analyzer", s.analyzer)
	}
	s.mapping = im

	if root != "" {
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, nrterrors.StorageIO("failed to create index root", err).
				WithDetail("path", root)
		}
	}
	return s, nil
}

// Path returns the bleve index directory, or ":memory:".
func (s *Store) Path() string {
	if s.root == "" {
		return memoryPath
	}
	return filepath.Join(s.root, IndexDir)
}

// Root returns the configured root directory, empty for memory.
func (s *Store) Root() string {
	return s.root
}

// InMemory reports whether the store keeps its index in memory.
func (s *Store) InMemory() bool {
	return s.root == ""
}

// Index returns the shared bleve index, opening it in the given mode.
// In Create mode any existing index is discarded first.
func (s *Store) Index(mode OpenMode) (bleve.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nrterrors.New(nrterrors.ErrCodeIndexClosed, "store is closed", nil)
	}
	if mode == Create {
		if err := s.cleanLocked(); err != nil {
			return nil, err
		}
		return s.createLocked()
	}
	if s.idx != nil {
		return s.idx, nil
	}
	return s.openLocked(mode)
}

func (s *Store) openLocked(mode OpenMode) (bleve.Index, error) {
	path := s.Path()

	if s.rebuildIncompleteLocked() {
		return nil, nrterrors.IndexFormatStale(path, errors.New("previous rebuild did not complete"))
	}
	if s.root == "" {
		if mode == OpenExisting {
			return nil, nrterrors.IndexMissing(path, nil)
		}
		return s.createLocked()
	}

	if err := validateIndexIntegrity(path); err != nil {
		s.logger.Warn("index_integrity_check_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, nrterrors.IndexFormatStale(path, err)
	}

	idx, err := bleve.Open(path)
	if err == nil {
		s.idx = idx
		return idx, nil
	}
	if mode == CreateOrAppend && isAbsent(err) {
		return s.createLocked()
	}
	return nil, Classify(path, err)
}

func (s *Store) createLocked() (bleve.Index, error) {
	var (
		idx bleve.Index
		err error
	)
	if s.root == "" {
		idx, err = bleve.NewMemOnly(s.mapping)
	} else {
		// An empty directory left behind by a failed create is not an index.
		_ = os.Remove(s.Path())
		idx, err = bleve.New(s.Path(), s.mapping)
	}
	if err != nil {
		return nil, Classify(s.Path(), err)
	}

	s.logger.Debug("index_created",
		slog.String("path", s.Path()),
		slog.String("analyzer", s.analyzer))
	s.idx = idx
	return idx, nil
}

// Exists reports whether an index is present: a non-empty index_meta.json on
// disk, or an index created in this process for a memory store.
func (s *Store) Exists() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.root == "" {
		return s.idx != nil
	}
	info, err := os.Stat(filepath.Join(s.Path(), "index_meta.json"))
	return err == nil && info.Size() > 0
}

// Clean closes the cached index and deletes every persisted index file.
// The root directory and the write lock file are kept.
func (s *Store) Clean() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nrterrors.New(nrterrors.ErrCodeIndexClosed, "store is closed", nil)
	}
	return s.cleanLocked()
}

func (s *Store) cleanLocked() error {
	var errs []error
	if s.idx != nil {
		if err := s.idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index: %w", err))
		}
		s.idx = nil
	}
	if s.root != "" {
		if err := os.RemoveAll(s.Path()); err != nil {
			errs = append(errs, fmt.Errorf("remove index files: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nrterrors.StorageIO("failed to clean index", err).WithDetail("path", s.Path())
	}
	return nil
}

// MarkRebuilding records that a rebuild has started. Until ClearRebuilding
// is called, opening the index reports ErrIndexFormatStale.
func (s *Store) MarkRebuilding() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rebuilding = true
	if s.root == "" {
		return nil
	}
	if err := os.WriteFile(filepath.Join(s.root, RebuildMarkerFile), []byte("rebuilding\n"), 0644); err != nil {
		return nrterrors.StorageIO("failed to write rebuild marker", err).WithDetail("path", s.root)
	}
	return nil
}

// ClearRebuilding removes the marker written by MarkRebuilding.
func (s *Store) ClearRebuilding() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rebuilding = false
	if s.root == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.root, RebuildMarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return nrterrors.StorageIO("failed to remove rebuild marker", err).WithDetail("path", s.root)
	}
	return nil
}

func (s *Store) rebuildIncompleteLocked() bool {
	if s.root == "" {
		return s.rebuilding
	}
	_, err := os.Stat(filepath.Join(s.root, RebuildMarkerFile))
	return err == nil
}

// NewBatch returns an empty batch bound to the open index.
func (s *Store) NewBatch() (*bleve.Batch, error) {
	idx, err := s.current()
	if err != nil {
		return nil, err
	}
	return idx.NewBatch(), nil
}

// Apply executes a batch against the open index. Once Apply returns, the
// batch contents are visible to snapshots taken afterwards.
func (s *Store) Apply(b *bleve.Batch) error {
	idx, err := s.current()
	if err != nil {
		return err
	}
	if err := idx.Batch(b); err != nil {
		return Classify(s.Path(), err)
	}
	return nil
}

func (s *Store) current() (bleve.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nrterrors.New(nrterrors.ErrCodeIndexClosed, "store is closed", nil)
	}
	if s.idx == nil {
		return nil, nrterrors.IndexMissing(s.Path(), nil)
	}
	return s.idx, nil
}

// Snapshot opens a point-in-time reader over the index.
func (s *Store) Snapshot(mode OpenMode) (*Snapshot, error) {
	idx, err := s.Index(mode)
	if err != nil {
		return nil, err
	}
	return newSnapshot(s.Path(), idx)
}

// DocCount returns the number of documents in the index. A persisted index
// is opened if needed; a missing one is never created.
func (s *Store) DocCount() (uint64, error) {
	idx, err := s.Index(OpenExisting)
	if err != nil {
		return 0, err
	}
	n, err := idx.DocCount()
	if err != nil {
		return 0, Classify(s.Path(), err)
	}
	return n, nil
}

// WriteLock returns a fresh, unacquired lock for this store's root.
func (s *Store) WriteLock() *WriteLock {
	return newWriteLock(s.root)
}

// AcquireWriteLock takes the write lock, retrying briefly while another
// holder has it. Fails with ErrWriteLockHeld when the lock stays held.
func (s *Store) AcquireWriteLock(ctx context.Context) (*WriteLock, error) {
	lock := s.WriteLock()
	err := nrterrors.Retry(ctx, nrterrors.DefaultRetryConfig(), func() error {
		ok, err := lock.TryLock()
		if err != nil {
			return nrterrors.StorageIO("failed to acquire write lock", err)
		}
		if !ok {
			return nrterrors.New(nrterrors.ErrCodeWriteLockHeld, "index write lock is held", nil).
				WithDetail("path", lock.Path())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Close closes the cached index. Later calls return ErrIndexClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.idx == nil {
		return nil
	}
	err := s.idx.Close()
	s.idx = nil
	if err != nil {
		return nrterrors.StorageIO("failed to close index", err).WithDetail("path", s.Path())
	}
	return nil
}

// validateIndexIntegrity checks an on-disk index before it is opened.
// A missing or empty directory is not an integrity failure; it is reported
// as a missing index by bleve.Open.
func validateIndexIntegrity(path string) error {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) || (err == nil && len(entries) == 0) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot read index directory: %w", err)
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isAbsent(err error) bool {
	return errors.Is(err, bleve.ErrorIndexPathDoesNotExist) ||
		errors.Is(err, bleve.ErrorIndexMetaMissing)
}

// isCorruptionError reports bleve failures that mean the persisted index
// cannot be read by this build.
func isCorruptionError(err error) bool {
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) ||
		errors.Is(err, bleve.ErrorUnknownIndexType) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "unsupported version")
}

// Classify maps a bleve or filesystem failure at path onto the error
// taxonomy. Errors that are already classified pass through unchanged.
func Classify(path string, err error) error {
	if err == nil {
		return nil
	}
	var structured *nrterrors.Error
	if errors.As(err, &structured) {
		return err
	}

	switch {
	case isAbsent(err):
		return nrterrors.IndexMissing(path, err)
	case isCorruptionError(err):
		return nrterrors.IndexFormatStale(path, err)
	case errors.Is(err, bleve.ErrorIndexClosed):
		return nrterrors.New(nrterrors.ErrCodeIndexClosed, "index is closed", err)
	case errors.Is(err, bleve.ErrorEmptyID):
		return nrterrors.InvalidInput("document id must not be empty", err)
	default:
		return nrterrors.StorageIO("index storage failure", err).WithDetail("path", path)
	}
}
