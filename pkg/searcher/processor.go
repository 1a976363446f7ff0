package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2/search"

	"github.com/Aman-CERP/nrtindex/internal/async"
	"github.com/Aman-CERP/nrtindex/internal/codec"
	"github.com/Aman-CERP/nrtindex/internal/entity"
	nrterrors "github.com/Aman-CERP/nrtindex/internal/errors"
	"github.com/Aman-CERP/nrtindex/internal/index"
	"github.com/Aman-CERP/nrtindex/internal/query"
	"github.com/Aman-CERP/nrtindex/internal/store"
)

// ErrNilSource is returned when a Processor is created without an entity
// source.
var ErrNilSource = errors.New("entity source is required")

// ErrNilCodec is returned when a Processor is created without an
// identifier codec.
var ErrNilCodec = errors.New("identifier codec is required")

// ErrUnknownStrategy is returned for a strategy name that is not one of
// StrategyKinds.
var ErrUnknownStrategy = errors.New("unknown access strategy")

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (StrategyKind, error) {
	k := StrategyKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range StrategyKinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Stats is a point-in-time summary of a Processor.
type Stats struct {
	Strategy StrategyKind `json:"strategy"`
	index.Stats
	// IndexBusy is set when a rebuild held the index and the index fields
	// were not collected.
	IndexBusy          bool                   `json:"index_busy,omitempty"`
	ActiveWriters      int64                  `json:"active_writers"`
	PendingSinceCommit int64                  `json:"pending_since_commit"`
	Rebuild            async.ProgressSnapshot `json:"rebuild"`
	RecoveryBreaker    string                 `json:"recovery_breaker"`
	CachedEntities     int                    `json:"cached_entities,omitempty"`
}

// Processor indexes entities from an entity source and answers full-text
// queries with their identifiers. All methods are safe for concurrent use.
type Processor[ID comparable, E entity.Indexable[ID]] struct {
	source    entity.Source[ID, E]
	cache     *entity.CachedSource[ID, E]
	codec     codec.Codec[ID]
	store     *store.Store
	manager   *index.Manager
	policy    *index.CommitPolicy
	strategy  Strategy
	builder   query.Builder
	rebuilder *async.Rebuilder
	order     search.SortOrder
	opts      options
	logger    *slog.Logger

	// fence is held shared by reads and writes and exclusively by a
	// rebuild, so no operation observes a lineage being torn down.
	fence  sync.RWMutex
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// New creates a Processor whose index lives under path ("" keeps it in
// memory). The index is not opened until first use; a missing index is
// rebuilt from src in the background on the first search.
func New[ID comparable, E entity.Indexable[ID]](path string, src entity.Source[ID, E], c codec.Codec[ID], opts ...Option) (*Processor[ID, E], error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if c == nil {
		return nil, ErrNilCodec
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	builder, err := query.New(o.queryType)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(path, store.WithAnalyzer(o.analyzer), store.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	m := index.NewManager(st, index.Options{
		WriteBufferSize:    o.writeBufferSize,
		SortByInsertion:    o.sortByInsertion,
		RebuildCommitEvery: o.rebuildCommitEvery,
		MaxStale:           o.maxStale,
		MinStale:           o.minStale,
		Metrics:            o.metrics,
		Logger:             o.logger,
	})
	policy := index.NewCommitPolicy(o.commitThreshold, o.metrics)
	strategy, err := NewStrategy(o.strategy, m, policy, o.logger)
	if err != nil {
		return nil, errors.Join(err, m.Close())
	}

	p := &Processor[ID, E]{
		source:   src,
		codec:    c,
		store:    st,
		manager:  m,
		policy:   policy,
		strategy: strategy,
		builder:  builder,
		order:    store.ByScore(),
		opts:     o,
		logger:   o.logger,
	}
	if o.sortByInsertion {
		p.order = store.ByInsertion(o.sortDescending)
	}
	if o.cacheSize > 0 {
		p.cache = entity.NewCachedSource(src, o.cacheSize)
		p.source = p.cache
	}
	p.rebuilder = async.NewRebuilder(p.rebuild, async.Options{
		Breaker: o.breaker,
		Logger:  o.logger,
	})
	return p, nil
}

// Strategy returns the access strategy in use.
func (p *Processor[ID, E]) Strategy() StrategyKind {
	return p.strategy.Kind()
}

// Search returns the ids of entities matching text, at most the configured
// maximum, by relevance or insertion order.
//
// A missing or stale index starts a background rebuild and yields an empty
// result with a nil error. Query syntax errors and other failures yield an
// empty result with the error.
func (p *Processor[ID, E]) Search(ctx context.Context, text string) ([]ID, error) {
	p.fence.RLock()
	defer p.fence.RUnlock()
	return p.searchLocked(ctx, text)
}

func (p *Processor[ID, E]) searchLocked(ctx context.Context, text string) ([]ID, error) {
	start := time.Now()
	ids, err := p.doSearch(ctx, text)
	p.opts.metrics.Search(string(p.strategy.Kind()), time.Since(start), nrterrors.GetCode(err))
	return ids, err
}

func (p *Processor[ID, E]) doSearch(ctx context.Context, text string) ([]ID, error) {
	if p.closed {
		return []ID{}, nrterrors.ErrIndexClosed
	}
	q, err := p.builder.Build(store.FieldContent, text)
	if err != nil {
		p.logger.Info("query_rejected",
			slog.String("query", text),
			slog.String("error", err.Error()))
		return []ID{}, err
	}

	var keys []string
	err = p.withSnapshot(ctx, func(snap *store.Snapshot) error {
		var serr error
		keys, _, serr = snap.Search(ctx, q, p.opts.maxResults, p.order)
		return serr
	})
	if err != nil {
		return []ID{}, p.accessFailed(ctx, "search", err)
	}
	return p.decode(keys), nil
}

// SearchEntities searches like Search and resolves the ids through the
// entity source, in result order. Ids the source no longer knows are
// skipped.
func (p *Processor[ID, E]) SearchEntities(ctx context.Context, text string) ([]E, error) {
	ids, err := p.Search(ctx, text)
	if err != nil {
		return []E{}, err
	}
	out, err := entity.Fetch(ctx, p.source, ids)
	if err != nil {
		return []E{}, sourceFailed("fetch entities", err)
	}
	return out, nil
}

// SearchAtGeneration waits up to the configured generation wait for a
// snapshot covering token, then searches. On timeout it searches the
// latest snapshot anyway.
func (p *Processor[ID, E]) SearchAtGeneration(ctx context.Context, text string, token uint64) ([]ID, error) {
	p.fence.RLock()
	defer p.fence.RUnlock()

	if !p.closed && p.store.Exists() {
		reached := p.strategy.WaitForGeneration(ctx, token, p.opts.generationWait)
		p.opts.metrics.GenerationWait(reached)
		if !reached {
			p.logger.Debug("generation_wait_timeout",
				slog.Uint64("generation", token),
				slog.Uint64("searching", p.manager.Tracker().Searching()),
				slog.Duration("timeout", p.opts.generationWait))
		}
	}
	return p.searchLocked(ctx, text)
}

// AddIndex indexes text under id, replacing any previous document for id.
func (p *Processor[ID, E]) AddIndex(ctx context.Context, id ID, text string) error {
	_, err := p.mutate(ctx, "add", id, false, func(w *index.Writer, key string) (uint64, error) {
		return w.AddDocument(key, text)
	})
	return err
}

// DeleteIndex removes id from the index. Deleting an unknown id is a no-op.
func (p *Processor[ID, E]) DeleteIndex(ctx context.Context, id ID) error {
	_, err := p.mutate(ctx, "delete", id, false, func(w *index.Writer, key string) (uint64, error) {
		return w.DeleteDocument(key)
	})
	return err
}

// AddIndexTracked is AddIndex returning the generation token of the write,
// for use with SearchAtGeneration.
func (p *Processor[ID, E]) AddIndexTracked(ctx context.Context, id ID, text string) (uint64, error) {
	return p.mutate(ctx, "add", id, true, func(w *index.Writer, key string) (uint64, error) {
		return w.AddDocument(key, text)
	})
}

// DeleteIndexTracked is DeleteIndex returning the generation token of the
// write.
func (p *Processor[ID, E]) DeleteIndexTracked(ctx context.Context, id ID) (uint64, error) {
	return p.mutate(ctx, "delete", id, true, func(w *index.Writer, key string) (uint64, error) {
		return w.DeleteDocument(key)
	})
}

func (p *Processor[ID, E]) mutate(ctx context.Context, op string, id ID, tracked bool, apply func(w *index.Writer, key string) (uint64, error)) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.fence.RLock()
	defer p.fence.RUnlock()

	if p.closed {
		return 0, nrterrors.ErrIndexClosed
	}

	key := p.codec.Encode(id)
	gen, err := p.strategy.Mutate(tracked, func(w *index.Writer) (uint64, error) {
		return apply(w, key)
	})
	if p.cache != nil {
		p.cache.Invalidate(id)
	}
	if err != nil {
		if nrterrors.NeedsRebuild(err) {
			p.logger.Warn("index_write_needs_rebuild",
				slog.String("op", op),
				slog.String("id", key),
				slog.String("error", err.Error()))
			p.rebuilder.Start(true)
		} else {
			attrs := append([]slog.Attr{slog.String("op", op), slog.String("id", key)},
				nrterrors.FormatForLog(err)...)
			p.logger.LogAttrs(ctx, slog.LevelError, "index_write_failed", attrs...)
		}
		return 0, err
	}
	return gen, nil
}

// AllIDs returns the id of every indexed document, in no particular order.
func (p *Processor[ID, E]) AllIDs(ctx context.Context) ([]ID, error) {
	p.fence.RLock()
	defer p.fence.RUnlock()

	if p.closed {
		return []ID{}, nrterrors.ErrIndexClosed
	}
	var keys []string
	err := p.withSnapshot(ctx, func(snap *store.Snapshot) error {
		var serr error
		keys, serr = snap.AllIDs(ctx)
		return serr
	})
	if err != nil {
		return []ID{}, p.accessFailed(ctx, "list", err)
	}
	return p.decode(keys), nil
}

// MaybeRefresh makes the latest commit searchable now instead of waiting
// for the strategy's own refresh.
func (p *Processor[ID, E]) MaybeRefresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.fence.RLock()
	defer p.fence.RUnlock()

	if p.closed {
		return nrterrors.ErrIndexClosed
	}
	if !p.store.Exists() {
		return nil
	}
	return p.strategy.MaybeRefresh()
}

// RebuildIndexSync recreates the index from every entity of the source and
// waits for the result. A rebuild already running is joined.
func (p *Processor[ID, E]) RebuildIndexSync(ctx context.Context) error {
	return p.rebuilder.Run(ctx)
}

// RebuildIndexAsync starts a rebuild in the background. It returns false if
// one is already running or the processor is closed.
func (p *Processor[ID, E]) RebuildIndexAsync() bool {
	return p.rebuilder.Start(false)
}

// WaitRebuild blocks until background rebuilds finish and returns the
// result of the most recent rebuild.
func (p *Processor[ID, E]) WaitRebuild() error {
	return p.rebuilder.Wait()
}

// Stats reports the processor's state. Index fields are left zero while a
// rebuild holds the index.
func (p *Processor[ID, E]) Stats(_ context.Context) Stats {
	st := Stats{
		Strategy:           p.strategy.Kind(),
		ActiveWriters:      p.policy.Active(),
		PendingSinceCommit: p.policy.Pending(),
		Rebuild:            p.rebuilder.Progress().Snapshot(),
		RecoveryBreaker:    p.rebuilder.Breaker().State().String(),
	}
	if p.cache != nil {
		st.CachedEntities = p.cache.Len()
	}
	if p.fence.TryRLock() {
		if !p.closed {
			st.Stats = p.manager.Stats()
		}
		p.fence.RUnlock()
	} else {
		st.IndexBusy = true
	}
	return st
}

// Close stops background rebuilds and the reopen scheduler, flushes the
// writer and closes the index. Every step runs even if an earlier one
// fails. Later calls return the first result.
func (p *Processor[ID, E]) Close() error {
	p.closeOnce.Do(func() {
		p.rebuilder.Stop()

		p.fence.Lock()
		defer p.fence.Unlock()

		p.closed = true
		p.closeErr = p.manager.Close()
		p.logger.Debug("processor_closed",
			slog.String("path", p.store.Path()),
			slog.String("strategy", string(p.strategy.Kind())))
	})
	return p.closeErr
}

// rebuild lists every entity and swaps the lineage, holding the fence
// exclusively for both steps. No write may land between the listing and
// the swap: it would go to the index that is about to be discarded.
func (p *Processor[ID, E]) rebuild(ctx context.Context, progress *async.Progress) error {
	p.fence.Lock()
	defer p.fence.Unlock()

	if p.closed {
		return nrterrors.ErrIndexClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	progress.SetStage(async.StageListing, 0)
	entities, err := p.source.ListAll(ctx)
	if err != nil {
		return sourceFailed("list entities", err)
	}

	docs := make([]store.Document, 0, len(entities))
	for _, e := range entities {
		docs = append(docs, store.Document{
			ID:      p.codec.Encode(e.IndexID()),
			Content: e.IndexText(),
		})
	}
	progress.SetStage(async.StageIndexing, len(docs))

	if p.cache != nil {
		p.cache.Purge()
	}

	p.logger.Info("index_rebuild_started",
		slog.String("path", p.store.Path()),
		slog.Int("entities", len(docs)))
	err = p.manager.Rebuild(ctx, docs, func(done, _ int) {
		progress.Update(done)
	})
	if err != nil {
		return nrterrors.New(nrterrors.ErrCodeRebuildFailed, "index rebuild failed", err).
			WithDetail("path", p.store.Path())
	}
	return nil
}

// withSnapshot runs fn against a snapshot from the strategy. A store with
// no index reports it missing instead of letting a pooled strategy create
// an empty one.
func (p *Processor[ID, E]) withSnapshot(ctx context.Context, fn func(*store.Snapshot) error) (err error) {
	if !p.store.Exists() {
		return nrterrors.IndexMissing(p.store.Path(), nil)
	}
	snap, release, err := p.strategy.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := release(); rerr != nil {
			p.logger.Warn("searcher_release_failed", slog.String("error", rerr.Error()))
		}
	}()
	return fn(snap)
}

// accessFailed handles a failed read. Missing or stale indexes schedule a
// recovery rebuild and are swallowed; other errors are logged and returned.
func (p *Processor[ID, E]) accessFailed(ctx context.Context, op string, err error) error {
	if nrterrors.NeedsRebuild(err) {
		event := "index_missing_rebuilding"
		if errors.Is(err, nrterrors.ErrIndexFormatStale) {
			event = "index_stale_rebuilding"
		}
		started := p.rebuilder.Start(true)
		p.logger.Info(event,
			slog.String("path", p.store.Path()),
			slog.String("op", op),
			slog.Bool("rebuild_started", started))
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	attrs := append([]slog.Attr{slog.String("op", op), slog.String("path", p.store.Path())},
		nrterrors.FormatForLog(err)...)
	p.logger.LogAttrs(ctx, slog.LevelError, "index_read_failed", attrs...)
	return err
}

func (p *Processor[ID, E]) decode(keys []string) []ID {
	ids := make([]ID, 0, len(keys))
	for _, key := range keys {
		id, err := p.codec.Decode(key)
		if err != nil {
			p.logger.Warn("index_key_undecodable",
				slog.String("key", key),
				slog.String("codec", p.codec.Name()),
				slog.String("error", err.Error()))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func sourceFailed(op string, err error) error {
	if nrterrors.GetCode(err) != "" {
		return err
	}
	return nrterrors.New(nrterrors.ErrCodeSourceFailed, op+" failed", err)
}
