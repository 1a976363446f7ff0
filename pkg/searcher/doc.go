// Package searcher keeps a full-text index of application entities and
// answers queries with entity identifiers.
//
// A [Processor] ties together an entity source, an identifier codec and one
// of five access strategies:
//
//   - [Legacy]: commit every write, open a fresh snapshot per query
//   - [CachedNRT]: batched commits, pooled snapshot refreshed in the background
//   - [ManagedPool]: batched commits, pool refreshed before every query
//   - [TrackedReopen]: batched commits plus read-your-write generation waits
//   - [DirectReader]: batched commits, one shared reader refreshed on request
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                         Processor                           │
//	│   query.Builder ── Strategy ── async.Rebuilder              │
//	│                      │                 │                    │
//	│  ┌───────────────────▼─────────────────▼────────────────┐   │
//	│  │                 index.Manager                        │   │
//	│  │  Writer ── CommitPolicy    SearcherPool ── Reopen    │   │
//	│  │       └──── GenerationTracker ────┘     Scheduler    │   │
//	│  └───────────────────────┬──────────────────────────────┘   │
//	│                     store.Store (bleve)                     │
//	└─────────────────────────────────────────────────────────────┘
//
// # Usage
//
//	src := entity.NewMemorySource[int64](
//	    entity.Record[int64]{ID: 1, Text: "red sports car"},
//	)
//	p, _ := searcher.New[int64, entity.Record[int64]](dir, src, codec.Int64{},
//	    searcher.WithStrategy(searcher.TrackedReopen),
//	)
//	defer p.Close()
//
//	_ = p.RebuildIndexSync(ctx)
//	gen, _ := p.AddIndexTracked(ctx, 2, "blue truck")
//	ids, _ := p.SearchAtGeneration(ctx, "truck", gen)
//
// # Recovery
//
// A search that finds no index, or an index left stale by an interrupted
// rebuild, starts a background rebuild from the entity source and returns
// an empty result. Automatic rebuilds go through a circuit breaker; explicit
// ones do not.
//
// # Thread Safety
//
// All Processor methods are safe for concurrent use. Rebuilds hold the
// index exclusively; searches and writes share it.
package searcher
