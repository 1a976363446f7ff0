package searcher

import (
	"log/slog"
	"time"

	nrterrors "github.com/Aman-CERP/nrtindex/internal/errors"
	"github.com/Aman-CERP/nrtindex/internal/index"
	"github.com/Aman-CERP/nrtindex/internal/metrics"
	"github.com/Aman-CERP/nrtindex/internal/query"
	"github.com/Aman-CERP/nrtindex/internal/store"
)

const (
	// DefaultMaxResults bounds the ids returned by one search.
	DefaultMaxResults = 100
	// DefaultGenerationWait bounds SearchAtGeneration's wait.
	DefaultGenerationWait = time.Second
)

type options struct {
	strategy           StrategyKind
	queryType          query.Type
	maxResults         int
	sortByInsertion    bool
	sortDescending     bool
	analyzer           string
	writeBufferSize    int
	commitThreshold    int
	rebuildCommitEvery int
	maxStale           time.Duration
	minStale           time.Duration
	generationWait     time.Duration
	cacheSize          int
	breaker            *nrterrors.CircuitBreaker
	metrics            *metrics.Metrics
	logger             *slog.Logger
}

func defaultOptions() options {
	return options{
		strategy:           TrackedReopen,
		queryType:          query.Structured,
		maxResults:         DefaultMaxResults,
		analyzer:           store.AnalyzerStandard,
		writeBufferSize:    index.DefaultWriteBufferSize,
		commitThreshold:    index.DefaultCommitThreshold,
		rebuildCommitEvery: index.DefaultRebuildCommitEvery,
		maxStale:           index.DefaultMaxStale,
		minStale:           index.DefaultMinStale,
		generationWait:     DefaultGenerationWait,
	}
}

// Option configures a Processor.
type Option func(*options)

// WithStrategy selects the access strategy (default TrackedReopen).
func WithStrategy(kind StrategyKind) Option {
	return func(o *options) {
		o.strategy = kind
	}
}

// WithQueryType selects how query text is turned into a query (default
// structured).
func WithQueryType(t query.Type) Option {
	return func(o *options) {
		o.queryType = t
	}
}

// WithMaxResults bounds the number of ids a search returns.
func WithMaxResults(n int) Option {
	return func(o *options) {
		o.maxResults = n
	}
}

// WithInsertionOrder sorts results by insertion time instead of relevance,
// newest first when desc. Documents must have been indexed with the option
// enabled to carry an insertion time.
func WithInsertionOrder(desc bool) Option {
	return func(o *options) {
		o.sortByInsertion = true
		o.sortDescending = desc
	}
}

// WithAnalyzer selects the text analyzer by name.
func WithAnalyzer(name string) Option {
	return func(o *options) {
		o.analyzer = name
	}
}

// WithWriteBufferSize sets the number of buffered operations that forces a
// flush.
func WithWriteBufferSize(n int) Option {
	return func(o *options) {
		o.writeBufferSize = n
	}
}

// WithCommitThreshold sets the pending-operation count that forces a
// commit while writers overlap.
func WithCommitThreshold(n int) Option {
	return func(o *options) {
		o.commitThreshold = n
	}
}

// WithRebuildCommitEvery sets the commit interval during rebuilds.
func WithRebuildCommitEvery(n int) Option {
	return func(o *options) {
		o.rebuildCommitEvery = n
	}
}

// WithReopenInterval sets the background refresh bounds: maxStale when no
// one waits for a generation, minStale while someone does.
func WithReopenInterval(maxStale, minStale time.Duration) Option {
	return func(o *options) {
		o.maxStale = maxStale
		o.minStale = minStale
	}
}

// WithGenerationWait bounds how long SearchAtGeneration waits.
func WithGenerationWait(d time.Duration) Option {
	return func(o *options) {
		o.generationWait = d
	}
}

// WithEntityCache caches entity lookups of SearchEntities in an LRU of
// size entries. Writes through the processor invalidate cached entries.
func WithEntityCache(size int) Option {
	return func(o *options) {
		o.cacheSize = size
	}
}

// WithRecoveryBreaker sets the circuit breaker that gates automatic
// rebuilds after failed reads.
func WithRecoveryBreaker(cb *nrterrors.CircuitBreaker) Option {
	return func(o *options) {
		o.breaker = cb
	}
}

// WithMetrics records processor activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func (o *options) validate() error {
	known := false
	for _, k := range StrategyKinds() {
		if o.strategy == k {
			known = true
		}
	}
	if !known {
		return ErrUnknownStrategy
	}
	if o.maxResults <= 0 {
		return nrterrors.InvalidInput("max results must be positive", nil)
	}
	if o.generationWait < 0 {
		return nrterrors.InvalidInput("generation wait must not be negative", nil)
	}
	if o.cacheSize < 0 {
		return nrterrors.InvalidInput("entity cache size must not be negative", nil)
	}
	return nil
}
