package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/nrtindex/internal/codec"
	"github.com/Aman-CERP/nrtindex/internal/config"
	"github.com/Aman-CERP/nrtindex/internal/entity"
	nrterrors "github.com/Aman-CERP/nrtindex/internal/errors"
	"github.com/Aman-CERP/nrtindex/internal/metrics"
	"github.com/Aman-CERP/nrtindex/internal/query"
	"github.com/Aman-CERP/nrtindex/pkg/searcher"
)

// hit is one search result as printed by the CLI.
type hit struct {
	ID   string `json:"id"`
	Text string `json:"text,omitempty"`
}

// session hides the identifier type chosen by source.id_type from the
// commands.
type session interface {
	Search(ctx context.Context, text string, entities bool, atGeneration uint64) ([]hit, error)
	Add(ctx context.Context, id, text string) (uint64, error)
	Delete(ctx context.Context, id string) (uint64, error)
	IDs(ctx context.Context) ([]string, error)
	Rebuild(ctx context.Context) error
	Stats(ctx context.Context) searcher.Stats
	Close() error
}

// openSession opens the SQLite source and the index described by cfg.
func openSession(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (session, error) {
	db, err := entity.OpenSQLite(cfg.Source.DSN)
	if err != nil {
		return nil, nrterrors.New(nrterrors.ErrCodeSourceFailed, "failed to open entity database", err).
			WithDetail("dsn", cfg.Source.DSN)
	}

	var s session
	if strings.EqualFold(cfg.Source.IDType, "INTEGER") {
		s, err = newTypedSession[int64](ctx, cfg, db, codec.Int64{}, m, logger)
	} else {
		s, err = newTypedSession[string](ctx, cfg, db, codec.String{}, m, logger)
	}
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return s, nil
}

type typedSession[ID comparable] struct {
	db    *sql.DB
	src   *entity.SQLSource[ID]
	proc  *searcher.Processor[ID, entity.Record[ID]]
	codec codec.Codec[ID]
}

func newTypedSession[ID comparable](ctx context.Context, cfg *config.Config, db *sql.DB, c codec.Codec[ID], m *metrics.Metrics, logger *slog.Logger) (*typedSession[ID], error) {
	src, err := entity.NewSQLSource[ID](db, cfg.SQLConfig())
	if err != nil {
		return nil, err
	}
	if err := src.EnsureTable(ctx); err != nil {
		return nil, err
	}
	opts, err := processorOptions(cfg, m, logger)
	if err != nil {
		return nil, err
	}
	proc, err := searcher.New[ID, entity.Record[ID]](cfg.Index.Path, src, c, opts...)
	if err != nil {
		return nil, err
	}
	return &typedSession[ID]{db: db, src: src, proc: proc, codec: c}, nil
}

// processorOptions maps configuration onto processor options.
func processorOptions(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) ([]searcher.Option, error) {
	strategy, err := searcher.ParseStrategy(cfg.Search.Strategy)
	if err != nil {
		return nil, nrterrors.ConfigError("invalid search.strategy", err)
	}
	qt, err := query.ParseType(cfg.Search.QueryType)
	if err != nil {
		return nil, nrterrors.ConfigError("invalid search.query_type", err)
	}

	opts := []searcher.Option{
		searcher.WithStrategy(strategy),
		searcher.WithQueryType(qt),
		searcher.WithMaxResults(cfg.Search.MaxResults),
		searcher.WithAnalyzer(cfg.Index.Analyzer),
		searcher.WithWriteBufferSize(cfg.Index.WriteBufferSize),
		searcher.WithCommitThreshold(cfg.Commit.Threshold),
		searcher.WithRebuildCommitEvery(cfg.Commit.RebuildCommitEvery),
		searcher.WithReopenInterval(cfg.MaxStale(), cfg.MinStale()),
		searcher.WithGenerationWait(cfg.GenerationWait()),
		searcher.WithEntityCache(cfg.Source.CacheSize),
		searcher.WithMetrics(m),
		searcher.WithLogger(logger),
	}
	if cfg.Search.SortByInsertion {
		opts = append(opts, searcher.WithInsertionOrder(cfg.Search.SortDescending))
	}
	return opts, nil
}

func (s *typedSession[ID]) parseID(raw string) (ID, error) {
	id, err := s.codec.Decode(raw)
	if err != nil {
		return id, nrterrors.InvalidInput(fmt.Sprintf("invalid %s id %q", s.codec.Name(), raw), err)
	}
	return id, nil
}

// Search searches and, when the index was missing, waits for the recovery
// rebuild and searches again.
func (s *typedSession[ID]) Search(ctx context.Context, text string, entities bool, atGeneration uint64) ([]hit, error) {
	hits, err := s.search(ctx, text, entities, atGeneration)
	if err != nil || len(hits) > 0 {
		return hits, err
	}
	if err := s.proc.WaitRebuild(); err != nil {
		return nil, err
	}
	if s.proc.Stats(ctx).Rebuild.Runs == 0 {
		return hits, nil
	}
	return s.search(ctx, text, entities, atGeneration)
}

func (s *typedSession[ID]) search(ctx context.Context, text string, entities bool, atGeneration uint64) ([]hit, error) {
	if entities {
		recs, err := s.proc.SearchEntities(ctx, text)
		if err != nil {
			return nil, err
		}
		out := make([]hit, 0, len(recs))
		for _, r := range recs {
			out = append(out, hit{ID: s.codec.Encode(r.ID), Text: r.Text})
		}
		return out, nil
	}

	var (
		ids []ID
		err error
	)
	if atGeneration > 0 {
		ids, err = s.proc.SearchAtGeneration(ctx, text, atGeneration)
	} else {
		ids, err = s.proc.Search(ctx, text)
	}
	if err != nil {
		return nil, err
	}
	out := make([]hit, 0, len(ids))
	for _, id := range ids {
		out = append(out, hit{ID: s.codec.Encode(id)})
	}
	return out, nil
}

// Add stores the entity in the source and indexes it.
func (s *typedSession[ID]) Add(ctx context.Context, raw, text string) (uint64, error) {
	id, err := s.parseID(raw)
	if err != nil {
		return 0, err
	}
	if err := s.src.Upsert(ctx, id, text); err != nil {
		return 0, err
	}
	return s.proc.AddIndexTracked(ctx, id, text)
}

// Delete removes the entity from the source and the index.
func (s *typedSession[ID]) Delete(ctx context.Context, raw string) (uint64, error) {
	id, err := s.parseID(raw)
	if err != nil {
		return 0, err
	}
	if err := s.src.Remove(ctx, id); err != nil {
		return 0, err
	}
	return s.proc.DeleteIndexTracked(ctx, id)
}

func (s *typedSession[ID]) IDs(ctx context.Context) ([]string, error) {
	ids, err := s.proc.AllIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.codec.Encode(id))
	}
	return out, nil
}

func (s *typedSession[ID]) Rebuild(ctx context.Context) error {
	return s.proc.RebuildIndexSync(ctx)
}

func (s *typedSession[ID]) Stats(ctx context.Context) searcher.Stats {
	return s.proc.Stats(ctx)
}

func (s *typedSession[ID]) Close() error {
	return errors.Join(s.proc.Close(), s.db.Close())
}
