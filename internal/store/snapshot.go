package store

import (
	"context"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/collector"
	"github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"
)

// Snapshot is an immutable point-in-time view of the index. Writes applied
// after the snapshot was opened are not visible through it.
type Snapshot struct {
	path    string
	reader  index.IndexReader
	mapping mapping.IndexMapping

	closeOnce sync.Once
	closeErr  error
}

func newSnapshot(path string, idx bleve.Index) (*Snapshot, error) {
	adv, err := idx.Advanced()
	if err != nil {
		return nil, Classify(path, err)
	}
	reader, err := adv.Reader()
	if err != nil {
		return nil, Classify(path, err)
	}
	return &Snapshot{
		path:    path,
		reader:  reader,
		mapping: idx.Mapping(),
	}, nil
}

// ByScore orders hits by descending relevance.
func ByScore() search.SortOrder {
	return search.SortOrder{&search.SortScore{Desc: true}}
}

// ByInsertion orders hits by insertion time, newest first when desc.
func ByInsertion(desc bool) search.SortOrder {
	return search.SortOrder{&search.SortField{
		Field: FieldInsertedAt,
		Type:  search.SortFieldAsNumber,
		Desc:  desc,
	}}
}

// Search runs q and returns at most size document ids in the given order
// along with the total number of matches. A nil order sorts by score.
func (s *Snapshot) Search(ctx context.Context, q query.Query, size int, order search.SortOrder) ([]string, uint64, error) {
	if size <= 0 {
		return []string{}, 0, nil
	}
	if order == nil {
		order = ByScore()
	}

	searcher, err := q.Searcher(ctx, s.reader, s.mapping, search.SearcherOptions{})
	if err != nil {
		return nil, 0, Classify(s.path, err)
	}
	defer func() { _ = searcher.Close() }()

	coll := collector.NewTopNCollector(size, 0, order)
	if err := coll.Collect(ctx, searcher, s.reader); err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, Classify(s.path, err)
	}

	hits := coll.Results()
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.ID)
	}
	return ids, coll.Total(), nil
}

// AllIDs returns the id of every document in the snapshot.
func (s *Snapshot) AllIDs(ctx context.Context) ([]string, error) {
	n, err := s.DocCount()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []string{}, nil
	}
	ids, _, err := s.Search(ctx, query.NewMatchAllQuery(), int(n), nil)
	return ids, err
}

// DocCount returns the number of live documents in the snapshot.
func (s *Snapshot) DocCount() (uint64, error) {
	n, err := s.reader.DocCount()
	if err != nil {
		return 0, Classify(s.path, err)
	}
	return n, nil
}

// Close releases the reader. Safe to call more than once.
func (s *Snapshot) Close() error {
	s.closeOnce.Do(func() {
		if err := s.reader.Close(); err != nil {
			s.closeErr = Classify(s.path, err)
		}
	})
	return s.closeErr
}
