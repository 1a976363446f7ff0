// Package entity defines the collaborator that owns the indexed records:
// it lists every entity for a rebuild and fetches entities by id for search
// results. The index never stores anything an entity source cannot
// reproduce.
package entity

import (
	"context"
	"errors"
)

// ErrNotImplemented is returned by sources that cannot fetch a batch of ids
// in one call. Callers fall back to ByID per id.
var ErrNotImplemented = errors.New("entity: operation not implemented")

// Indexable is an entity that can be indexed: a stable identifier and the
// text to analyze.
type Indexable[ID comparable] interface {
	IndexID() ID
	IndexText() string
}

// Source supplies entities of type E keyed by ID.
type Source[ID comparable, E Indexable[ID]] interface {
	// ListAll returns every entity, in a stable order.
	ListAll(ctx context.Context) ([]E, error)
	// ByIDs returns the entities with the given ids in the requested order,
	// skipping ids that do not exist. May return ErrNotImplemented.
	ByIDs(ctx context.Context, ids []ID) ([]E, error)
	// ByID returns the entity with id and whether it exists.
	ByID(ctx context.Context, id ID) (E, bool, error)
}

// Record is the plain Indexable used by the built-in sources.
type Record[ID comparable] struct {
	ID   ID     `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// IndexID implements Indexable.
func (r Record[ID]) IndexID() ID { return r.ID }

// IndexText implements Indexable.
func (r Record[ID]) IndexText() string { return r.Text }

// Fetch resolves ids to entities, using ByIDs when the source supports it
// and falling back to one ByID call per id otherwise. Order follows ids.
func Fetch[ID comparable, E Indexable[ID]](ctx context.Context, src Source[ID, E], ids []ID) ([]E, error) {
	if len(ids) == 0 {
		return []E{}, nil
	}

	out, err := src.ByIDs(ctx, ids)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, ErrNotImplemented) {
		return nil, err
	}

	out = make([]E, 0, len(ids))
	for _, id := range ids {
		e, ok, err := src.ByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}
