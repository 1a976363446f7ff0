// Package query turns user search text into bleve queries. Each Type is one
// construction strategy; only the structured type parses a grammar and can
// reject its input.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	bq "github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"

	nrterrors "github.com/Aman-CERP/nrtindex/internal/errors"
)

// Type names a query construction strategy.
type Type string

const (
	// Structured parses the query-string grammar: +required, -excluded,
	// field:term, "phrases", ranges and boosts.
	Structured Type = "structured"
	// Phrase matches the whitespace-separated words at adjacent positions.
	Phrase Type = "phrase"
	// Wildcard matches the input as a term prefix.
	Wildcard Type = "wildcard"
	// Fuzzy matches terms within edit distance 2 of the input.
	Fuzzy Type = "fuzzy"
)

// Fuzziness is the maximum edit distance of fuzzy queries.
const Fuzziness = 2

// Types lists the supported query types.
func Types() []Type {
	return []Type{Structured, Phrase, Wildcard, Fuzzy}
}

// ParseType validates a configured type name.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types() {
		if t == known {
			return t, nil
		}
	}
	return "", nrterrors.InvalidInput(fmt.Sprintf("unknown query type %q", s), nil)
}

// Builder builds a query for text against field. An empty field targets the
// index's default search field.
type Builder interface {
	Build(field, text string) (bq.Query, error)
	Type() Type
}

// New returns the builder for t.
func New(t Type) (Builder, error) {
	switch t {
	case Structured:
		return structuredBuilder{}, nil
	case Phrase:
		return phraseBuilder{}, nil
	case Wildcard:
		return wildcardBuilder{}, nil
	case Fuzzy:
		return fuzzyBuilder{}, nil
	default:
		return nil, nrterrors.InvalidInput(fmt.Sprintf("unknown query type %q", t), nil)
	}
}

type structuredBuilder struct{}

func (structuredBuilder) Type() Type { return Structured }

// Build parses text eagerly so grammar errors surface here, not at search.
// Unqualified terms search the default field; field is ignored because the
// grammar names fields itself.
func (structuredBuilder) Build(field, text string) (bq.Query, error) {
	if strings.TrimSpace(text) == "" {
		return bleve.NewMatchNoneQuery(), nil
	}
	parsed, err := bleve.NewQueryStringQuery(text).Parse()
	if err != nil {
		return nil, nrterrors.QuerySyntax(text, err)
	}
	return parsed, nil
}

type phraseBuilder struct{}

func (phraseBuilder) Type() Type { return Phrase }

func (phraseBuilder) Build(field, text string) (bq.Query, error) {
	terms := strings.Fields(strings.ToLower(text))
	switch len(terms) {
	case 0:
		return bleve.NewMatchNoneQuery(), nil
	case 1:
		q := bleve.NewTermQuery(terms[0])
		q.SetField(field)
		return q, nil
	}
	if field == "" {
		return defaultFieldPhrase{terms: terms}, nil
	}
	return bleve.NewPhraseQuery(terms, field), nil
}

// defaultFieldPhrase is a phrase query on the mapping's default search
// field. bleve's PhraseQuery does not fall back to it on its own.
type defaultFieldPhrase struct {
	terms []string
}

func (q defaultFieldPhrase) Searcher(ctx context.Context, i index.IndexReader, m mapping.IndexMapping, options search.SearcherOptions) (search.Searcher, error) {
	return bleve.NewPhraseQuery(q.terms, m.DefaultSearchField()).Searcher(ctx, i, m, options)
}

type wildcardBuilder struct{}

func (wildcardBuilder) Type() Type { return Wildcard }

// Build strips leading wildcards and matches the rest as a prefix. Inner
// wildcards keep their meaning.
func (wildcardBuilder) Build(field, text string) (bq.Query, error) {
	rest := strings.TrimLeft(strings.ToLower(strings.TrimSpace(text)), "*?")
	if rest == "" {
		return bleve.NewMatchNoneQuery(), nil
	}
	q := bleve.NewWildcardQuery(rest + "*")
	q.SetField(field)
	return q, nil
}

type fuzzyBuilder struct{}

func (fuzzyBuilder) Type() Type { return Fuzzy }

// Build treats the whole input as one term.
func (fuzzyBuilder) Build(field, text string) (bq.Query, error) {
	term := strings.ToLower(strings.TrimSpace(text))
	if term == "" {
		return bleve.NewMatchNoneQuery(), nil
	}
	q := bleve.NewFuzzyQuery(term)
	q.SetField(field)
	q.SetFuzziness(Fuzziness)
	return q, nil
}
