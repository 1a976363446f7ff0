package store

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

// Analyzer names accepted by WithAnalyzer and the index.analyzer setting.
const (
	AnalyzerStandard   = "standard"
	AnalyzerSimple     = "simple"
	AnalyzerKeyword    = "keyword"
	AnalyzerIdentifier = "identifier"
)

const (
	// IdentifierTokenizerName is the registry name of the identifier tokenizer.
	IdentifierTokenizerName = "nrtindex_identifier"

	identifierAnalyzerName = "nrtindex_identifier_analyzer"
)

func init() {
	registry.RegisterTokenizer(IdentifierTokenizerName, identifierTokenizerConstructor)
}

// Analyzers lists the analyzer names a store can be opened with.
func Analyzers() []string {
	return []string{AnalyzerStandard, AnalyzerSimple, AnalyzerKeyword, AnalyzerIdentifier}
}

// analyzerFor resolves a configured analyzer name to the name registered in
// the index mapping, adding the custom analyzer when needed.
func analyzerFor(im *mapping.IndexMappingImpl, name string) (string, error) {
	switch name {
	case "", AnalyzerStandard:
		return standard.Name, nil
	case AnalyzerSimple:
		return simple.Name, nil
	case AnalyzerKeyword:
		return keyword.Name, nil
	case AnalyzerIdentifier:
		err := im.AddCustomAnalyzer(identifierAnalyzerName, map[string]interface{}{
			"type":          custom.Name,
			"tokenizer":     IdentifierTokenizerName,
			"token_filters": []string{lowercase.Name},
		})
		if err != nil {
			return "", fmt.Errorf("failed to add identifier analyzer: %w", err)
		}
		return identifierAnalyzerName, nil
	default:
		return "", fmt.Errorf("unknown analyzer %q", name)
	}
}

// SplitIdentifiers splits text into words on anything that is not a letter
// or digit, then splits each word on camelCase and PascalCase boundaries.
// Case is preserved; the analyzer lowercases afterwards.
//
// Examples:
//   - "getUserById" -> ["get", "User", "By", "Id"]
//   - "parse_HTTPRequest" -> ["parse", "HTTP", "Request"]
func SplitIdentifiers(text string) []string {
	spans := identifierSpans(text)
	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, text[sp.start:sp.end])
	}
	return out
}

type span struct {
	start, end int
}

// identifierSpans returns byte offsets of every sub-word in text.
func identifierSpans(text string) []span {
	var spans []span
	start := -1
	var prev rune

	flush := func(end int) {
		if start >= 0 && end > start {
			spans = append(spans, span{start: start, end: end})
		}
		start = -1
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush(i)
			prev = 0
			i += size
			continue
		}

		if start >= 0 && unicode.IsUpper(r) {
			next, _ := utf8.DecodeRuneInString(text[i+size:])
			prevIsLower := unicode.IsLower(prev)
			nextIsLower := i+size < len(text) && unicode.IsLower(next)
			// Split before an upper-case rune that starts a new word, keeping
			// acronyms together ("HTTPRequest" -> "HTTP", "Request").
			if prevIsLower || (unicode.IsUpper(prev) && nextIsLower) {
				flush(i)
			}
		}
		if start < 0 {
			start = i
		}
		prev = r
		i += size
	}
	flush(len(text))
	return spans
}

func identifierTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &identifierTokenizer{}, nil
}

// identifierTokenizer implements analysis.Tokenizer for identifier-heavy text.
type identifierTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *identifierTokenizer) Tokenize(input []byte) analysis.TokenStream {
	spans := identifierSpans(string(input))
	stream := make(analysis.TokenStream, 0, len(spans))
	for i, sp := range spans {
		stream = append(stream, &analysis.Token{
			Term:     input[sp.start:sp.end],
			Start:    sp.start,
			End:      sp.end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return stream
}
