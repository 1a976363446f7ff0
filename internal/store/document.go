package store

import (
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Field names of an indexed document.
const (
	// FieldID holds the encoded identifier, indexed as a single keyword term.
	FieldID = "i"
	// FieldContent holds the analyzed, stored text.
	FieldContent = "c"
	// FieldInsertedAt holds the insertion time in microseconds.
	FieldInsertedAt = "t"
)

// Document is the immutable unit stored in the index.
type Document struct {
	// ID is the codec-encoded identifier and the bleve document id.
	ID string
	// Content is the text that is analyzed for search.
	Content string
	// InsertedAt is the insertion time in microseconds. Zero means the field
	// is not written.
	InsertedAt int64
}

// fields returns the document in the shape the static mapping expects.
func (d Document) fields() map[string]interface{} {
	m := map[string]interface{}{
		FieldID:      d.ID,
		FieldContent: d.Content,
	}
	if d.InsertedAt != 0 {
		m[FieldInsertedAt] = float64(d.InsertedAt)
	}
	return m
}

// AddTo queues the document in b, replacing any document with the same id.
func (d Document) AddTo(b *bleve.Batch) error {
	return b.Index(d.ID, d.fields())
}

var (
	clockMu   sync.Mutex
	lastStamp int64
)

// NextInsertionStamp returns a process-wide strictly increasing timestamp in
// microseconds. When the wall clock has not advanced, the previous value is
// bumped by one.
func NextInsertionStamp() int64 {
	clockMu.Lock()
	defer clockMu.Unlock()

	now := time.Now().UnixMicro()
	if now <= lastStamp {
		now = lastStamp + 1
	}
	lastStamp = now
	return now
}

// NewMapping builds the index mapping for documents: a static mapping with a
// keyword id field, an analyzed content field (the default search field) and
// a numeric insertion-time field.
func NewMapping(analyzer string) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	name, err := analyzerFor(im, analyzer)
	if err != nil {
		return nil, err
	}

	idField := mapping.NewKeywordFieldMapping()
	idField.Store = true
	idField.IncludeTermVectors = false

	contentField := mapping.NewTextFieldMapping()
	contentField.Analyzer = name
	contentField.Store = true

	timeField := mapping.NewNumericFieldMapping()
	timeField.Store = false
	timeField.DocValues = true

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(FieldID, idField)
	doc.AddFieldMappingsAt(FieldContent, contentField)
	doc.AddFieldMappingsAt(FieldInsertedAt, timeField)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = name
	im.DefaultField = FieldContent

	return im, nil
}
