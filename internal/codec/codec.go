// Package codec converts entity identifiers to and from the string form
// stored in the index.
//
// The index keys every document by a string. A Codec fixes how an
// identifier of a concrete Go type is rendered into that key and how a key
// read back from a search hit is turned into the identifier again.
package codec

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Codec encodes identifiers of type ID into index keys and back.
// Decode(Encode(id)) must return id for every value of ID.
type Codec[ID comparable] interface {
	Encode(id ID) string
	Decode(key string) (ID, error)
	// Name identifies the codec in logs and config.
	Name() string
}

// Int64 encodes int64 identifiers in base 10.
type Int64 struct{}

// Encode implements Codec.
func (Int64) Encode(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Decode implements Codec.
func (Int64) Decode(key string) (int64, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode int64 id %q: %w", key, err)
	}
	return id, nil
}

// Name implements Codec.
func (Int64) Name() string { return "int" }

// String stores identifiers verbatim.
type String struct{}

// Encode implements Codec.
func (String) Encode(id string) string { return id }

// Decode implements Codec.
func (String) Decode(key string) (string, error) { return key, nil }

// Name implements Codec.
func (String) Name() string { return "string" }

// UUID stores identifiers in canonical 36-character form.
type UUID struct{}

// Encode implements Codec.
func (UUID) Encode(id uuid.UUID) string { return id.String() }

// Decode implements Codec.
func (UUID) Decode(key string) (uuid.UUID, error) {
	id, err := uuid.Parse(key)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode uuid id %q: %w", key, err)
	}
	return id, nil
}

// Name implements Codec.
func (UUID) Name() string { return "uuid" }

var (
	_ Codec[int64]     = Int64{}
	_ Codec[string]    = String{}
	_ Codec[uuid.UUID] = UUID{}
)
