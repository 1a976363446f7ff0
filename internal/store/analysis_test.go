package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitIdentifiers(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{name: "whitespace", input: "hello world", expect: []string{"hello", "world"}},
		{name: "camelCase", input: "getUserById", expect: []string{"get", "User", "By", "Id"}},
		{name: "PascalCase", input: "UserService", expect: []string{"User", "Service"}},
		{name: "acronym", input: "parseHTTPRequest", expect: []string{"parse", "HTTP", "Request"}},
		{name: "snake_case", input: "max_retry_count", expect: []string{"max", "retry", "count"}},
		{name: "mixed delimiters", input: "foo.bar(baz, qux)", expect: []string{"foo", "bar", "baz", "qux"}},
		{name: "unicode", input: "größeWert", expect: []string{"größe", "Wert"}},
		{name: "empty", input: "", expect: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, SplitIdentifiers(tt.input))
		})
	}
}

func TestIdentifierTokenizer_Offsets(t *testing.T) {
	// Given: input with a multi-byte rune
	input := []byte("é_fooBar")

	// When: tokenizing
	stream := (&identifierTokenizer{}).Tokenize(input)

	// Then: offsets are byte offsets and positions are sequential
	require.Len(t, stream, 3)
	assert.Equal(t, "é", string(stream[0].Term))
	assert.Equal(t, 0, stream[0].Start)
	assert.Equal(t, 2, stream[0].End)
	assert.Equal(t, "foo", string(stream[1].Term))
	assert.Equal(t, 3, stream[1].Start)
	assert.Equal(t, "Bar", string(stream[2].Term))
	assert.Equal(t, 3, stream[2].Position)
}

func TestNextInsertionStamp_StrictlyIncreasing(t *testing.T) {
	prev := NextInsertionStamp()
	for i := 0; i < 1000; i++ {
		next := NextInsertionStamp()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestAnalyzers(t *testing.T) {
	for _, name := range Analyzers() {
		t.Run(name, func(t *testing.T) {
			_, err := NewMapping(name)
			assert.NoError(t, err)
		})
	}
}
