package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_StatusLines(t *testing.T) {
	// Given: a writer on a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing one line of each kind
	w.Successf("rebuilt %d documents", 4)
	w.Warning("index missing")
	w.Errorf("search failed: %s", "boom")

	// Then: each line carries its marker
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"✓ rebuilt 4 documents",
		"! index missing",
		"✗ search failed: boom",
	}, lines)
}

func TestWriter_Lines(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Lines([]string{"3", "1"})
	assert.Equal(t, "3\n1\n", buf.String())
}

func TestWriter_TableAlignsKeys(t *testing.T) {
	// Given: keys of different lengths
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a table
	w.Table([]KV{{"strategy", "legacy"}, {"documents", 12}})

	// Then: values start in the same column
	assert.Equal(t, "strategy   legacy\ndocuments  12\n", buf.String())
}

func TestWriter_ProgressNotInPlaceForBuffers(t *testing.T) {
	// Given: a non-terminal writer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: reporting progress twice
	w.Progress(1, 4, "indexing")
	w.Progress(4, 4, "indexing")

	// Then: one full line per update, no carriage returns
	out := buf.String()
	assert.NotContains(t, out, "\r")
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Contains(t, out, "25% indexing")
	assert.Contains(t, out, "100% indexing")
}

func TestWriter_ProgressUnknownTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Progress(3, 0, "listing")
	assert.Empty(t, buf.String())
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name           string
		current, total int
		filled         int
	}{
		{"empty", 0, 10, 0},
		{"half", 5, 10, 5},
		{"full", 10, 10, 10},
		{"overflow", 15, 10, 10},
		{"unknown total", 3, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := renderProgressBar(tt.current, tt.total, 10)
			assert.Equal(t, tt.filled, strings.Count(bar, "█"))
			assert.Equal(t, 10-tt.filled, strings.Count(bar, "░"))
		})
	}
}
