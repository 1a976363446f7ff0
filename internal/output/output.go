// Package output formats human-readable CLI output: status lines, aligned
// key/value tables and a rebuild progress bar.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Aman-CERP/nrtindex/internal/logging"
)

const barWidth = 30

// Writer writes formatted lines to out. Console write errors are ignored.
type Writer struct {
	out io.Writer
	// inPlace redraws the progress bar on one line. Only terminals get it.
	inPlace bool
}

// New creates a Writer for out. Progress redraws in place when out is a
// terminal and prints one line per update otherwise.
func New(out io.Writer) *Writer {
	w := &Writer{out: out}
	if f, ok := out.(*os.File); ok {
		w.inPlace = logging.IsTerminal(f)
	}
	return w
}

func (w *Writer) line(prefix, msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", prefix, msg)
}

// Success prints msg marked as done.
func (w *Writer) Success(msg string) { w.line("✓", msg) }

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }

// Warning prints msg marked as a warning.
func (w *Writer) Warning(msg string) { w.line("!", msg) }

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) { w.Warning(fmt.Sprintf(format, args...)) }

// Error prints msg marked as failed.
func (w *Writer) Error(msg string) { w.line("✗", msg) }

// Errorf is Error with formatting.
func (w *Writer) Errorf(format string, args ...any) { w.Error(fmt.Sprintf(format, args...)) }

// Lines prints each value on its own line.
func (w *Writer) Lines(values []string) {
	for _, v := range values {
		_, _ = fmt.Fprintln(w.out, v)
	}
}

// KV is one row of a key/value table.
type KV struct {
	Key   string
	Value any
}

// Table prints rows with keys padded to a common width.
func (w *Writer) Table(rows []KV) {
	width := 0
	for _, r := range rows {
		if len(r.Key) > width {
			width = len(r.Key)
		}
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(w.out, "%-*s  %v\n", width, r.Key, r.Value)
	}
}

// Progress prints a progress bar for current of total. Nothing is printed
// while total is unknown.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, barWidth)

	if !w.inPlace {
		_, _ = fmt.Fprintf(w.out, "[%s] %.0f%% %s\n", bar, pct, msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", bar, pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := current * width / total
	filled = max(0, min(filled, width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
