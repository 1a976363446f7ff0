// Package logging configures slog for nrtindex processes: JSON records go to
// a size-rotated file under ~/.nrtindex/logs, and a human-readable copy goes
// to stderr when stderr is a terminal.
package logging
