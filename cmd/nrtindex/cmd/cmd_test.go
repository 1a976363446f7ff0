package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/nrtindex/internal/config"
	"github.com/Aman-CERP/nrtindex/internal/entity"
	nrterrors "github.com/Aman-CERP/nrtindex/internal/errors"
	"github.com/Aman-CERP/nrtindex/pkg/version"
)

// workspace isolates config, logs, the index and the entity database in a
// temp dir and returns it.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	oldWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("NRTINDEX_INDEX_PATH", filepath.Join(dir, "index"))
	t.Setenv("NRTINDEX_SOURCE_DSN", filepath.Join(dir, "entities.db"))
	for _, k := range []string{
		"NRTINDEX_STRATEGY", "NRTINDEX_QUERY_TYPE", "NRTINDEX_MAX_RESULTS",
		"NRTINDEX_SORT_BY_INSERTION", "NRTINDEX_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "nrtindex %s", strings.Join(args, " "))
	return out
}

func lines(out string) []string {
	out = strings.TrimSpace(out)
	if out == "" {
		return []string{}
	}
	return strings.Split(out, "\n")
}

func TestVersionCmd(t *testing.T) {
	out := mustRun(t, "version")
	assert.Contains(t, out, "nrtindex")
	assert.Contains(t, out, version.Version)

	out = mustRun(t, "version", "--short")
	assert.Equal(t, version.Version, strings.TrimSpace(out))

	out = mustRun(t, "version", "--json")
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info["version"])
}

func TestAddSearchDelete(t *testing.T) {
	// Given: two entities added through the CLI
	workspace(t)
	out := mustRun(t, "add", "car-1", "red", "sports", "car")
	assert.Contains(t, out, "indexed car-1")
	mustRun(t, "add", "truck-2", "blue pickup truck")

	// When: searching in a new process
	out = mustRun(t, "search", "truck")

	// Then: the matching id is printed
	assert.Equal(t, []string{"truck-2"}, lines(out))

	out = mustRun(t, "search", "--entities", "red")
	assert.Equal(t, []string{"car-1\tred sports car"}, lines(out))

	// When: deleting
	out = mustRun(t, "delete", "truck-2")
	assert.Contains(t, out, "deleted truck-2")

	// Then: it no longer matches
	assert.Empty(t, lines(mustRun(t, "search", "truck")))
	assert.Equal(t, []string{"car-1"}, lines(mustRun(t, "ids")))
}

func TestSearchJSON(t *testing.T) {
	workspace(t)
	mustRun(t, "add", "7", "yellow school bus")

	out := mustRun(t, "search", "--json", "--entities", "bus")

	var hits []hit
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	assert.Equal(t, []hit{{ID: "7", Text: "yellow school bus"}}, hits)
}

func seedEntities(t *testing.T, dir string, recs ...entity.Record[string]) {
	t.Helper()
	db, err := entity.OpenSQLite(filepath.Join(dir, "entities.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	src, err := entity.NewSQLSource[string](db, entity.DefaultSQLConfig())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, src.EnsureTable(ctx))
	for _, r := range recs {
		require.NoError(t, src.Upsert(ctx, r.ID, r.Text))
	}
}

func TestSearchRebuildsMissingIndex(t *testing.T) {
	// Given: rows in the entity table and no index
	dir := workspace(t)
	seedEntities(t, dir,
		entity.Record[string]{ID: "a", Text: "red fire truck"},
		entity.Record[string]{ID: "b", Text: "green scooter"},
	)

	// When: searching
	out := mustRun(t, "search", "truck")

	// Then: the index is rebuilt from the table and the search answered
	assert.Equal(t, []string{"a"}, lines(out))
	assert.DirExists(t, filepath.Join(dir, "index"))
}

func TestRebuildCmd(t *testing.T) {
	dir := workspace(t)
	seedEntities(t, dir,
		entity.Record[string]{ID: "a", Text: "red fire truck"},
		entity.Record[string]{ID: "b", Text: "green scooter"},
	)

	out := mustRun(t, "rebuild")
	assert.Contains(t, out, "rebuilt index with 2 documents")

	assert.ElementsMatch(t, []string{"a", "b"}, lines(mustRun(t, "ids")))
}

func TestStatsCmd(t *testing.T) {
	workspace(t)
	mustRun(t, "add", "1", "commuter bike")
	mustRun(t, "add", "2", "mountain bike")

	out := mustRun(t, "stats", "--json")
	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, float64(2), st["documents"])
	assert.Equal(t, "tracked_reopen", st["strategy"])
	assert.Equal(t, "closed", st["recovery_breaker"])

	out = mustRun(t, "stats")
	assert.Contains(t, out, "documents")
	assert.Contains(t, out, "tracked_reopen")
}

func TestConfigInitAndShow(t *testing.T) {
	dir := workspace(t)

	out := mustRun(t, "config", "init")
	assert.Contains(t, out, config.ProjectFile)
	assert.FileExists(t, filepath.Join(dir, config.ProjectFile))

	_, err := run(t, "config", "init")
	assert.Error(t, err)
	mustRun(t, "config", "init", "--force")

	out = mustRun(t, "config", "show")
	assert.Contains(t, out, "strategy: tracked_reopen")
}

func TestConfigFileIntegerIDs(t *testing.T) {
	// Given: a config file selecting integer ids and the legacy strategy
	dir := workspace(t)
	cfgPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"search:\n  strategy: legacy\nsource:\n  id_type: INTEGER\n"), 0o644))

	// When: adding with a numeric and a non-numeric id
	mustRun(t, "--config", cfgPath, "add", "42", "silver taxi")
	_, err := run(t, "--config", cfgPath, "add", "abc", "broken")

	// Then: the numeric id is indexed and the other rejected
	require.Error(t, err)
	assert.ErrorIs(t, err, nrterrors.ErrInvalidInput)
	assert.Equal(t, []string{"42"}, lines(mustRun(t, "--config", cfgPath, "search", "taxi")))
}

func TestInvalidConfigFails(t *testing.T) {
	workspace(t)
	t.Setenv("NRTINDEX_STRATEGY", "sharded")

	_, err := run(t, "ids")
	assert.Error(t, err)
}

func TestMetricsFlag(t *testing.T) {
	workspace(t)
	cmd := NewRootCmd()
	stderr := &bytes.Buffer{}
	cmd.SetOut(io.Discard)
	cmd.SetErr(stderr)
	cmd.SetArgs([]string{"--metrics", "add", "1", "delivery van"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, stderr.String(), "nrtindex_writer_commits_total")
}
