package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty directory and clears env
// overrides for the duration of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{
		"NRTINDEX_ANALYZER", "NRTINDEX_WRITE_BUFFER_SIZE", "NRTINDEX_COMMIT_THRESHOLD",
		"NRTINDEX_STRATEGY", "NRTINDEX_QUERY_TYPE", "NRTINDEX_MAX_RESULTS",
		"NRTINDEX_SORT_BY_INSERTION", "NRTINDEX_SORT_DESCENDING", "NRTINDEX_MAX_STALE",
		"NRTINDEX_MIN_STALE", "NRTINDEX_SOURCE_DSN", "NRTINDEX_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	// Setenv with "" would select the in-memory index; unset it instead.
	t.Setenv("NRTINDEX_INDEX_PATH", "")
	require.NoError(t, os.Unsetenv("NRTINDEX_INDEX_PATH"))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults are applied
	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)
	assert.Contains(t, cfg.Index.Path, ".nrtindex")
	assert.Equal(t, "standard", cfg.Index.Analyzer)
	assert.Equal(t, 1000, cfg.Index.WriteBufferSize)
	assert.Equal(t, 20, cfg.Commit.Threshold)
	assert.Equal(t, 5, cfg.Commit.RebuildCommitEvery)
	assert.Equal(t, StrategyTrackedReopen, cfg.Search.Strategy)
	assert.Equal(t, "structured", cfg.Search.QueryType)
	assert.Equal(t, 100, cfg.Search.MaxResults)
	assert.False(t, cfg.Search.SortByInsertion)
	assert.Equal(t, 5*time.Second, cfg.MaxStale())
	assert.Equal(t, 10*time.Millisecond, cfg.MinStale())
	assert.Equal(t, time.Second, cfg.GenerationWait())
	assert.Equal(t, "entities", cfg.Source.Table)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFilesUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search, cfg.Search)
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFile), `
index:
  path: /var/lib/nrtindex
  analyzer: identifier
commit:
  threshold: 50
search:
  strategy: managed_pool
  query_type: fuzzy
  sort_by_insertion: true
  sort_descending: true
reopen:
  max_stale: 2s
`)

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "/var/lib/nrtindex", cfg.Index.Path)
	assert.Equal(t, "identifier", cfg.Index.Analyzer)
	assert.Equal(t, 50, cfg.Commit.Threshold)
	assert.Equal(t, StrategyManagedPool, cfg.Search.Strategy)
	assert.Equal(t, "fuzzy", cfg.Search.QueryType)
	assert.True(t, cfg.Search.SortByInsertion)
	assert.True(t, cfg.Search.SortDescending)
	assert.Equal(t, 2*time.Second, cfg.MaxStale())
	// Untouched values keep their defaults.
	assert.Equal(t, 100, cfg.Search.MaxResults)
	assert.Equal(t, 10*time.Millisecond, cfg.MinStale())
}

func TestLoad_YmlFallback(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".nrtindex.yml"), "search:\n  max_results: 7\n")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Search.MaxResults)
}

func TestLoad_Precedence(t *testing.T) {
	// Given: user config, project config and env all set max_results
	isolate(t)
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	writeFile(t, filepath.Join(xdg, "nrtindex", "config.yaml"),
		"search:\n  max_results: 10\n  query_type: phrase\n")
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFile), "search:\n  max_results: 20\n")
	t.Setenv("NRTINDEX_MAX_RESULTS", "30")

	// When: loading
	cfg, err := Load(dir)

	// Then: env wins over project, project over user
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Search.MaxResults)
	assert.Equal(t, "phrase", cfg.Search.QueryType, "user value survives where not overridden")
	assert.Equal(t, filepath.Join(xdg, "nrtindex", "config.yaml"), GetUserConfigPath())
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("NRTINDEX_INDEX_PATH", "")
	t.Setenv("NRTINDEX_STRATEGY", StrategyLegacy)
	t.Setenv("NRTINDEX_SORT_BY_INSERTION", "1")
	t.Setenv("NRTINDEX_WRITE_BUFFER_SIZE", "not-a-number")
	t.Setenv("NRTINDEX_LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, cfg.Index.Path, "explicitly empty selects memory")
	assert.Equal(t, StrategyLegacy, cfg.Search.Strategy)
	assert.True(t, cfg.Search.SortByInsertion)
	assert.Equal(t, 1000, cfg.Index.WriteBufferSize, "bad numbers are ignored")
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFile), "search: [unclosed\n")

	_, err := Load(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	writeFile(t, path, "source:\n  table: notes\n  id_type: integer\n")

	cfg, err := LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, "notes", cfg.Source.Table)
	assert.Equal(t, "INTEGER", cfg.SQLConfig().IDType)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown analyzer", func(c *Config) { c.Index.Analyzer = "klingon" }, "index.analyzer"},
		{"zero buffer", func(c *Config) { c.Index.WriteBufferSize = 0 }, "write_buffer_size"},
		{"zero threshold", func(c *Config) { c.Commit.Threshold = 0 }, "commit.threshold"},
		{"zero rebuild commit", func(c *Config) { c.Commit.RebuildCommitEvery = -1 }, "rebuild_commit_every"},
		{"unknown strategy", func(c *Config) { c.Search.Strategy = "eager" }, "search.strategy"},
		{"unknown query type", func(c *Config) { c.Search.QueryType = "regex" }, "search.query_type"},
		{"zero max results", func(c *Config) { c.Search.MaxResults = 0 }, "max_results"},
		{"bad duration", func(c *Config) { c.Reopen.MaxStale = "soon" }, "reopen.max_stale"},
		{"negative duration", func(c *Config) { c.Reopen.GenerationWait = "-1s" }, "reopen.generation_wait"},
		{"min above max", func(c *Config) { c.Reopen.MinStale = "10s" }, "must not exceed"},
		{"bad table", func(c *Config) { c.Source.Table = "x; DROP TABLE y" }, "source"},
		{"bad id type", func(c *Config) { c.Source.IDType = "BLOB" }, "source"},
		{"negative cache", func(c *Config) { c.Source.CacheSize = -1 }, "cache_size"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Search.Strategy = StrategyCachedNRT
	cfg.Search.SortByInsertion = true

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectFile)))
	loaded, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, cfg.Search, loaded.Search)
	assert.Equal(t, cfg.Reopen, loaded.Reopen)
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ProjectFile), "version: 1\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := FindProjectRoot(nested)

	require.NoError(t, err)
	want, _ := filepath.EvalSymlinks(root)
	got, _ := filepath.EvalSymlinks(found)
	assert.Equal(t, want, got)
}
