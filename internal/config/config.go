package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/nrtindex/internal/entity"
	"github.com/Aman-CERP/nrtindex/internal/query"
	"github.com/Aman-CERP/nrtindex/internal/store"
)

// ProjectFile is the per-project configuration file name.
const ProjectFile = ".nrtindex.yaml"

// Access strategy names accepted in search.strategy.
const (
	StrategyLegacy        = "legacy"
	StrategyCachedNRT     = "cached_nrt"
	StrategyManagedPool   = "managed_pool"
	StrategyTrackedReopen = "tracked_reopen"
	StrategyDirectReader  = "direct_reader"
)

// Strategies lists the accepted search.strategy values.
func Strategies() []string {
	return []string{StrategyLegacy, StrategyCachedNRT, StrategyManagedPool, StrategyTrackedReopen, StrategyDirectReader}
}

// Config represents the complete nrtindex configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Commit  CommitConfig  `yaml:"commit" json:"commit"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Reopen  ReopenConfig  `yaml:"reopen" json:"reopen"`
	Source  SourceConfig  `yaml:"source" json:"source"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// IndexConfig configures the on-disk index.
type IndexConfig struct {
	// Path is the index root directory. Empty selects an in-memory index.
	Path string `yaml:"path" json:"path"`
	// Analyzer is one of standard, simple, keyword, identifier.
	Analyzer string `yaml:"analyzer" json:"analyzer"`
	// WriteBufferSize is the number of buffered operations before an
	// automatic flush.
	WriteBufferSize int `yaml:"write_buffer_size" json:"write_buffer_size"`
}

// CommitConfig configures commit batching.
type CommitConfig struct {
	// Threshold is the number of pending operations that forces a commit
	// while other writers are still active.
	Threshold int `yaml:"threshold" json:"threshold"`
	// RebuildCommitEvery is the commit interval during a full rebuild.
	RebuildCommitEvery int `yaml:"rebuild_commit_every" json:"rebuild_commit_every"`
}

// SearchConfig configures query handling.
type SearchConfig struct {
	Strategy        string `yaml:"strategy" json:"strategy"`
	QueryType       string `yaml:"query_type" json:"query_type"`
	MaxResults      int    `yaml:"max_results" json:"max_results"`
	SortByInsertion bool   `yaml:"sort_by_insertion" json:"sort_by_insertion"`
	SortDescending  bool   `yaml:"sort_descending" json:"sort_descending"`
}

// ReopenConfig configures background reopening. Values are Go duration
// strings ("5s", "10ms").
type ReopenConfig struct {
	MaxStale       string `yaml:"max_stale" json:"max_stale"`
	MinStale       string `yaml:"min_stale" json:"min_stale"`
	GenerationWait string `yaml:"generation_wait" json:"generation_wait"`
}

// SourceConfig configures the SQLite entity table used by the CLI.
type SourceConfig struct {
	// DSN is the SQLite database path. Empty uses an in-memory database.
	DSN        string `yaml:"dsn" json:"dsn"`
	Table      string `yaml:"table" json:"table"`
	IDColumn   string `yaml:"id_column" json:"id_column"`
	TextColumn string `yaml:"text_column" json:"text_column"`
	// IDType is INTEGER or TEXT.
	IDType string `yaml:"id_type" json:"id_type"`
	// SeqColumn records insertion order. "rowid" uses the table's rowid.
	SeqColumn string `yaml:"seq_column" json:"seq_column"`
	// CacheSize is the number of entities kept in the LRU cache. 0 disables
	// caching.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// File is the log file path. Empty uses the default log path.
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	sql := entity.DefaultSQLConfig()
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Path:            defaultIndexPath(),
			Analyzer:        store.AnalyzerStandard,
			WriteBufferSize: 1000,
		},
		Commit: CommitConfig{
			Threshold:          20,
			RebuildCommitEvery: 5,
		},
		Search: SearchConfig{
			Strategy:   StrategyTrackedReopen,
			QueryType:  string(query.Structured),
			MaxResults: 100,
		},
		Reopen: ReopenConfig{
			MaxStale:       "5s",
			MinStale:       "10ms",
			GenerationWait: "1s",
		},
		Source: SourceConfig{
			DSN:        "",
			Table:      sql.Table,
			IDColumn:   sql.IDColumn,
			TextColumn: sql.TextColumn,
			IDType:     sql.IDType,
			SeqColumn:  sql.SeqColumn,
			CacheSize:  entity.DefaultCacheSize,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

func defaultIndexPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".nrtindex", "data")
	}
	return filepath.Join(home, ".nrtindex", "data")
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/nrtindex/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/nrtindex/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "nrtindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "nrtindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "nrtindex", "config.yaml")
}

// loadUserConfig loads the user configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := parseYAML(configPath, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/nrtindex/config.yaml)
//  3. Project config (.nrtindex.yaml in dir)
//  4. Environment variables (NRTINDEX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads configuration from an explicit file, skipping the user
// and project files. Environment overrides still apply.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile loads .nrtindex.yaml or .nrtindex.yml from dir if present.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ProjectFile)
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".nrtindex.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func parseYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadYAML merges non-zero values from a YAML file into c.
func (c *Config) loadYAML(path string) error {
	var parsed Config
	if err := parseYAML(path, &parsed); err != nil {
		return err
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c. Booleans can only be
// switched on by a file; use env overrides to switch them off.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Index.Path != "" {
		c.Index.Path = other.Index.Path
	}
	if other.Index.Analyzer != "" {
		c.Index.Analyzer = other.Index.Analyzer
	}
	if other.Index.WriteBufferSize != 0 {
		c.Index.WriteBufferSize = other.Index.WriteBufferSize
	}

	if other.Commit.Threshold != 0 {
		c.Commit.Threshold = other.Commit.Threshold
	}
	if other.Commit.RebuildCommitEvery != 0 {
		c.Commit.RebuildCommitEvery = other.Commit.RebuildCommitEvery
	}

	if other.Search.Strategy != "" {
		c.Search.Strategy = other.Search.Strategy
	}
	if other.Search.QueryType != "" {
		c.Search.QueryType = other.Search.QueryType
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.SortByInsertion {
		c.Search.SortByInsertion = true
	}
	if other.Search.SortDescending {
		c.Search.SortDescending = true
	}

	if other.Reopen.MaxStale != "" {
		c.Reopen.MaxStale = other.Reopen.MaxStale
	}
	if other.Reopen.MinStale != "" {
		c.Reopen.MinStale = other.Reopen.MinStale
	}
	if other.Reopen.GenerationWait != "" {
		c.Reopen.GenerationWait = other.Reopen.GenerationWait
	}

	if other.Source.DSN != "" {
		c.Source.DSN = other.Source.DSN
	}
	if other.Source.Table != "" {
		c.Source.Table = other.Source.Table
	}
	if other.Source.IDColumn != "" {
		c.Source.IDColumn = other.Source.IDColumn
	}
	if other.Source.TextColumn != "" {
		c.Source.TextColumn = other.Source.TextColumn
	}
	if other.Source.IDType != "" {
		c.Source.IDType = other.Source.IDType
	}
	if other.Source.SeqColumn != "" {
		c.Source.SeqColumn = other.Source.SeqColumn
	}
	if other.Source.CacheSize != 0 {
		c.Source.CacheSize = other.Source.CacheSize
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies NRTINDEX_* environment variable overrides.
// Unparseable numeric values are ignored.
func (c *Config) applyEnvOverrides() {
	if v, ok := os.LookupEnv("NRTINDEX_INDEX_PATH"); ok {
		// Explicitly empty selects the in-memory index.
		c.Index.Path = v
	}
	if v := os.Getenv("NRTINDEX_ANALYZER"); v != "" {
		c.Index.Analyzer = v
	}
	if v := os.Getenv("NRTINDEX_WRITE_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.WriteBufferSize = n
		}
	}
	if v := os.Getenv("NRTINDEX_COMMIT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Commit.Threshold = n
		}
	}
	if v := os.Getenv("NRTINDEX_STRATEGY"); v != "" {
		c.Search.Strategy = v
	}
	if v := os.Getenv("NRTINDEX_QUERY_TYPE"); v != "" {
		c.Search.QueryType = v
	}
	if v := os.Getenv("NRTINDEX_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}
	if v := os.Getenv("NRTINDEX_SORT_BY_INSERTION"); v != "" {
		c.Search.SortByInsertion = parseBool(v)
	}
	if v := os.Getenv("NRTINDEX_SORT_DESCENDING"); v != "" {
		c.Search.SortDescending = parseBool(v)
	}
	if v := os.Getenv("NRTINDEX_MAX_STALE"); v != "" {
		c.Reopen.MaxStale = v
	}
	if v := os.Getenv("NRTINDEX_MIN_STALE"); v != "" {
		c.Reopen.MinStale = v
	}
	if v := os.Getenv("NRTINDEX_SOURCE_DSN"); v != "" {
		c.Source.DSN = v
	}
	if v := os.Getenv("NRTINDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func parseBool(v string) bool {
	return strings.ToLower(v) == "true" || v == "1"
}

// MaxStale returns reopen.max_stale as a duration.
func (c *Config) MaxStale() time.Duration {
	d, _ := time.ParseDuration(c.Reopen.MaxStale)
	return d
}

// MinStale returns reopen.min_stale as a duration.
func (c *Config) MinStale() time.Duration {
	d, _ := time.ParseDuration(c.Reopen.MinStale)
	return d
}

// GenerationWait returns reopen.generation_wait as a duration.
func (c *Config) GenerationWait() time.Duration {
	d, _ := time.ParseDuration(c.Reopen.GenerationWait)
	return d
}

// SQLConfig returns the source table layout for the entity package.
func (c *Config) SQLConfig() entity.SQLConfig {
	return entity.SQLConfig{
		Table:      c.Source.Table,
		IDColumn:   c.Source.IDColumn,
		TextColumn: c.Source.TextColumn,
		IDType:     strings.ToUpper(c.Source.IDType),
		SeqColumn:  c.Source.SeqColumn,
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if !contains(store.Analyzers(), c.Index.Analyzer) {
		return fmt.Errorf("index.analyzer must be one of %s, got %q",
			strings.Join(store.Analyzers(), ", "), c.Index.Analyzer)
	}
	if c.Index.WriteBufferSize <= 0 {
		return fmt.Errorf("index.write_buffer_size must be positive, got %d", c.Index.WriteBufferSize)
	}
	if c.Commit.Threshold <= 0 {
		return fmt.Errorf("commit.threshold must be positive, got %d", c.Commit.Threshold)
	}
	if c.Commit.RebuildCommitEvery <= 0 {
		return fmt.Errorf("commit.rebuild_commit_every must be positive, got %d", c.Commit.RebuildCommitEvery)
	}

	if !contains(Strategies(), c.Search.Strategy) {
		return fmt.Errorf("search.strategy must be one of %s, got %q",
			strings.Join(Strategies(), ", "), c.Search.Strategy)
	}
	if _, err := query.ParseType(c.Search.QueryType); err != nil {
		return fmt.Errorf("search.query_type: %w", err)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}

	for name, v := range map[string]string{
		"reopen.max_stale":       c.Reopen.MaxStale,
		"reopen.min_stale":       c.Reopen.MinStale,
		"reopen.generation_wait": c.Reopen.GenerationWait,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s must be a duration, got %q", name, v)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, v)
		}
	}
	if c.MinStale() > c.MaxStale() {
		return fmt.Errorf("reopen.min_stale (%s) must not exceed reopen.max_stale (%s)",
			c.Reopen.MinStale, c.Reopen.MaxStale)
	}

	if err := c.SQLConfig().Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if c.Source.CacheSize < 0 {
		return fmt.Errorf("source.cache_size must be non-negative, got %d", c.Source.CacheSize)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// project config file. Returns the absolute startDir if neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) ||
			fileExists(filepath.Join(currentDir, ProjectFile)) ||
			fileExists(filepath.Join(currentDir, ".nrtindex.yml")) {
			return currentDir, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
