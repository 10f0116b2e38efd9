package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete iiifstore configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Languages LanguagesConfig `yaml:"languages" json:"languages"`
	Indexing  IndexingConfig  `yaml:"indexing" json:"indexing"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Images    ImagesConfig    `yaml:"images" json:"images"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Worker    WorkerConfig    `yaml:"worker" json:"worker"`
}

// PathsConfig configures where data lives.
type PathsConfig struct {
	// DataDir holds the SQLite database, the text index and the lock file.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// ServerConfig configures the public identity of stored resources and the
// MCP server.
type ServerConfig struct {
	// CanonicalHostname is the scheme and host prefix of canonical ids,
	// e.g. "https://iiif.example.org".
	CanonicalHostname string `yaml:"canonical_hostname" json:"canonical_hostname"`

	// ResourcePath is the path segment between host and type,
	// e.g. "iiif" gives https://iiif.example.org/iiif/manifest/<uuid>.
	ResourcePath string `yaml:"resource_path" json:"resource_path"`

	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// LanguagesConfig configures language handling.
type LanguagesConfig struct {
	// Default replaces the IIIF "none" and "@none" language keys and is the
	// analyzer used for queries that do not name a language.
	Default string `yaml:"default" json:"default"`
}

// IndexedField selects one IIIF property for flattening into indexables.
type IndexedField struct {
	Key     string `yaml:"key" json:"key"`
	Type    string `yaml:"type" json:"type"`
	IndexAs string `yaml:"index_as" json:"index_as"`
}

// IndexingConfig configures decomposition and flattening.
type IndexingConfig struct {
	Fields []IndexedField `yaml:"fields" json:"fields"`

	// ResourceTypes lists the IIIF types stored as resources. Other types
	// are traversed but not stored.
	ResourceTypes []string `yaml:"resource_types" json:"resource_types"`

	// MaxDepth bounds decomposition recursion.
	MaxDepth int `yaml:"max_depth" json:"max_depth"`

	// DereferenceThumbnails fetches info.json for thumbnail image services.
	DereferenceThumbnails bool `yaml:"dereference_thumbnails" json:"dereference_thumbnails"`
}

// SearchConfig configures the text index and the query engine.
type SearchConfig struct {
	// Backend is "bleve" (default) or "sqlite" (FTS5).
	Backend string `yaml:"backend" json:"backend"`

	PageSize    int `yaml:"page_size" json:"page_size"`
	MaxPageSize int `yaml:"max_page_size" json:"max_page_size"`

	// HitBatchSize is how many indexable hits are read from the text index
	// at a time. Every match is read, in as many batches as needed.
	HitBatchSize int `yaml:"hit_batch_size" json:"hit_batch_size"`

	SnippetMinWords     int `yaml:"snippet_min_words" json:"snippet_min_words"`
	SnippetMaxWords     int `yaml:"snippet_max_words" json:"snippet_max_words"`
	SnippetMaxFragments int `yaml:"snippet_max_fragments" json:"snippet_max_fragments"`

	// QueryMetrics records query statistics in the store database.
	QueryMetrics bool `yaml:"query_metrics" json:"query_metrics"`
}

// ImagesConfig configures image service dereferencing.
type ImagesConfig struct {
	Timeout         string  `yaml:"timeout" json:"timeout"`
	Retries         int     `yaml:"retries" json:"retries"`
	RequestsPerSec  float64 `yaml:"requests_per_sec" json:"requests_per_sec"`
	Burst           int     `yaml:"burst" json:"burst"`
	CacheSize       int     `yaml:"cache_size" json:"cache_size"`
	CircuitFailures int     `yaml:"circuit_failures" json:"circuit_failures"`
	CircuitReset    string  `yaml:"circuit_reset" json:"circuit_reset"`
	ThumbnailWidth  int     `yaml:"thumbnail_width" json:"thumbnail_width"`
}

// StoreConfig configures the relational store.
type StoreConfig struct {
	// Driver is "sqlite" (pure Go, default) or "sqlite3" (cgo).
	Driver string `yaml:"driver" json:"driver"`
}

// WorkerConfig configures deferred indexing.
type WorkerConfig struct {
	Async             bool   `yaml:"async" json:"async"`
	Workers           int    `yaml:"workers" json:"workers"`
	QueueSize         int    `yaml:"queue_size" json:"queue_size"`
	ReconcileSchedule string `yaml:"reconcile_schedule" json:"reconcile_schedule"`
	WatchDebounce     string `yaml:"watch_debounce" json:"watch_debounce"`
}

// DefaultFields is the field configuration used when none is configured.
var DefaultFields = []IndexedField{
	{Key: "label", Type: "descriptive", IndexAs: "text"},
	{Key: "summary", Type: "descriptive", IndexAs: "text"},
	{Key: "requiredStatement", Type: "descriptive", IndexAs: "text"},
	{Key: "metadata", Type: "metadata", IndexAs: "text"},
	{Key: "navDate", Type: "descriptive", IndexAs: "date"},
}

// DefaultResourceTypes is the set of IIIF types stored as resources.
var DefaultResourceTypes = []string{"Manifest", "Canvas", "Range", "AnnotationPage", "Annotation"}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Server: ServerConfig{
			CanonicalHostname: "http://localhost:8000",
			ResourcePath:      "iiif",
			Transport:         "stdio",
			LogLevel:          "info",
		},
		Languages: LanguagesConfig{
			Default: "en",
		},
		Indexing: IndexingConfig{
			Fields:                append([]IndexedField(nil), DefaultFields...),
			ResourceTypes:         append([]string(nil), DefaultResourceTypes...),
			MaxDepth:              64,
			DereferenceThumbnails: false,
		},
		Search: SearchConfig{
			Backend:             "bleve",
			PageSize:            25,
			MaxPageSize:         100,
			HitBatchSize:        5000,
			SnippetMinWords:     25,
			SnippetMaxWords:     50,
			SnippetMaxFragments: 3,
		},
		Images: ImagesConfig{
			Timeout:         "5s",
			Retries:         2,
			RequestsPerSec:  10,
			Burst:           5,
			CacheSize:       1000,
			CircuitFailures: 5,
			CircuitReset:    "30s",
			ThumbnailWidth:  400,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Worker: WorkerConfig{
			Async:             false,
			Workers:           runtime.NumCPU(),
			QueueSize:         256,
			ReconcileSchedule: "@every 1h",
			WatchDebounce:     "500ms",
		},
	}
}

// defaultDataDir returns ~/.iiifstore/data, or a temp path without a home.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".iiifstore", "data")
	}
	return filepath.Join(home, ".iiifstore", "data")
}

// GetUserConfigPath returns the path to the user configuration file.
//   - $XDG_CONFIG_HOME/iiifstore/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/iiifstore/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "iiifstore", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "iiifstore", "config.yaml")
	}
	return filepath.Join(home, ".config", "iiifstore", "config.yaml")
}

// loadUserConfig returns nil, nil when no user config exists.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := readYAML(configPath, &parsed); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &parsed, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/iiifstore/config.yaml)
//  3. Project config (.iiifstore.yaml in dir)
//  4. Environment variables (IIIFSTORE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
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

// loadFromFile loads .iiifstore.yaml or .iiifstore.yml if either exists.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".iiifstore.yaml", ".iiifstore.yml"} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		var parsed Config
		if err := readYAML(path, &parsed); err != nil {
			return err
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

func readYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = expandHome(other.Paths.DataDir)
	}

	if other.Server.CanonicalHostname != "" {
		c.Server.CanonicalHostname = other.Server.CanonicalHostname
	}
	if other.Server.ResourcePath != "" {
		c.Server.ResourcePath = other.Server.ResourcePath
	}
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}

	if other.Languages.Default != "" {
		c.Languages.Default = other.Languages.Default
	}

	// Field and type lists replace rather than extend: a project that lists
	// fields wants exactly those fields.
	if len(other.Indexing.Fields) > 0 {
		c.Indexing.Fields = other.Indexing.Fields
	}
	if len(other.Indexing.ResourceTypes) > 0 {
		c.Indexing.ResourceTypes = other.Indexing.ResourceTypes
	}
	if other.Indexing.MaxDepth != 0 {
		c.Indexing.MaxDepth = other.Indexing.MaxDepth
	}
	if other.Indexing.DereferenceThumbnails {
		c.Indexing.DereferenceThumbnails = true
	}

	if other.Search.Backend != "" {
		c.Search.Backend = other.Search.Backend
	}
	if other.Search.PageSize != 0 {
		c.Search.PageSize = other.Search.PageSize
	}
	if other.Search.MaxPageSize != 0 {
		c.Search.MaxPageSize = other.Search.MaxPageSize
	}
	if other.Search.HitBatchSize != 0 {
		c.Search.HitBatchSize = other.Search.HitBatchSize
	}
	if other.Search.SnippetMinWords != 0 {
		c.Search.SnippetMinWords = other.Search.SnippetMinWords
	}
	if other.Search.SnippetMaxWords != 0 {
		c.Search.SnippetMaxWords = other.Search.SnippetMaxWords
	}
	if other.Search.SnippetMaxFragments != 0 {
		c.Search.SnippetMaxFragments = other.Search.SnippetMaxFragments
	}
	if other.Search.QueryMetrics {
		c.Search.QueryMetrics = true
	}

	if other.Images.Timeout != "" {
		c.Images.Timeout = other.Images.Timeout
	}
	if other.Images.Retries != 0 {
		c.Images.Retries = other.Images.Retries
	}
	if other.Images.RequestsPerSec != 0 {
		c.Images.RequestsPerSec = other.Images.RequestsPerSec
	}
	if other.Images.Burst != 0 {
		c.Images.Burst = other.Images.Burst
	}
	if other.Images.CacheSize != 0 {
		c.Images.CacheSize = other.Images.CacheSize
	}
	if other.Images.CircuitFailures != 0 {
		c.Images.CircuitFailures = other.Images.CircuitFailures
	}
	if other.Images.CircuitReset != "" {
		c.Images.CircuitReset = other.Images.CircuitReset
	}
	if other.Images.ThumbnailWidth != 0 {
		c.Images.ThumbnailWidth = other.Images.ThumbnailWidth
	}

	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}

	if other.Worker.Async {
		c.Worker.Async = true
	}
	if other.Worker.Workers != 0 {
		c.Worker.Workers = other.Worker.Workers
	}
	if other.Worker.QueueSize != 0 {
		c.Worker.QueueSize = other.Worker.QueueSize
	}
	if other.Worker.ReconcileSchedule != "" {
		c.Worker.ReconcileSchedule = other.Worker.ReconcileSchedule
	}
	if other.Worker.WatchDebounce != "" {
		c.Worker.WatchDebounce = other.Worker.WatchDebounce
	}
}

// applyEnvOverrides applies IIIFSTORE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("IIIFSTORE_DATA_DIR"); v != "" {
		c.Paths.DataDir = expandHome(v)
	}
	if v := os.Getenv("IIIFSTORE_CANONICAL_HOSTNAME"); v != "" {
		c.Server.CanonicalHostname = v
	}
	if v := os.Getenv("IIIFSTORE_RESOURCE_PATH"); v != "" {
		c.Server.ResourcePath = v
	}
	if v := os.Getenv("IIIFSTORE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("IIIFSTORE_DEFAULT_LANGUAGE"); v != "" {
		c.Languages.Default = v
	}
	if v := os.Getenv("IIIFSTORE_SEARCH_BACKEND"); v != "" {
		c.Search.Backend = v
	}
	if v := os.Getenv("IIIFSTORE_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("IIIFSTORE_DEREFERENCE_THUMBNAILS"); v != "" {
		c.Indexing.DereferenceThumbnails = parseBool(v)
	}
	if v := os.Getenv("IIIFSTORE_QUERY_METRICS"); v != "" {
		c.Search.QueryMetrics = parseBool(v)
	}
	if v := os.Getenv("IIIFSTORE_WORKER_ASYNC"); v != "" {
		c.Worker.Async = parseBool(v)
	}
	if v := os.Getenv("IIIFSTORE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Worker.Workers = n
		}
	}
	if v := os.Getenv("IIIFSTORE_IMAGES_TIMEOUT"); v != "" {
		c.Images.Timeout = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Server.CanonicalHostname == "" {
		return fmt.Errorf("server.canonical_hostname must not be empty")
	}
	if strings.HasSuffix(c.Server.CanonicalHostname, "/") {
		return fmt.Errorf("server.canonical_hostname must not end with '/', got %s", c.Server.CanonicalHostname)
	}
	if strings.Contains(strings.Trim(c.Server.ResourcePath, "/"), "//") {
		return fmt.Errorf("server.resource_path must not contain empty segments, got %s", c.Server.ResourcePath)
	}

	if c.Languages.Default == "" {
		return fmt.Errorf("languages.default must not be empty")
	}

	for i, f := range c.Indexing.Fields {
		if f.Key == "" {
			return fmt.Errorf("indexing.fields[%d].key must not be empty", i)
		}
		switch f.IndexAs {
		case "text", "date":
		default:
			return fmt.Errorf("indexing.fields[%d].index_as must be 'text' or 'date', got %q", i, f.IndexAs)
		}
		if f.Type == "" {
			return fmt.Errorf("indexing.fields[%d].type must not be empty", i)
		}
	}
	if len(c.Indexing.ResourceTypes) == 0 {
		return fmt.Errorf("indexing.resource_types must not be empty")
	}
	if c.Indexing.MaxDepth <= 0 {
		return fmt.Errorf("indexing.max_depth must be positive, got %d", c.Indexing.MaxDepth)
	}

	switch strings.ToLower(c.Search.Backend) {
	case "bleve", "sqlite":
	default:
		return fmt.Errorf("search.backend must be 'bleve' or 'sqlite', got %s", c.Search.Backend)
	}
	if c.Search.PageSize <= 0 || c.Search.MaxPageSize < c.Search.PageSize {
		return fmt.Errorf("search.page_size must be positive and not exceed max_page_size (%d, %d)",
			c.Search.PageSize, c.Search.MaxPageSize)
	}
	if c.Search.SnippetMinWords <= 0 || c.Search.SnippetMaxWords < c.Search.SnippetMinWords {
		return fmt.Errorf("search.snippet_min_words must be positive and not exceed snippet_max_words")
	}

	if _, err := time.ParseDuration(c.Images.Timeout); err != nil {
		return fmt.Errorf("images.timeout is not a duration: %w", err)
	}
	if _, err := time.ParseDuration(c.Images.CircuitReset); err != nil {
		return fmt.Errorf("images.circuit_reset is not a duration: %w", err)
	}
	if c.Images.RequestsPerSec <= 0 {
		return fmt.Errorf("images.requests_per_sec must be positive")
	}

	switch c.Store.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("store.driver must be 'sqlite' or 'sqlite3', got %s", c.Store.Driver)
	}

	if c.Worker.Workers <= 0 || c.Worker.QueueSize <= 0 {
		return fmt.Errorf("worker.workers and worker.queue_size must be positive")
	}
	if _, err := time.ParseDuration(c.Worker.WatchDebounce); err != nil {
		return fmt.Errorf("worker.watch_debounce is not a duration: %w", err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	return nil
}

// ImageTimeout returns the parsed image service timeout.
func (c *Config) ImageTimeout() time.Duration {
	d, err := time.ParseDuration(c.Images.Timeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// CircuitReset returns the parsed circuit breaker reset timeout.
func (c *Config) CircuitReset() time.Duration {
	d, err := time.ParseDuration(c.Images.CircuitReset)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// WatchDebounce returns the parsed watcher debounce interval.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Worker.WatchDebounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// DatabasePath returns the SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "iiifstore.db")
}

// IndexBasePath returns the text index path without backend extension.
func (c *Config) IndexBasePath() string {
	return filepath.Join(c.Paths.DataDir, "fulltext")
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
