package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/sessionrecall/internal/embed"
	"github.com/Aman-CERP/sessionrecall/internal/errors"
	"github.com/Aman-CERP/sessionrecall/internal/logging"
	"github.com/Aman-CERP/sessionrecall/internal/search"
	"github.com/Aman-CERP/sessionrecall/internal/session"
)

// Project config file names, in lookup order.
const (
	ProjectConfigYAML = ".recall.yaml"
	ProjectConfigYML  = ".recall.yml"
)

// DefaultSessionsDir is where session notes live, relative to the project.
const DefaultSessionsDir = ".claude/context/sessions"

// Config represents the complete sessionrecall configuration.
type Config struct {
	Version    int                  `yaml:"version" json:"version"`
	Paths      PathsConfig          `yaml:"paths" json:"paths"`
	Search     SearchConfig         `yaml:"search" json:"search"`
	Fields     session.FieldWeights `yaml:"fields" json:"fields"`
	Embeddings EmbeddingsConfig     `yaml:"embeddings" json:"embeddings"`
	Telemetry  TelemetryConfig      `yaml:"telemetry" json:"telemetry"`
	Server     ServerConfig         `yaml:"server" json:"server"`
	Watch      WatchConfig          `yaml:"watch" json:"watch"`
}

// PathsConfig locates the session files and the persisted index.
type PathsConfig struct {
	// SessionsDir holds the *.md session files. Relative paths resolve
	// against the project directory passed to Load.
	SessionsDir string `yaml:"sessions_dir" json:"sessions_dir"`

	// DataDir holds index.json, embeddings.bin and the lock file.
	// Empty means SessionsDir.
	DataDir string `yaml:"data_dir,omitempty" json:"data_dir,omitempty"`
}

// SearchConfig holds ranking defaults. Weights are renormalized per
// document, so they need not sum to 1.
type SearchConfig struct {
	LexicalWeight  float64 `yaml:"lexical_weight" json:"lexical_weight"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	MinRelevance   float64 `yaml:"min_relevance" json:"min_relevance"`
	Limit          int     `yaml:"limit" json:"limit"`
	MaxLimit       int     `yaml:"max_limit" json:"max_limit"`
	Mode           string  `yaml:"mode" json:"mode"`
}

// EmbeddingsConfig configures the embedder and the background queue.
type EmbeddingsConfig struct {
	// Provider is static, openai, ollama or none. The default none runs
	// lexical search with temporal boosting; static is an offline opt-in.
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model,omitempty" json:"model,omitempty"`
	// Host is the provider base URL; empty uses the provider default.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	// Dimensions applies to the static provider only.
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	Timeout    string `yaml:"timeout" json:"timeout"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
	QueueSize  int    `yaml:"queue_size" json:"queue_size"`
	Workers    int    `yaml:"workers" json:"workers"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
}

// TelemetryConfig controls the local query log.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// ServerConfig configures the MCP server and logging.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFile   string `yaml:"log_file,omitempty" json:"log_file,omitempty"`
}

// WatchConfig configures the sessions directory watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	if workers > 4 {
		workers = 4
	}

	return &Config{
		Version: 1,
		Paths: PathsConfig{
			SessionsDir: DefaultSessionsDir,
		},
		Search: SearchConfig{
			LexicalWeight:  search.DefaultWeights().Lexical,
			SemanticWeight: search.DefaultWeights().Semantic,
			MinRelevance:   search.DefaultMinRelevance,
			Limit:          search.DefaultLimit,
			MaxLimit:       search.MaxLimit,
			Mode:           string(search.ModeAuto),
		},
		Fields: session.DefaultFieldWeights(),
		Embeddings: EmbeddingsConfig{
			Provider:   string(embed.ProviderNone),
			Dimensions: embed.StaticDimensions,
			Timeout:    embed.DefaultTimeout.String(),
			CacheSize:  embed.DefaultCacheSize,
			QueueSize:  embed.DefaultQueueSize,
			Workers:    workers,
			BatchSize:  embed.DefaultBatchSize,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
		Watch: WatchConfig{
			Debounce: "200ms",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/sessionrecall/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/sessionrecall/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sessionrecall", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "sessionrecall", "config.yaml")
	}
	return filepath.Join(home, ".config", "sessionrecall", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the project in dir. Layers apply in order
// of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/sessionrecall/config.yaml)
//  3. Project config (.recall.yaml in dir)
//  4. Environment variables (RECALL_*)
//
// Relative paths are then resolved against dir and the result validated.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigError("invalid configuration", err).
			WithSuggestion("check " + GetUserConfigPath() + " and " + ProjectConfigYAML)
	}

	return cfg, nil
}

// loadFromFile loads .recall.yaml or, failing that, .recall.yml.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{ProjectConfigYAML, ProjectConfigYML} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML decodes path over the current values. Keys absent from the file
// keep their current value; unknown keys are rejected.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.New(errors.ErrCodeConfigNotFound, "failed to read config file", err).
			WithDetail("path", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return errors.ConfigError("failed to parse config file "+path, err).
			WithDetail("path", path)
	}
	return nil
}

// applyEnvOverrides applies RECALL_* environment variables.
func (c *Config) applyEnvOverrides() error {
	strs := []struct {
		key string
		dst *string
	}{
		{"RECALL_SESSIONS_DIR", &c.Paths.SessionsDir},
		{"RECALL_DATA_DIR", &c.Paths.DataDir},
		{"RECALL_MODE", &c.Search.Mode},
		{"RECALL_EMBEDDINGS_PROVIDER", &c.Embeddings.Provider},
		{"RECALL_EMBEDDINGS_MODEL", &c.Embeddings.Model},
		{"RECALL_EMBEDDINGS_HOST", &c.Embeddings.Host},
		{"RECALL_LOG_LEVEL", &c.Server.LogLevel},
		{"RECALL_TRANSPORT", &c.Server.Transport},
		{"RECALL_WATCH_DEBOUNCE", &c.Watch.Debounce},
	}
	for _, s := range strs {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"RECALL_LEXICAL_WEIGHT", &c.Search.LexicalWeight},
		{"RECALL_SEMANTIC_WEIGHT", &c.Search.SemanticWeight},
		{"RECALL_MIN_RELEVANCE", &c.Search.MinRelevance},
	}
	for _, f := range floats {
		v := os.Getenv(f.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return errors.ConfigError(f.key+" must be a number", err).WithDetail("value", v)
		}
		*f.dst = parsed
	}

	if v := os.Getenv("RECALL_LIMIT"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.ConfigError("RECALL_LIMIT must be an integer", err).WithDetail("value", v)
		}
		c.Search.Limit = n
	}

	if v := os.Getenv("RECALL_TELEMETRY"); v != "" {
		c.Telemetry.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	return nil
}

func (c *Config) resolvePaths(dir string) {
	if c.Paths.SessionsDir != "" && !filepath.IsAbs(c.Paths.SessionsDir) && dir != "" {
		c.Paths.SessionsDir = filepath.Join(dir, c.Paths.SessionsDir)
	}
	if c.Paths.DataDir != "" && !filepath.IsAbs(c.Paths.DataDir) && dir != "" {
		c.Paths.DataDir = filepath.Join(dir, c.Paths.DataDir)
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Paths.SessionsDir == "" {
		return fmt.Errorf("paths.sessions_dir must be set")
	}

	if err := c.SearchDefaults().Validate(); err != nil {
		return err
	}
	if c.Search.Limit < 0 {
		return fmt.Errorf("search.limit must be non-negative, got %d", c.Search.Limit)
	}
	if _, err := search.ParseMode(c.Search.Mode); err != nil {
		return err
	}

	if err := c.Fields.Validate(); err != nil {
		return err
	}

	if _, err := embed.ParseProvider(c.Embeddings.Provider); err != nil {
		return err
	}
	nonNegative := []struct {
		name  string
		value int
	}{
		{"embeddings.dimensions", c.Embeddings.Dimensions},
		{"embeddings.cache_size", c.Embeddings.CacheSize},
		{"embeddings.queue_size", c.Embeddings.QueueSize},
		{"embeddings.workers", c.Embeddings.Workers},
		{"embeddings.batch_size", c.Embeddings.BatchSize},
	}
	for _, n := range nonNegative {
		if n.value < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", n.name, n.value)
		}
	}
	if c.Embeddings.BatchSize > embed.MaxBatchSize {
		return fmt.Errorf("embeddings.batch_size must be at most %d, got %d", embed.MaxBatchSize, c.Embeddings.BatchSize)
	}
	if _, err := parseDuration("embeddings.timeout", c.Embeddings.Timeout); err != nil {
		return err
	}
	if _, err := parseDuration("watch.debounce", c.Watch.Debounce); err != nil {
		return err
	}

	validTransports := map[string]bool{"stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// DataDir returns the directory for persisted index files.
func (c *Config) DataDir() string {
	if c.Paths.DataDir != "" {
		return c.Paths.DataDir
	}
	return c.Paths.SessionsDir
}

// SearchDefaults converts the search section into engine defaults.
func (c *Config) SearchDefaults() search.Config {
	return search.Config{
		DefaultLimit: c.Search.Limit,
		MaxLimit:     c.Search.MaxLimit,
		MinRelevance: c.Search.MinRelevance,
		Weights: search.Weights{
			Lexical:  c.Search.LexicalWeight,
			Semantic: c.Search.SemanticWeight,
		},
	}
}

// EmbedOptions converts the embeddings section into embedder options.
// The API key is read from the environment by the embedder itself.
func (c *Config) EmbedOptions() (embed.Options, error) {
	provider, err := embed.ParseProvider(c.Embeddings.Provider)
	if err != nil {
		return embed.Options{}, err
	}
	timeout, err := parseDuration("embeddings.timeout", c.Embeddings.Timeout)
	if err != nil {
		return embed.Options{}, err
	}
	return embed.Options{
		Provider:   provider,
		Model:      c.Embeddings.Model,
		Host:       c.Embeddings.Host,
		Dimensions: c.Embeddings.Dimensions,
		BatchSize:  c.Embeddings.BatchSize,
		Timeout:    timeout,
		CacheSize:  c.Embeddings.CacheSize,
	}, nil
}

// QueueOptions converts the embeddings section into queue options.
func (c *Config) QueueOptions() embed.QueueOptions {
	return embed.QueueOptions{
		Size:      c.Embeddings.QueueSize,
		Workers:   c.Embeddings.Workers,
		BatchSize: c.Embeddings.BatchSize,
	}
}

// WatchDebounce returns the parsed watcher debounce interval.
func (c *Config) WatchDebounce() time.Duration {
	d, _ := parseDuration("watch.debounce", c.Watch.Debounce)
	return d
}

// Logging returns the logging configuration for the CLI.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Server.LogLevel
	if c.Server.LogFile != "" {
		cfg.FilePath = c.Server.LogFile
	}
	return cfg
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// parseDuration parses a duration; empty means zero.
func parseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 500ms, got %q", name, value)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must be non-negative, got %s", name, value)
	}
	return d, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
