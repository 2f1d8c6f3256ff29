package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/sessionrecall/internal/embed"
	"github.com/Aman-CERP/sessionrecall/internal/search"
)

var recallEnvKeys = []string{
	"RECALL_SESSIONS_DIR", "RECALL_DATA_DIR", "RECALL_MODE",
	"RECALL_EMBEDDINGS_PROVIDER", "RECALL_EMBEDDINGS_MODEL", "RECALL_EMBEDDINGS_HOST",
	"RECALL_LOG_LEVEL", "RECALL_TRANSPORT", "RECALL_WATCH_DEBOUNCE",
	"RECALL_LEXICAL_WEIGHT", "RECALL_SEMANTIC_WEIGHT", "RECALL_MIN_RELEVANCE",
	"RECALL_LIMIT", "RECALL_TELEMETRY",
}

// isolate points the user config at an empty temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	for _, k := range recallEnvKeys {
		t.Setenv(k, "")
	}
	return xdg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration
	cfg := NewConfig()

	// Then: defaults match the ranking engine defaults
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultSessionsDir, cfg.Paths.SessionsDir)
	assert.Equal(t, 0.5, cfg.Search.LexicalWeight)
	assert.Equal(t, 0.5, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.3, cfg.Search.MinRelevance)
	assert.Equal(t, 10, cfg.Search.Limit)
	assert.Equal(t, "auto", cfg.Search.Mode)
	assert.Equal(t, 3, cfg.Fields.Summary)
	assert.Equal(t, 2, cfg.Fields.Topics)
	assert.Equal(t, "none", cfg.Embeddings.Provider)
	assert.Equal(t, embed.StaticDimensions, cfg.Embeddings.Dimensions)
	assert.GreaterOrEqual(t, cfg.Embeddings.Workers, 1)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, 200*time.Millisecond, cfg.WatchDebounce())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFiles_UsesDefaultsAndResolvesPaths(t *testing.T) {
	// Given: an empty project directory
	isolate(t)
	dir := t.TempDir()

	// When: loading
	cfg, err := Load(dir)

	// Then: sessions dir is resolved under the project and data dir follows it
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultSessionsDir), cfg.Paths.SessionsDir)
	assert.Equal(t, cfg.Paths.SessionsDir, cfg.DataDir())
}

func TestLoad_Layering(t *testing.T) {
	// Given: a user config and a project config touching overlapping keys
	xdg := isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(xdg, "sessionrecall", "config.yaml"), `
search:
  lexical_weight: 0.8
  limit: 5
embeddings:
  provider: none
`)
	writeFile(t, filepath.Join(dir, ProjectConfigYAML), `
search:
  limit: 7
  semantic_weight: 0
paths:
  data_dir: state
`)

	// When: loading
	cfg, err := Load(dir)

	// Then: project beats user, absent keys keep lower layers, explicit zero sticks
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Search.LexicalWeight)
	assert.Equal(t, 0.0, cfg.Search.SemanticWeight)
	assert.Equal(t, 7, cfg.Search.Limit)
	assert.Equal(t, "none", cfg.Embeddings.Provider)
	assert.Equal(t, filepath.Join(dir, "state"), cfg.DataDir())
	assert.Equal(t, 3, cfg.Fields.Summary)
}

func TestLoad_YmlFallback(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigYML), "search:\n  mode: lexical\n")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "lexical", cfg.Search.Mode)
}

func TestLoad_EnvOverrides(t *testing.T) {
	// Given: environment overrides on top of a project file
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigYAML), "search:\n  min_relevance: 0.2\n")
	t.Setenv("RECALL_MIN_RELEVANCE", "0.45")
	t.Setenv("RECALL_SEMANTIC_WEIGHT", "0")
	t.Setenv("RECALL_LIMIT", "4")
	t.Setenv("RECALL_TELEMETRY", "false")
	abs := t.TempDir()
	t.Setenv("RECALL_SESSIONS_DIR", abs)

	// When: loading
	cfg, err := Load(dir)

	// Then: env wins and absolute paths are kept
	require.NoError(t, err)
	assert.Equal(t, 0.45, cfg.Search.MinRelevance)
	assert.Equal(t, 0.0, cfg.Search.SemanticWeight)
	assert.Equal(t, 4, cfg.Search.Limit)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, abs, cfg.Paths.SessionsDir)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		project string
		env     map[string]string
	}{
		{name: "unknown key", project: "search:\n  bm25_weight: 1\n"},
		{name: "bad yaml", project: "search: [\n"},
		{name: "both weights zero", project: "search:\n  lexical_weight: 0\n  semantic_weight: 0\n"},
		{name: "negative weight", project: "search:\n  lexical_weight: -1\n"},
		{name: "threshold above one", project: "search:\n  min_relevance: 1.5\n"},
		{name: "negative limit", project: "search:\n  limit: -1\n"},
		{name: "unknown mode", project: "search:\n  mode: fuzzy\n"},
		{name: "unknown provider", project: "embeddings:\n  provider: mlx\n"},
		{name: "bad debounce", project: "watch:\n  debounce: soon\n"},
		{name: "bad log level", project: "server:\n  log_level: loud\n"},
		{name: "all field weights zero", project: "fields:\n  summary: 0\n  topics: 0\n  files: 0\n  issues: 0\n  notes: 0\n"},
		{name: "env not a number", env: map[string]string{"RECALL_LEXICAL_WEIGHT": "heavy"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: an invalid layer
			isolate(t)
			dir := t.TempDir()
			if tt.project != "" {
				writeFile(t, filepath.Join(dir, ProjectConfigYAML), tt.project)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			// When: loading
			_, err := Load(dir)

			// Then: loading fails
			assert.Error(t, err)
		})
	}
}

func TestConfig_Conversions(t *testing.T) {
	// Given: a customized config
	cfg := NewConfig()
	cfg.Search.LexicalWeight = 0.7
	cfg.Search.SemanticWeight = 0.3
	cfg.Embeddings.Provider = "ollama"
	cfg.Embeddings.Model = "nomic-embed-text"
	cfg.Embeddings.Timeout = "2s"
	cfg.Embeddings.QueueSize = 8

	// When: converting to component options
	sd := cfg.SearchDefaults()
	eo, err := cfg.EmbedOptions()
	qo := cfg.QueueOptions()

	// Then: values carry over
	require.NoError(t, err)
	assert.Equal(t, search.Weights{Lexical: 0.7, Semantic: 0.3}, sd.Weights)
	assert.Equal(t, embed.ProviderOllama, eo.Provider)
	assert.Equal(t, "nomic-embed-text", eo.Model)
	assert.Equal(t, 2*time.Second, eo.Timeout)
	assert.Equal(t, 8, qo.Size)
}

func TestConfig_WriteYAML_RoundTrip(t *testing.T) {
	// Given: a modified config written to a project file
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Search.Limit = 3
	cfg.Embeddings.Provider = "none"
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectConfigYAML)))

	// When: loading it back
	loaded, err := Load(dir)

	// Then: the values survive
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Search.Limit)
	assert.Equal(t, "none", loaded.Embeddings.Provider)
}
