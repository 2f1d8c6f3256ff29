package embed

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	// ProviderStatic hashes text locally. No network, no model.
	ProviderStatic ProviderType = "static"

	// ProviderOpenAI calls an OpenAI-compatible /embeddings endpoint.
	ProviderOpenAI ProviderType = "openai"

	// ProviderOllama calls a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderNone disables semantic search.
	ProviderNone ProviderType = "none"
)

// Options selects and configures an embedder.
type Options struct {
	Provider   ProviderType
	Model      string
	Host       string
	APIKey     string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration

	// CacheSize wraps the embedder in an LRU query cache. 0 disables it.
	CacheSize int

	Logger *slog.Logger
}

// ParseProvider validates a provider name. Empty means none.
func ParseProvider(s string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderStatic, ProviderOpenAI, ProviderOllama, ProviderNone:
		return p, nil
	case "":
		return ProviderNone, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (want static, openai, ollama or none)", s)
	}
}

// New builds the embedder described by opts. ProviderNone returns a nil
// Embedder and no error: callers run lexical-only.
func New(opts Options) (Embedder, error) {
	var e Embedder
	switch opts.Provider {
	case ProviderNone, "":
		return nil, nil

	case ProviderStatic:
		e = NewStaticEmbedderWithDimensions(opts.Dimensions)

	case ProviderOpenAI, ProviderOllama:
		if opts.Model == "" {
			return nil, fmt.Errorf("%s embedder needs a model name", opts.Provider)
		}
		if opts.Provider == ProviderOpenAI && opts.APIKey == "" {
			opts.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		r, err := newRemote(opts)
		if err != nil {
			return nil, err
		}
		e = r

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}

	if opts.CacheSize > 0 {
		e = NewCachedEmbedder(e, opts.CacheSize)
	}
	return e, nil
}
