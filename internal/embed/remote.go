package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
)

// RemoteEmbedder calls an embedding service through langchaingo: the OpenAI
// API or anything speaking its protocol, or a local Ollama server.
type RemoteEmbedder struct {
	embedder embeddings.Embedder
	provider ProviderType
	model    string
	dims     atomic.Int64
	timeout  time.Duration
	retry    recallerrors.RetryConfig
	closed   atomic.Bool
	logger   *slog.Logger
}

func newRemote(opts Options) (*RemoteEmbedder, error) {
	var client embeddings.EmbedderClient
	switch opts.Provider {
	case ProviderOpenAI:
		token := opts.APIKey
		if token == "" {
			// Local OpenAI-compatible servers accept any token.
			token = "none"
		}
		clientOpts := []openai.Option{
			openai.WithToken(token),
			openai.WithEmbeddingModel(opts.Model),
		}
		if opts.Host != "" {
			clientOpts = append(clientOpts, openai.WithBaseURL(opts.Host))
		}
		c, err := openai.New(clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		client = c

	case ProviderOllama:
		clientOpts := []ollama.Option{ollama.WithModel(opts.Model)}
		if opts.Host != "" {
			clientOpts = append(clientOpts, ollama.WithServerURL(opts.Host))
		}
		c, err := ollama.New(clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		client = c

	default:
		return nil, fmt.Errorf("unsupported remote provider %q", opts.Provider)
	}

	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if batch > MaxBatchSize {
		batch = MaxBatchSize
	}
	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(batch),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &RemoteEmbedder{
		embedder: emb,
		provider: opts.Provider,
		model:    opts.Model,
		timeout:  timeout,
		retry:    recallerrors.DefaultRetryConfig(),
		logger:   logger.With("component", "embedder", "provider", string(opts.Provider)),
	}
	r.dims.Store(int64(opts.Dimensions))
	return r, nil
}

// Embed embeds one text.
func (r *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts with retries on transient failures.
func (r *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if r.closed.Load() {
		return nil, fmt.Errorf("embedder is closed")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vecs, err := recallerrors.RetryWithResult(ctx, r.retry, func() ([][]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		out, err := r.embedder.EmbedDocuments(callCtx, texts)
		if err != nil {
			return nil, classify(err)
		}
		if len(out) != len(texts) {
			return nil, recallerrors.Newf(recallerrors.ErrCodeEmbeddingFailed,
				"embedding service returned %d vectors for %d texts", len(out), len(texts))
		}
		return out, nil
	})
	if err != nil {
		r.logger.Warn("embedding_failed", "count", len(texts), "error", err)
		return nil, err
	}

	if err := r.checkDimensions(vecs); err != nil {
		return nil, err
	}
	r.logger.Debug("embedding_complete", "count", len(texts), "duration_ms", time.Since(start).Milliseconds())
	return vecs, nil
}

// checkDimensions fixes the dimension from the first response and rejects
// any later response that disagrees.
func (r *RemoteEmbedder) checkDimensions(vecs [][]float32) error {
	for _, v := range vecs {
		want := int(r.dims.Load())
		if want == 0 {
			r.dims.CompareAndSwap(0, int64(len(v)))
			want = int(r.dims.Load())
		}
		if len(v) != want {
			return recallerrors.Newf(recallerrors.ErrCodeDimensionMismatch,
				"model %s returned %d dimensions, expected %d", r.model, len(v), want)
		}
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return recallerrors.New(recallerrors.ErrCodeNetworkTimeout, "embedding request timed out", err)
	default:
		return recallerrors.New(recallerrors.ErrCodeEmbeddingFailed, "embedding request failed", err)
	}
}

// Dimensions returns the configured dimension, or the one learned from the
// first response.
func (r *RemoteEmbedder) Dimensions() int { return int(r.dims.Load()) }

func (r *RemoteEmbedder) ModelName() string { return string(r.provider) + ":" + r.model }

// Available probes the service with a tiny request.
func (r *RemoteEmbedder) Available(ctx context.Context) bool {
	if r.closed.Load() {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := r.embedder.EmbedQuery(probeCtx, "ping")
	return err == nil
}

func (r *RemoteEmbedder) Close() error {
	r.closed.Store(true)
	return nil
}
