// Package recall wires the session catalog, the ranking engine, the
// embedding queue, persistence and telemetry into one service used by the
// CLI, the watcher and the MCP server.
package recall

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/sessionrecall/internal/config"
	"github.com/Aman-CERP/sessionrecall/internal/embed"
	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
	"github.com/Aman-CERP/sessionrecall/internal/search"
	"github.com/Aman-CERP/sessionrecall/internal/session"
	"github.com/Aman-CERP/sessionrecall/internal/store"
	"github.com/Aman-CERP/sessionrecall/internal/telemetry"
)

// lockTimeout bounds how long Save and Open wait for another process.
const lockTimeout = 10 * time.Second

// ErrClosed is returned by operations on a closed service.
var ErrClosed = errors.New("recall service is closed")

// Option configures Open.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	now         func() time.Time
	embedder    embed.Embedder
	setEmbedder bool
	noReconcile bool
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the clock used for recency scoring.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithEmbedder replaces the configured embedder. nil runs lexical-only.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) {
		o.embedder = e
		o.setEmbedder = true
	}
}

// WithoutReconcile opens the persisted index as is, without repairing it
// against the session files. Check then reports the on-disk state and Sync
// repairs it.
func WithoutReconcile() Option {
	return func(o *options) { o.noReconcile = true }
}

// Service is the session recall facade. It is safe for concurrent use.
type Service struct {
	cfg       *config.Config
	logger    *slog.Logger
	catalog   *session.Catalog
	engine    *search.Engine
	embedder  embed.Embedder
	queue     *embed.Queue
	telemetry *telemetry.Store
	lock      *store.FileLock
	weights   session.FieldWeights
	dataDir   string

	mu       sync.RWMutex
	sessions map[string]*session.Session
	closed   bool

	dirty atomic.Bool
}

// Open builds the service: it loads the persisted index and embeddings,
// falls back to a rebuild from the session files when they are missing or
// corrupt, reconciles the index with the files on disk, and schedules
// embeddings for sessions that lack one.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if cfg == nil {
		return nil, recallerrors.ConfigError("configuration is required", nil)
	}
	logger := o.logger.With("component", "recall")

	catalog, err := session.NewCatalog(cfg.Paths.SessionsDir, logger)
	if err != nil {
		return nil, err
	}
	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, recallerrors.New(recallerrors.ErrCodeFilePermission, "failed to create data directory", err).
			WithDetail("path", dataDir)
	}

	embedder := o.embedder
	if !o.setEmbedder {
		eo, err := cfg.EmbedOptions()
		if err != nil {
			return nil, recallerrors.ConfigError("invalid embeddings configuration", err)
		}
		eo.Logger = logger
		if embedder, err = embed.New(eo); err != nil {
			return nil, err
		}
	}

	s := &Service{
		cfg:      cfg,
		logger:   logger,
		catalog:  catalog,
		embedder: embedder,
		lock:     store.NewFileLock(dataDir),
		weights:  cfg.Fields,
		dataDir:  dataDir,
		sessions: make(map[string]*session.Session),
	}

	index, vectors, err := s.loadState(ctx)
	if err != nil {
		s.closeEmbedder()
		return nil, err
	}

	engineOpts := []search.EngineOption{
		search.WithEmbedder(embedder),
		search.WithConfig(cfg.SearchDefaults()),
		search.WithLogger(logger),
	}
	if o.now != nil {
		engineOpts = append(engineOpts, search.WithClock(o.now))
	}
	if cfg.Telemetry.Enabled {
		ts, err := telemetry.Open(filepath.Join(dataDir, telemetry.FileName))
		if err != nil {
			logger.Warn("telemetry_disabled", slog.String("error", err.Error()))
		} else {
			s.telemetry = ts
			engineOpts = append(engineOpts, search.WithObserver(telemetry.NewRecorder(ts, logger)))
		}
	}

	s.engine, err = search.NewEngine(index, vectors, engineOpts...)
	if err != nil {
		s.closeAux()
		return nil, err
	}

	if embedder != nil {
		qo := cfg.QueueOptions()
		qo.Logger = logger
		s.queue, err = embed.NewQueue(embedder, s, qo)
		if err != nil {
			s.closeAux()
			return nil, err
		}
	}

	sessions, skipped, err := catalog.Load(ctx)
	if err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	res := &ReconcileResult{}
	if o.noReconcile {
		s.mu.Lock()
		for _, sess := range sessions {
			s.sessions[sess.ID] = sess
		}
		s.mu.Unlock()
	} else if res, err = s.reconcile(ctx, sessions); err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	logger.Info("recall_opened",
		slog.Int("sessions", len(sessions)),
		slog.Int("skipped", skipped),
		slog.Int("added", res.Added),
		slog.Int("updated", res.Updated),
		slog.Int("removed", res.Removed),
		slog.Int("embeddings_enqueued", res.Enqueued),
		slog.Bool("semantic", embedder != nil))
	return s, nil
}

// loadState reads the persisted index and embeddings under the data-dir
// lock. Missing or corrupt files yield empty structures and mark the
// service dirty; reconcile then fills the index from the session files.
func (s *Service) loadState(ctx context.Context) (*store.LexicalIndex, *store.EmbeddingStore, error) {
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	if err := s.lock.Lock(lockCtx); err != nil {
		return nil, nil, err
	}
	defer func() { _ = s.lock.Unlock() }()

	dims := 0
	if s.embedder != nil {
		dims = s.embedder.Dimensions()
	}

	index, err := store.LoadIndex(filepath.Join(s.dataDir, store.IndexFileName))
	switch {
	case err == nil:
	case recallerrors.GetCode(err) == recallerrors.ErrCodeIndexNotFound:
		s.logger.Info("index_missing", slog.String("dir", s.dataDir))
		index = store.NewLexicalIndex()
		s.dirty.Store(true)
	default:
		s.logger.Warn("index_corrupted", recallerrors.LogAttrs(err)...)
		index = store.NewLexicalIndex()
		s.dirty.Store(true)
	}

	vectors, err := store.LoadEmbeddings(filepath.Join(s.dataDir, store.EmbeddingsFileName))
	switch {
	case err == nil:
		if s.embedder == nil {
			break
		}
		if dims > 0 && vectors.Len() > 0 && vectors.Dimensions() != dims {
			s.logger.Warn("embeddings_discarded",
				slog.Int("stored_dimensions", vectors.Dimensions()),
				slog.Int("embedder_dimensions", dims))
			vectors = store.NewEmbeddingStore(dims)
			s.dirty.Store(true)
		}
	case recallerrors.GetCode(err) == recallerrors.ErrCodeIndexNotFound:
		vectors = store.NewEmbeddingStore(dims)
	default:
		s.logger.Warn("embeddings_corrupted", recallerrors.LogAttrs(err)...)
		vectors = store.NewEmbeddingStore(dims)
		s.dirty.Store(true)
	}
	return index, vectors, nil
}

// SetEmbedding stores a finished embedding. It is the queue's sink.
func (s *Service) SetEmbedding(id string, vec []float32) error {
	if !s.engine.HasDocument(id) {
		// Removed while the job was in flight.
		return nil
	}
	if err := s.engine.SetEmbedding(id, vec); err != nil {
		return err
	}
	s.dirty.Store(true)
	return nil
}

// IndexFile parses one session file and indexes it, replacing any previous
// version, then schedules its embedding.
func (s *Service) IndexFile(ctx context.Context, path string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	sess, err := session.Parse(path)
	if err != nil {
		return nil, err
	}
	s.engine.AddDocument(sess.Document(s.weights))

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	s.dirty.Store(true)

	s.enqueueEmbedding(sess)
	s.logger.Debug("session_indexed", slog.String("id", sess.ID), slog.String("path", path))
	return sess, nil
}

// Remove drops a session from the index. Unknown ids return false.
func (s *Service) Remove(ctx context.Context, id string) (bool, error) {
	if s.isClosed() {
		return false, ErrClosed
	}
	if s.queue != nil {
		s.queue.Cancel(id)
	}
	removed := s.engine.RemoveDocument(id)

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	if removed {
		s.dirty.Store(true)
		if s.telemetry != nil {
			if err := s.telemetry.ForgetSession(ctx, id); err != nil {
				s.logger.Warn("telemetry_forget_failed", slog.String("id", id), slog.String("error", err.Error()))
			}
		}
		s.logger.Debug("session_removed", slog.String("id", id))
	}
	return removed, nil
}

// RebuildResult reports a full rebuild.
type RebuildResult struct {
	Indexed  int `json:"indexed"`
	Skipped  int `json:"skipped"`
	Enqueued int `json:"embeddings_enqueued"`
}

// Rebuild reindexes every session file from scratch and persists the
// result. Embeddings of sessions that still exist are kept.
func (s *Service) Rebuild(ctx context.Context) (*RebuildResult, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	sessions, skipped, err := s.catalog.Load(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]store.Document, len(sessions))
	byID := make(map[string]*session.Session, len(sessions))
	for i, sess := range sessions {
		docs[i] = sess.Document(s.weights)
		byID[sess.ID] = sess
	}
	s.engine.Rebuild(docs)

	s.mu.Lock()
	s.sessions = byID
	s.mu.Unlock()
	s.dirty.Store(true)

	res := &RebuildResult{Indexed: len(sessions), Skipped: skipped}
	for _, sess := range sessions {
		if !s.engine.HasEmbedding(sess.ID) && s.enqueueEmbedding(sess) {
			res.Enqueued++
		}
	}
	s.logger.Info("index_rebuilt",
		slog.Int("indexed", res.Indexed),
		slog.Int("skipped", res.Skipped),
		slog.Int("embeddings_enqueued", res.Enqueued))

	if err := s.Save(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// ReembedAll schedules a fresh embedding for every indexed session.
func (s *Service) ReembedAll() int {
	s.mu.RLock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	n := 0
	for _, sess := range sessions {
		if s.enqueueEmbedding(sess) {
			n++
		}
	}
	return n
}

// WaitForEmbeddings blocks until the embedding queue is empty or ctx ends.
func (s *Service) WaitForEmbeddings(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}
	return s.queue.Flush(ctx)
}

// Save persists the index and embeddings under the data-dir lock.
func (s *Service) Save(ctx context.Context) error {
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	if err := s.lock.Lock(lockCtx); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()

	// Clear first so a concurrent change made during the write is kept dirty.
	s.dirty.Store(false)
	index, vectors := s.engine.Snapshot()
	if err := store.SaveIndex(filepath.Join(s.dataDir, store.IndexFileName), index); err != nil {
		s.dirty.Store(true)
		return err
	}
	if err := store.SaveEmbeddings(filepath.Join(s.dataDir, store.EmbeddingsFileName), vectors); err != nil {
		s.dirty.Store(true)
		return err
	}
	s.logger.Debug("index_saved",
		slog.Int("documents", index.Len()),
		slog.Int("embeddings", vectors.Len()))
	return nil
}

// Dirty reports whether there are unsaved changes.
func (s *Service) Dirty() bool {
	return s.dirty.Load()
}

// Stats describes the service state.
type Stats struct {
	search.IndexStats
	Sessions            int    `json:"sessions"`
	PendingEmbeddings   int    `json:"pending_embeddings"`
	CompletedEmbeddings int    `json:"completed_embeddings"`
	FailedEmbeddings    int    `json:"failed_embeddings"`
	Embedder            string `json:"embedder"`
	SessionsDir         string `json:"sessions_dir"`
	DataDir             string `json:"data_dir"`
}

// Stats returns index statistics and queue progress.
func (s *Service) Stats() Stats {
	st := Stats{
		IndexStats:  s.engine.IndexStats(),
		Embedder:    "none",
		SessionsDir: s.catalog.Dir(),
		DataDir:     s.dataDir,
	}
	s.mu.RLock()
	st.Sessions = len(s.sessions)
	s.mu.RUnlock()

	if s.embedder != nil {
		st.Embedder = s.embedder.ModelName()
	}
	if s.queue != nil {
		st.PendingEmbeddings = s.queue.Pending()
		st.CompletedEmbeddings = s.queue.Completed()
		st.FailedEmbeddings = s.queue.Failed()
	}
	return st
}

// Session returns the parsed session for id.
func (s *Service) Session(id string) (*session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Sessions returns the indexed sessions ordered by id.
func (s *Service) Sessions() []*session.Session {
	s.mu.RLock()
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *session.Session) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Catalog returns the session file catalog.
func (s *Service) Catalog() *session.Catalog {
	return s.catalog
}

// Telemetry returns the query log, or nil when disabled.
func (s *Service) Telemetry() *telemetry.Store {
	return s.telemetry
}

// Close drains the embedding queue, saves unsaved changes and releases
// resources. If ctx ends before the queue drains, pending embeddings are
// dropped and whatever finished is saved.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if s.queue != nil {
		if err := s.queue.Close(ctx); err != nil {
			s.logger.Warn("embedding_queue_abandoned",
				slog.Int("pending", s.queue.Pending()),
				slog.String("error", err.Error()))
		}
	}
	if s.dirty.Load() {
		saveCtx, cancel := context.WithTimeout(context.Background(), lockTimeout)
		if err := s.Save(saveCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if err := s.closeAux(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) closeAux() error {
	var errs []error
	if s.telemetry != nil {
		if err := s.telemetry.Close(); err != nil {
			errs = append(errs, err)
		}
		s.telemetry = nil
	}
	if err := s.closeEmbedder(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) closeEmbedder() error {
	if s.embedder == nil {
		return nil
	}
	return s.embedder.Close()
}

func (s *Service) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// enqueueEmbedding schedules sess for embedding. It returns false when
// there is no embedder, nothing to embed, or the queue is full.
func (s *Service) enqueueEmbedding(sess *session.Session) bool {
	if s.queue == nil {
		return false
	}
	text := sess.EmbeddingText()
	if strings.TrimSpace(text) == "" {
		return false
	}
	if err := s.queue.Enqueue(embed.Job{ID: sess.ID, Text: text}); err != nil {
		s.logger.Warn("embedding_enqueue_failed", slog.String("id", sess.ID), slog.String("error", err.Error()))
		return false
	}
	s.logger.Debug("embedding_enqueued", slog.String("id", sess.ID))
	return true
}
