package embed

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
)

// Default queue sizing.
const (
	DefaultQueueSize = 1024
)

// Job asks for the embedding of one document's text.
type Job struct {
	ID   string
	Text string
}

// Sink receives finished vectors. The embedding store satisfies it.
type Sink interface {
	SetEmbedding(id string, vec []float32) error
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	// Size bounds the number of waiting jobs. Enqueue fails fast beyond it.
	Size int

	// Workers is the number of concurrent embedding calls.
	Workers int

	// BatchSize caps how many waiting jobs are embedded in one call.
	BatchSize int

	Logger *slog.Logger
}

// Queue hands embedding work to a worker pool without blocking the caller.
// A dispatcher goroutine drains a bounded channel into batches and submits
// each batch to an ants pool; workers embed the batch and store the vectors.
//
// Only the most recent job per document is applied, so a stale text that
// finishes late never overwrites a newer vector, and Cancel drops work for a
// document that was removed.
type Queue struct {
	embedder  Embedder
	sink      Sink
	jobs      chan queued
	pool      *ants.Pool
	batchSize int
	logger    *slog.Logger

	seq    atomic.Uint64
	latest sync.Map // id -> uint64

	pending   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	mu     sync.RWMutex
	closed bool

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	done     chan struct{}
}

type queued struct {
	Job
	seq uint64
}

// NewQueue starts the dispatcher and the worker pool.
func NewQueue(embedder Embedder, sink Sink, opts QueueOptions) (*Queue, error) {
	if embedder == nil || sink == nil {
		return nil, fmt.Errorf("embedding queue needs an embedder and a sink")
	}
	if opts.Size <= 0 {
		opts.Size = DefaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = max(1, runtime.NumCPU()/2)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "embed_queue")

	pool, err := ants.NewPool(opts.Workers, ants.WithPanicHandler(func(p any) {
		logger.Error("embedding_worker_panic", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		embedder:  embedder,
		sink:      sink,
		jobs:      make(chan queued, opts.Size),
		pool:      pool,
		batchSize: opts.BatchSize,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go q.dispatch()
	return q, nil
}

// Enqueue schedules job and returns immediately. A full queue returns an
// ErrQueueFull error; the document simply stays without a vector until the
// next attempt.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return recallerrors.New(recallerrors.ErrCodeQueueFull, "embedding queue is closed", nil)
	}

	seq := q.seq.Add(1)
	prev, hadPrev := q.latest.Swap(job.ID, seq)
	q.pending.Add(1)

	select {
	case q.jobs <- queued{Job: job, seq: seq}:
		q.logger.Debug("embedding_enqueued", "id", job.ID)
		return nil
	default:
		q.pending.Add(-1)
		if hadPrev {
			q.latest.CompareAndSwap(job.ID, seq, prev)
		} else {
			q.latest.CompareAndDelete(job.ID, seq)
		}
		q.logger.Warn("embedding_queue_full", "id", job.ID, "capacity", cap(q.jobs))
		return recallerrors.Newf(recallerrors.ErrCodeQueueFull,
			"embedding queue full (%d waiting)", cap(q.jobs)).WithDetail("id", job.ID)
	}
}

// Cancel drops any waiting or running work for id.
func (q *Queue) Cancel(id string) {
	q.latest.Delete(id)
}

func (q *Queue) dispatch() {
	defer close(q.done)

	for first := range q.jobs {
		batch := []queued{first}
	fill:
		for len(batch) < q.batchSize {
			select {
			case j, ok := <-q.jobs:
				if !ok {
					break fill
				}
				batch = append(batch, j)
			default:
				break fill
			}
		}

		q.inflight.Add(1)
		if err := q.pool.Submit(func() {
			defer q.inflight.Done()
			q.process(batch)
		}); err != nil {
			q.logger.Warn("embedding_submit_failed", "error", err)
			q.process(batch)
			q.inflight.Done()
		}
	}
}

func (q *Queue) process(batch []queued) {
	defer q.pending.Add(-int64(len(batch)))

	live := batch[:0:0]
	for _, j := range batch {
		if q.isLatest(j) {
			live = append(live, j)
		}
	}
	if len(live) == 0 {
		return
	}

	texts := make([]string, len(live))
	for i, j := range live {
		texts[i] = j.Text
	}

	vecs, err := q.embedder.EmbedBatch(q.ctx, texts)
	if err != nil {
		q.failed.Add(int64(len(live)))
		q.logger.Warn("embedding_batch_failed", "count", len(live), "error", err)
		return
	}

	for i, j := range live {
		if !q.isLatest(j) {
			continue
		}
		if err := q.sink.SetEmbedding(j.ID, vecs[i]); err != nil {
			q.failed.Add(1)
			q.logger.Warn("embedding_rejected", "id", j.ID, "error", err)
			continue
		}
		q.latest.CompareAndDelete(j.ID, j.seq)
		q.completed.Add(1)
	}
}

func (q *Queue) isLatest(j queued) bool {
	v, ok := q.latest.Load(j.ID)
	return ok && v.(uint64) == j.seq
}

// Pending returns the number of jobs enqueued but not yet finished.
func (q *Queue) Pending() int { return int(q.pending.Load()) }

// Completed returns the number of vectors stored so far.
func (q *Queue) Completed() int { return int(q.completed.Load()) }

// Failed returns the number of jobs that produced no vector.
func (q *Queue) Failed() int { return int(q.failed.Load()) }

// Flush waits until every enqueued job has finished or ctx is done.
func (q *Queue) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for q.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops accepting jobs, finishes the waiting ones and releases the
// pool. If ctx ends first, running embedding calls are cancelled and the
// remaining jobs fail fast.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		<-q.done
		q.inflight.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
		q.cancel()
		<-drained
	}
	q.cancel()
	q.pool.Release()
	return err
}
