package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// MemoryQueue is a channel-backed queue with the same delivery contract as
// RedisQueue (at-least-once, bounded retries, dead-letter). It exists for
// tests and single-process development runs.
type MemoryQueue struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	dead     []*Job
	stopped  bool

	jobs   chan *Job
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMemoryQueue(cfg Config, logger *slog.Logger) *MemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryQueue{
		cfg:      cfg.withDefaults(),
		logger:   logger.With("queue", "memory"),
		handlers: make(map[string]HandlerFunc),
		jobs:     make(chan *Job, 256),
	}
}

func (q *MemoryQueue) Register(kind string, handler HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = handler
}

func (q *MemoryQueue) Enqueue(ctx context.Context, kind string, payload interface{}) error {
	job, err := newJob(kind, payload)
	if err != nil {
		return err
	}
	q.mu.RLock()
	stopped := q.stopped
	q.mu.RUnlock()
	if stopped {
		return ErrQueueStopped
	}

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Start(workerCount int) {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	for i := 0; i < workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

func (q *MemoryQueue) Shutdown() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// DeadLetters returns jobs that exhausted their attempts.
func (q *MemoryQueue) DeadLetters() []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Job, len(q.dead))
	copy(out, q.dead)
	return out
}

func (q *MemoryQueue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.dispatch(ctx, job)
		}
	}
}

func (q *MemoryQueue) dispatch(ctx context.Context, job *Job) {
	q.mu.RLock()
	handler, ok := q.handlers[job.Kind]
	q.mu.RUnlock()
	if !ok {
		q.deadLetter(job)
		return
	}

	job.Attempts++

	jobCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	err := handler(jobCtx, job)
	cancel()

	if err == nil {
		return
	}

	q.logger.Warn("job failed", "kind", job.Kind, "job_id", job.ID,
		"attempt", job.Attempts, "error", err)

	if job.Attempts >= q.cfg.MaxAttempts {
		q.deadLetter(job)
		return
	}

	// In-process retry: short fixed delay keeps tests fast while
	// preserving the redelivery semantics.
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		select {
		case <-ctx.Done():
		case <-time.After(q.cfg.BackoffBase):
			select {
			case q.jobs <- job:
			case <-ctx.Done():
			}
		}
	}()
}

func (q *MemoryQueue) deadLetter(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, job)
}

// DecodePayload unmarshals a job payload into dest. Exposed for handlers
// and tests that work with raw envelopes.
func DecodePayload(job *Job, dest interface{}) error {
	return json.Unmarshal(job.Payload, dest)
}
