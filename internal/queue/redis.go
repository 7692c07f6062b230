package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a redis-list backed work queue. Ready jobs sit on a list
// consumed with BRPOP; jobs awaiting a retry sit on a sorted set scored by
// their ready time and are pumped back onto the list; jobs that exhaust
// their attempts are pushed to a dead-letter list for operator inspection.
type RedisQueue struct {
	client *redis.Client
	name   string
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRedisQueue(client *redis.Client, name string, cfg Config, logger *slog.Logger) *RedisQueue {
	if client == nil {
		panic("redis client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{
		client:   client,
		name:     name,
		cfg:      cfg.withDefaults(),
		logger:   logger.With("queue", name),
		handlers: make(map[string]HandlerFunc),
	}
}

func (q *RedisQueue) readyKey() string   { return "billvend:queue:" + q.name + ":ready" }
func (q *RedisQueue) delayedKey() string { return "billvend:queue:" + q.name + ":delayed" }
func (q *RedisQueue) deadKey() string    { return "billvend:queue:" + q.name + ":dead" }

// Register binds a handler to a job kind. Must be called before Start.
func (q *RedisQueue) Register(kind string, handler HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = handler
}

// Enqueue pushes a job onto the ready list.
func (q *RedisQueue) Enqueue(ctx context.Context, kind string, payload interface{}) error {
	job, err := newJob(kind, payload)
	if err != nil {
		return err
	}
	return q.push(ctx, job)
}

func (q *RedisQueue) push(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.readyKey(), data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Start launches workerCount consumers plus the delayed-job pump. It
// returns immediately; Shutdown stops everything.
func (q *RedisQueue) Start(workerCount int) {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	q.wg.Add(1)
	go q.pumpDelayed(ctx)

	for i := 0; i < workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Shutdown stops consumption and waits for in-flight jobs to finish.
func (q *RedisQueue) Shutdown() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

func (q *RedisQueue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := q.client.BRPop(ctx, time.Second, q.readyKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			q.logger.Error("queue pop failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.logger.Error("dropped undecodable job", "error", err, "raw", res[1])
			continue
		}
		q.dispatch(ctx, &job)
	}
}

func (q *RedisQueue) dispatch(ctx context.Context, job *Job) {
	q.mu.RLock()
	handler, ok := q.handlers[job.Kind]
	q.mu.RUnlock()
	if !ok {
		q.logger.Error("no handler for job", "kind", job.Kind, "job_id", job.ID)
		q.deadLetter(ctx, job, ErrUnknownKind)
		return
	}

	job.Attempts++
	q.logger.Info("job active", "kind", job.Kind, "job_id", job.ID, "attempt", job.Attempts)

	jobCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	err := handler(jobCtx, job)
	cancel()

	if err == nil {
		q.logger.Info("job completed", "kind", job.Kind, "job_id", job.ID)
		return
	}

	q.logger.Warn("job failed", "kind", job.Kind, "job_id", job.ID,
		"attempt", job.Attempts, "error", err)

	if job.Attempts >= q.cfg.MaxAttempts {
		q.deadLetter(ctx, job, err)
		return
	}
	q.retryLater(ctx, job)
}

func (q *RedisQueue) retryLater(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		q.logger.Error("failed to marshal job for retry", "job_id", job.ID, "error", err)
		return
	}
	readyAt := time.Now().Add(q.cfg.backoffFor(job.Attempts))
	if err := q.client.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: data,
	}).Err(); err != nil {
		q.logger.Error("failed to schedule retry", "job_id", job.ID, "error", err)
	}
}

func (q *RedisQueue) deadLetter(ctx context.Context, job *Job, cause error) {
	q.logger.Error("job dead-lettered", "kind", job.Kind, "job_id", job.ID,
		"attempts", job.Attempts, "error", cause)
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := q.client.LPush(ctx, q.deadKey(), data).Err(); err != nil {
		q.logger.Error("failed to dead-letter job", "job_id", job.ID, "error", err)
	}
}

// pumpDelayed moves due jobs from the delayed set back to the ready list.
func (q *RedisQueue) pumpDelayed(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := strconv.FormatInt(time.Now().UnixMilli(), 10)
		due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
			Min: "-inf",
			Max: now,
		}).Result()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				q.logger.Error("failed to read delayed jobs", "error", err)
			}
			continue
		}

		for _, raw := range due {
			// Only the remover gets to requeue; ZRem reports whether we won.
			removed, err := q.client.ZRem(ctx, q.delayedKey(), raw).Result()
			if err != nil || removed == 0 {
				continue
			}
			if err := q.client.LPush(ctx, q.readyKey(), raw).Err(); err != nil {
				q.logger.Error("failed to requeue delayed job", "error", err)
			}
		}
	}
}
