// Package queue carries typed jobs between the synchronous payment phase
// and the asynchronous workers. Delivery is at-least-once: a handler that
// returns an error gets the job redelivered with backoff, up to a bounded
// attempt count, after which the job lands on a dead-letter list.
//
// Handlers must therefore be idempotent. The saga handlers re-derive what
// to do from the persisted transaction status, so redelivery after a crash
// is safe regardless of where the previous attempt stopped.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job kinds understood by the workers. The strings are part of the wire
// contract: in-flight jobs may be consumed after a deploy.
const (
	KindProcessPayment  = "process-payment"
	KindProcessReversal = "process-reversal"
)

var (
	ErrUnknownKind  = errors.New("no handler registered for job kind")
	ErrQueueStopped = errors.New("queue is stopped")
)

// Job is the envelope around a typed payload. The queue owns Attempts;
// handlers own the payload semantics.
type Job struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// HandlerFunc processes one delivered job. A non-nil error triggers
// redelivery; a nil return acknowledges the job even when the business
// outcome was a failure (clean domain failures are not retried).
type HandlerFunc func(ctx context.Context, job *Job) error

// Enqueuer is the only queue capability the orchestrator sees.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload interface{}) error
}

// Config bounds retry behavior for a queue instance.
type Config struct {
	MaxAttempts int
	BackoffBase time.Duration
	JobTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 60 * time.Second
	}
	return c
}

// backoffFor grows exponentially with the attempt count: base, 2*base,
// 4*base, capped at ten minutes.
func (c Config) backoffFor(attempts int) time.Duration {
	d := c.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return d
}

func newJob(kind string, payload interface{}) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}
