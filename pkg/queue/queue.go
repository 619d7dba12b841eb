// Package queue provides an at-least-once durable execution queue with
// pluggable backends (embedded SQL, Redis, SQS, Kafka, in-memory) and a
// dead-letter queue for jobs that exhaust their attempts.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

// Job statuses as stored by backends. Finished jobs are deleted rather
// than kept in a terminal state.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
)

// Job is one unit of durable work. Attempts counts claims including the
// one in flight.
type Job struct {
	ID          string `json:"job_id"`
	Payload     []byte `json:"payload"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
}

// Backend persists jobs. Implementations must tolerate redelivery: a
// crashed worker leaves the job claimable again, so handlers can observe
// the same job more than once.
type Backend interface {
	// Enqueue persists a new job in the queued state.
	Enqueue(ctx context.Context, job Job) error
	// ClaimNext atomically claims the oldest queued job and increments
	// its attempt count. Returns nil when the queue is empty.
	ClaimNext(ctx context.Context) (*Job, error)
	// MarkDone finalizes a successfully processed job.
	MarkDone(ctx context.Context, job *Job) error
	// MarkFailed moves a job to the dead-letter queue.
	MarkFailed(ctx context.Context, job *Job, cause error) error
	// Requeue returns a failed job to the queued state for another attempt.
	Requeue(ctx context.Context, job *Job, cause error) error
	// Close releases backend resources.
	Close() error
}

// DeadLetterReader is implemented by backends whose DLQ can be inspected
// in-process.
type DeadLetterReader interface {
	DeadLetters(ctx context.Context) ([]Job, error)
}

// Handler processes a claimed job. A nil error finalizes the job; an
// error requeues it until attempts reach the maximum, then dead-letters
// it.
type Handler func(ctx context.Context, job Job) (any, error)

// Result resolves a submitted job's future.
type Result struct {
	JobID  string
	Output any
	Err    error
}

// DurableQueue runs a single worker loop over a backend.
type DurableQueue struct {
	backend      Backend
	handler      Handler
	pollInterval time.Duration
	maxAttempts  int

	mu      sync.Mutex
	futures map[string]chan Result

	started  bool
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// New builds a durable queue over the given backend. Defaults come from
// the config's SetDefaults.
func New(backend Backend, handler Handler, cfg config.QueueConfig) *DurableQueue {
	cfg.SetDefaults()
	return &DurableQueue{
		backend:      backend,
		handler:      handler,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		futures:      make(map[string]chan Result),
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Submit enqueues a payload and returns the job id plus a future that
// resolves when this process finishes the job. Jobs claimed by another
// process resolve no local future; durability does not depend on the
// submitter staying alive.
func (q *DurableQueue) Submit(ctx context.Context, payload []byte) (string, <-chan Result, error) {
	job := Job{
		ID:          uuid.NewString(),
		Payload:     payload,
		MaxAttempts: q.maxAttempts,
	}

	future := make(chan Result, 1)
	q.mu.Lock()
	q.futures[job.ID] = future
	q.mu.Unlock()

	if err := q.backend.Enqueue(ctx, job); err != nil {
		q.mu.Lock()
		delete(q.futures, job.ID)
		q.mu.Unlock()
		return "", nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return job.ID, future, nil
}

// Start launches the worker loop. It runs until Stop or context
// cancellation.
func (q *DurableQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	go q.loop(ctx)
}

func (q *DurableQueue) loop(ctx context.Context) {
	defer close(q.stopped)

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case <-ticker.C:
			q.drain(ctx)
		}
	}
}

// drain claims and processes jobs until the backend reports empty.
func (q *DurableQueue) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		default:
		}

		job, err := q.backend.ClaimNext(ctx)
		if err != nil {
			slog.Error("Queue claim failed", "error", err)
			return
		}
		if job == nil {
			return
		}

		q.process(ctx, job)
	}
}

func (q *DurableQueue) process(ctx context.Context, job *Job) {
	output, err := q.handler(ctx, *job)
	if err == nil {
		if markErr := q.backend.MarkDone(ctx, job); markErr != nil {
			slog.Error("Failed to finalize job", "job_id", job.ID, "error", markErr)
		}
		q.resolve(job.ID, Result{JobID: job.ID, Output: output})
		return
	}

	if job.Attempts >= job.MaxAttempts {
		slog.Warn("Job exhausted attempts, dead-lettering",
			"job_id", job.ID, "attempts", job.Attempts, "error", err)
		if dlqErr := q.backend.MarkFailed(ctx, job, err); dlqErr != nil {
			slog.Error("Failed to dead-letter job", "job_id", job.ID, "error", dlqErr)
		}
		q.resolve(job.ID, Result{JobID: job.ID, Err: err})
		return
	}

	slog.Debug("Job failed, requeueing", "job_id", job.ID, "attempts", job.Attempts, "error", err)
	if reqErr := q.backend.Requeue(ctx, job, err); reqErr != nil {
		slog.Error("Failed to requeue job", "job_id", job.ID, "error", reqErr)
	}
}

func (q *DurableQueue) resolve(jobID string, result Result) {
	q.mu.Lock()
	future, ok := q.futures[jobID]
	delete(q.futures, jobID)
	q.mu.Unlock()

	if ok {
		future <- result
		close(future)
	}
}

// Stop halts the worker loop and waits for it to exit.
func (q *DurableQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stop)
	})

	q.mu.Lock()
	started := q.started
	q.mu.Unlock()
	if started {
		<-q.stopped
	}
}

// NewBackend builds the configured backend.
func NewBackend(cfg config.QueueConfig) (Backend, error) {
	cfg.SetDefaults()

	switch cfg.Backend {
	case "sql":
		return NewSQLBackend(cfg.SQL)
	case "redis":
		return NewRedisBackend(cfg.Redis)
	case "sqs":
		return NewSQSBackend(context.Background(), cfg.SQS)
	case "kafka":
		return NewKafkaBackend(cfg.Kafka)
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q (supported: sql, redis, sqs, kafka, memory)", cfg.Backend)
	}
}
