package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

const defaultRedisQueue = "agentsdk:jobs"

// RedisBackend stores job state in hashes and order in lists: one list
// for queued job ids, one for the dead-letter queue.
type RedisBackend struct {
	client   *redis.Client
	queueKey string
	dlqKey   string
}

func NewRedisBackend(cfg config.RedisQueueConfig) (*RedisBackend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis queue requires an address")
	}
	queueKey := cfg.Queue
	if queueKey == "" {
		queueKey = defaultRedisQueue
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisBackend{
		client:   client,
		queueKey: queueKey,
		dlqKey:   queueKey + ":dlq",
	}, nil
}

func (b *RedisBackend) jobKey(jobID string) string {
	return b.queueKey + ":job:" + jobID
}

func (b *RedisBackend) Enqueue(ctx context.Context, job Job) error {
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.jobKey(job.ID), map[string]any{
		"payload":      string(job.Payload),
		"attempts":     job.Attempts,
		"max_attempts": job.MaxAttempts,
	})
	pipe.LPush(ctx, b.queueKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// ClaimNext pops the oldest id off the list tail and bumps its attempt
// counter. RPOP is atomic, so two workers never pop the same id.
func (b *RedisBackend) ClaimNext(ctx context.Context) (*Job, error) {
	jobID, err := b.client.RPop(ctx, b.queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop queued job: %w", err)
	}

	fields, err := b.client.HGetAll(ctx, b.jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("job %s has no stored state", jobID)
	}

	attempts, err := b.client.HIncrBy(ctx, b.jobKey(jobID), "attempts", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count attempt for job %s: %w", jobID, err)
	}

	maxAttempts, _ := strconv.Atoi(fields["max_attempts"])
	return &Job{
		ID:          jobID,
		Payload:     []byte(fields["payload"]),
		Attempts:    int(attempts),
		MaxAttempts: maxAttempts,
	}, nil
}

func (b *RedisBackend) MarkDone(ctx context.Context, job *Job) error {
	if err := b.client.Del(ctx, b.jobKey(job.ID)).Err(); err != nil {
		return fmt.Errorf("failed to finalize job %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBackend) MarkFailed(ctx context.Context, job *Job, cause error) error {
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.jobKey(job.ID), "error", cause.Error())
	pipe.LPush(ctx, b.dlqKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBackend) Requeue(ctx context.Context, job *Job, cause error) error {
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.jobKey(job.ID), "error", cause.Error())
	pipe.LPush(ctx, b.queueKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
	}
	return nil
}

// DeadLetters lists dead-lettered jobs, oldest first.
func (b *RedisBackend) DeadLetters(ctx context.Context) ([]Job, error) {
	ids, err := b.client.LRange(ctx, b.dlqKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	out := make([]Job, 0, len(ids))
	// LPUSH prepends, so walk in reverse for oldest-first order.
	for i := len(ids) - 1; i >= 0; i-- {
		fields, err := b.client.HGetAll(ctx, b.jobKey(ids[i])).Result()
		if err != nil {
			return nil, err
		}
		attempts, _ := strconv.Atoi(fields["attempts"])
		maxAttempts, _ := strconv.Atoi(fields["max_attempts"])
		out = append(out, Job{
			ID:          ids[i],
			Payload:     []byte(fields["payload"]),
			Attempts:    attempts,
			MaxAttempts: maxAttempts,
		})
	}
	return out, nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
