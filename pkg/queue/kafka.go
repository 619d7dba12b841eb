package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

const kafkaFetchTimeout = 250 * time.Millisecond

// kafkaEnvelope is the message value. Attempts are carried in the
// envelope because Kafka has no per-message delivery counter.
type kafkaEnvelope struct {
	JobID       string `json:"job_id"`
	Payload     []byte `json:"payload"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
}

// KafkaBackend treats a topic as the queue: claim is a consumer-group
// fetch, requeue re-produces the job with a bumped attempt count, and
// the dead-letter queue is a second topic.
type KafkaBackend struct {
	writer    *kafka.Writer
	dlqWriter *kafka.Writer
	reader    *kafka.Reader

	mu       sync.Mutex
	inFlight map[string]kafka.Message
}

func NewKafkaBackend(cfg config.KafkaQueueConfig) (*KafkaBackend, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka queue requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka queue requires a topic")
	}
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "agentsdk-queue"
	}

	backend := &KafkaBackend{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			GroupID: groupID,
			Topic:   cfg.Topic,
		}),
		inFlight: make(map[string]kafka.Message),
	}

	if cfg.DLQ != "" {
		backend.dlqWriter = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.DLQ,
			Balancer: &kafka.LeastBytes{},
		}
	}

	return backend, nil
}

func (b *KafkaBackend) produce(ctx context.Context, envelope kafkaEnvelope) error {
	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", envelope.JobID, err)
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(envelope.JobID),
		Value: value,
	})
}

func (b *KafkaBackend) Enqueue(ctx context.Context, job Job) error {
	err := b.produce(ctx, kafkaEnvelope{
		JobID:       job.ID,
		Payload:     job.Payload,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// ClaimNext fetches under a short deadline so an idle topic reads as an
// empty queue instead of blocking the worker loop.
func (b *KafkaBackend) ClaimNext(ctx context.Context) (*Job, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, kafkaFetchTimeout)
	defer cancel()

	msg, err := b.reader.FetchMessage(fetchCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	var envelope kafkaEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode message value: %w", err)
	}
	envelope.Attempts++

	b.mu.Lock()
	b.inFlight[envelope.JobID] = msg
	b.mu.Unlock()

	return &Job{
		ID:          envelope.JobID,
		Payload:     envelope.Payload,
		Attempts:    envelope.Attempts,
		MaxAttempts: envelope.MaxAttempts,
	}, nil
}

func (b *KafkaBackend) takeInFlight(jobID string) (kafka.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := b.inFlight[jobID]
	delete(b.inFlight, jobID)
	return msg, ok
}

func (b *KafkaBackend) commit(ctx context.Context, job *Job) error {
	msg, ok := b.takeInFlight(job.ID)
	if !ok {
		return fmt.Errorf("no in-flight message for job %s", job.ID)
	}
	if err := b.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit offset for job %s: %w", job.ID, err)
	}
	return nil
}

func (b *KafkaBackend) MarkDone(ctx context.Context, job *Job) error {
	return b.commit(ctx, job)
}

func (b *KafkaBackend) MarkFailed(ctx context.Context, job *Job, cause error) error {
	if b.dlqWriter != nil {
		value, err := json.Marshal(map[string]any{
			"job_id":   job.ID,
			"payload":  job.Payload,
			"error":    cause.Error(),
			"attempts": job.Attempts,
		})
		if err != nil {
			return fmt.Errorf("failed to encode dead letter for job %s: %w", job.ID, err)
		}
		if err := b.dlqWriter.WriteMessages(ctx, kafka.Message{
			Key:   []byte(job.ID),
			Value: value,
		}); err != nil {
			return fmt.Errorf("failed to dead-letter job %s: %w", job.ID, err)
		}
	}
	return b.commit(ctx, job)
}

// Requeue re-produces the job with its bumped attempt count and commits
// the claimed offset, so the next fetch sees the newer copy.
func (b *KafkaBackend) Requeue(ctx context.Context, job *Job, _ error) error {
	err := b.produce(ctx, kafkaEnvelope{
		JobID:       job.ID,
		Payload:     job.Payload,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
	}
	return b.commit(ctx, job)
}

func (b *KafkaBackend) Close() error {
	var errs []error
	if err := b.reader.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	if b.dlqWriter != nil {
		if err := b.dlqWriter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
