package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

// sqsAPI is the slice of the SQS client the backend uses.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// sqsEnvelope is the message body. Attempts live in the queue's own
// ApproximateReceiveCount, not the envelope.
type sqsEnvelope struct {
	JobID       string `json:"job_id"`
	Payload     []byte `json:"payload"`
	MaxAttempts int    `json:"max_attempts"`
}

// SQSBackend delegates durability to an SQS-compatible queue. Requeue is
// a visibility reset: the message was never deleted, so making it
// immediately visible again is the redelivery.
type SQSBackend struct {
	client      sqsAPI
	queueURL    string
	dlqURL      string
	waitSeconds int32

	mu       sync.Mutex
	receipts map[string]string
}

// NewSQSBackend loads AWS configuration from the environment and builds
// the backend.
func NewSQSBackend(ctx context.Context, cfg config.SQSQueueConfig) (*SQSBackend, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs queue requires a queue_url")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSQSBackendWithClient(sqs.NewFromConfig(awsCfg), cfg), nil
}

// NewSQSBackendWithClient builds the backend over an existing client.
func NewSQSBackendWithClient(client sqsAPI, cfg config.SQSQueueConfig) *SQSBackend {
	return &SQSBackend{
		client:      client,
		queueURL:    cfg.QueueURL,
		dlqURL:      cfg.DLQURL,
		waitSeconds: cfg.WaitSeconds,
		receipts:    make(map[string]string),
	}
}

func (b *SQSBackend) Enqueue(ctx context.Context, job Job) error {
	body, err := json.Marshal(sqsEnvelope{
		JobID:       job.ID,
		Payload:     job.Payload,
		MaxAttempts: job.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	_, err = b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(b.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

func (b *SQSBackend) ClaimNext(ctx context.Context) (*Job, error) {
	out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(b.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     b.waitSeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	msg := out.Messages[0]
	var envelope sqsEnvelope
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode message body: %w", err)
	}

	attempts := 1
	if raw, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			attempts = n
		}
	}

	b.mu.Lock()
	b.receipts[envelope.JobID] = aws.ToString(msg.ReceiptHandle)
	b.mu.Unlock()

	return &Job{
		ID:          envelope.JobID,
		Payload:     envelope.Payload,
		Attempts:    attempts,
		MaxAttempts: envelope.MaxAttempts,
	}, nil
}

func (b *SQSBackend) takeReceipt(jobID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	receipt, ok := b.receipts[jobID]
	delete(b.receipts, jobID)
	return receipt, ok
}

func (b *SQSBackend) MarkDone(ctx context.Context, job *Job) error {
	receipt, ok := b.takeReceipt(job.ID)
	if !ok {
		return fmt.Errorf("no receipt handle for job %s", job.ID)
	}

	_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("failed to finalize job %s: %w", job.ID, err)
	}
	return nil
}

func (b *SQSBackend) MarkFailed(ctx context.Context, job *Job, cause error) error {
	if b.dlqURL != "" {
		body, err := json.Marshal(map[string]any{
			"job_id":   job.ID,
			"payload":  job.Payload,
			"error":    cause.Error(),
			"attempts": job.Attempts,
		})
		if err != nil {
			return fmt.Errorf("failed to encode dead letter for job %s: %w", job.ID, err)
		}
		if _, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(b.dlqURL),
			MessageBody: aws.String(string(body)),
		}); err != nil {
			return fmt.Errorf("failed to dead-letter job %s: %w", job.ID, err)
		}
	}

	receipt, ok := b.takeReceipt(job.ID)
	if !ok {
		return fmt.Errorf("no receipt handle for job %s", job.ID)
	}
	_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("failed to remove dead-lettered job %s: %w", job.ID, err)
	}
	return nil
}

func (b *SQSBackend) Requeue(ctx context.Context, job *Job, _ error) error {
	receipt, ok := b.takeReceipt(job.ID)
	if !ok {
		return fmt.Errorf("no receipt handle for job %s", job.ID)
	}

	_, err := b.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(b.queueURL),
		ReceiptHandle:     aws.String(receipt),
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
	}
	return nil
}

func (b *SQSBackend) Close() error {
	return nil
}
