package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

// fakeSQS models a single SQS-compatible service in memory: per-queue
// message lists, receipt handles and receive counts, visibility flags.
type fakeSQS struct {
	mu      sync.Mutex
	queues  map[string][]*fakeSQSMessage
	nextSeq int
}

type fakeSQSMessage struct {
	body         string
	receipt      string
	receiveCount int
	invisible    bool
}

func newFakeSQS() *fakeSQS {
	return &fakeSQS{queues: map[string][]*fakeSQSMessage{}}
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := aws.ToString(params.QueueUrl)
	f.queues[url] = append(f.queues[url], &fakeSQSMessage{body: aws.ToString(params.MessageBody)})
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.queues[aws.ToString(params.QueueUrl)] {
		if msg.invisible {
			continue
		}
		f.nextSeq++
		msg.invisible = true
		msg.receiveCount++
		msg.receipt = fmt.Sprintf("receipt-%d", f.nextSeq)
		return &sqs.ReceiveMessageOutput{
			Messages: []types.Message{{
				Body:          aws.String(msg.body),
				ReceiptHandle: aws.String(msg.receipt),
				Attributes: map[string]string{
					string(types.MessageSystemAttributeNameApproximateReceiveCount): strconv.Itoa(msg.receiveCount),
				},
			}},
		}, nil
	}
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := aws.ToString(params.QueueUrl)
	receipt := aws.ToString(params.ReceiptHandle)
	for i, msg := range f.queues[url] {
		if msg.receipt == receipt {
			f.queues[url] = append(f.queues[url][:i], f.queues[url][i+1:]...)
			return &sqs.DeleteMessageOutput{}, nil
		}
	}
	return nil, fmt.Errorf("unknown receipt handle %q", receipt)
}

func (f *fakeSQS) ChangeMessageVisibility(_ context.Context, params *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt := aws.ToString(params.ReceiptHandle)
	for _, msg := range f.queues[aws.ToString(params.QueueUrl)] {
		if msg.receipt == receipt {
			if params.VisibilityTimeout == 0 {
				msg.invisible = false
			}
			return &sqs.ChangeMessageVisibilityOutput{}, nil
		}
	}
	return nil, fmt.Errorf("unknown receipt handle %q", receipt)
}

func (f *fakeSQS) depth(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queues[url])
}

func newFakeSQSBackend(client *fakeSQS) *SQSBackend {
	return NewSQSBackendWithClient(client, config.SQSQueueConfig{
		QueueURL: "https://sqs.test/main",
		DLQURL:   "https://sqs.test/dlq",
	})
}

func TestSQSBackendClaimDoneCycle(t *testing.T) {
	client := newFakeSQS()
	b := newFakeSQSBackend(client)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, Job{ID: "j1", Payload: []byte(`{"n":1}`), MaxAttempts: 3}))

	job, err := b.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, 1, job.Attempts, "attempts come from ApproximateReceiveCount")
	assert.Equal(t, `{"n":1}`, string(job.Payload))

	require.NoError(t, b.MarkDone(ctx, job))
	assert.Equal(t, 0, client.depth("https://sqs.test/main"))

	empty, err := b.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestSQSBackendRequeueResetsVisibility(t *testing.T) {
	client := newFakeSQS()
	b := newFakeSQSBackend(client)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, Job{ID: "j1", Payload: []byte("{}"), MaxAttempts: 3}))

	job, err := b.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Requeue(ctx, job, errors.New("worker hiccup")))

	// The message was never deleted; redelivery bumps the receive count.
	again, err := b.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "j1", again.ID)
	assert.Equal(t, 2, again.Attempts)
}

func TestSQSBackendMarkFailedDeadLetters(t *testing.T) {
	client := newFakeSQS()
	b := newFakeSQSBackend(client)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, Job{ID: "doomed", Payload: []byte("{}"), MaxAttempts: 1}))
	job, err := b.ClaimNext(ctx)
	require.NoError(t, err)

	require.NoError(t, b.MarkFailed(ctx, job, errors.New("exhausted")))
	assert.Equal(t, 0, client.depth("https://sqs.test/main"))
	assert.Equal(t, 1, client.depth("https://sqs.test/dlq"))
}

func TestSQSBackendRequiresClaimedReceipt(t *testing.T) {
	b := newFakeSQSBackend(newFakeSQS())
	err := b.MarkDone(context.Background(), &Job{ID: "never-claimed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no receipt handle")
}
