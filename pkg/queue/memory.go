package queue

import (
	"context"
	"sync"
)

// MemoryBackend keeps jobs in process memory. It exists for tests and
// single-process setups where durability across restarts is not needed.
type MemoryBackend struct {
	mu      sync.Mutex
	queued  []Job
	running map[string]Job
	dead    []Job
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		running: make(map[string]Job),
	}
}

func (b *MemoryBackend) Enqueue(_ context.Context, job Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queued = append(b.queued, job)
	return nil
}

func (b *MemoryBackend) ClaimNext(_ context.Context) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queued) == 0 {
		return nil, nil
	}

	job := b.queued[0]
	b.queued = b.queued[1:]
	job.Attempts++
	b.running[job.ID] = job
	return &job, nil
}

func (b *MemoryBackend) MarkDone(_ context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.running, job.ID)
	return nil
}

func (b *MemoryBackend) MarkFailed(_ context.Context, job *Job, _ error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.running, job.ID)
	b.dead = append(b.dead, *job)
	return nil
}

func (b *MemoryBackend) Requeue(_ context.Context, job *Job, _ error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.running, job.ID)
	b.queued = append(b.queued, *job)
	return nil
}

func (b *MemoryBackend) DeadLetters(_ context.Context) ([]Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Job, len(b.dead))
	copy(out, b.dead)
	return out, nil
}

func (b *MemoryBackend) Close() error {
	return nil
}
