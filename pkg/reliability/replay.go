package reliability

import "sync"

// ReplayStore records step outputs keyed by step ID. When a context is in
// replay mode the executor consults the store before invoking the tool and
// returns the recorded value as a successful result, giving deterministic
// test replay.
type ReplayStore struct {
	mu      sync.RWMutex
	results map[int]any
}

func NewReplayStore() *ReplayStore {
	return &ReplayStore{
		results: make(map[int]any),
	}
}

// Record stores the output for a step.
func (s *ReplayStore) Record(stepID int, output any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[stepID] = output
}

// Lookup returns the recorded output for a step, if any.
func (s *ReplayStore) Lookup(stepID int) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.results[stepID]
	return out, ok
}
