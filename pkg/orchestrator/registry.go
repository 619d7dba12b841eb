// Package orchestrator coordinates multiple agents: a registry of agent
// state, a message router, a hierarchical task tree with cascading
// cancellation, and consensus voting.
package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

// AgentRole describes an agent's function in the group.
type AgentRole string

const (
	RoleWorker      AgentRole = "worker"
	RoleCoordinator AgentRole = "coordinator"
	RoleArbiter     AgentRole = "arbiter"
	RoleObserver    AgentRole = "observer"
)

// AgentStatus is the agent's current availability.
type AgentStatus string

const (
	StatusIdle    AgentStatus = "idle"
	StatusWorking AgentStatus = "working"
	StatusError   AgentStatus = "error"
)

// AgentInfo is the registry's view of one agent.
type AgentInfo struct {
	Name           string      `json:"name"`
	Role           AgentRole   `json:"role"`
	Status         AgentStatus `json:"status"`
	Capabilities   []string    `json:"capabilities,omitempty"`
	Weight         float64     `json:"weight"`
	LastHeartbeat  time.Time   `json:"last_heartbeat"`
	TasksCompleted int         `json:"tasks_completed"`
	TasksFailed    int         `json:"tasks_failed"`
}

// AgentRegistry tracks agents and their liveness. Re-registering a name
// replaces the previous entry.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]*AgentInfo
	order  []string
}

func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		agents: make(map[string]*AgentInfo),
	}
}

// Register adds or replaces an agent. New agents start idle with weight 1
// unless a weight was supplied.
func (r *AgentRegistry) Register(name string, role AgentRole, capabilities ...string) (*AgentInfo, error) {
	if name == "" {
		return nil, fmt.Errorf("agent name cannot be empty")
	}
	switch role {
	case RoleWorker, RoleCoordinator, RoleArbiter, RoleObserver:
	default:
		return nil, fmt.Errorf("invalid agent role %q", role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[name]; !exists {
		r.order = append(r.order, name)
	}
	info := &AgentInfo{
		Name:          name,
		Role:          role,
		Status:        StatusIdle,
		Capabilities:  capabilities,
		Weight:        1,
		LastHeartbeat: time.Now(),
	}
	r.agents[name] = info
	return info, nil
}

// Deregister removes an agent.
func (r *AgentRegistry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[name]; !exists {
		return
	}
	delete(r.agents, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns a snapshot of the agent's state.
func (r *AgentRegistry) Get(name string) (AgentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.agents[name]
	if !ok {
		return AgentInfo{}, false
	}
	return *info, true
}

// Names returns agent names in registration order.
func (r *AgentRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SetStatus updates an agent's availability.
func (r *AgentRegistry) SetStatus(name string, status AgentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.agents[name]
	if !ok {
		return fmt.Errorf("agent '%s' not registered", name)
	}
	info.Status = status
	return nil
}

// SetWeight sets the agent's voting weight.
func (r *AgentRegistry) SetWeight(name string, weight float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.agents[name]
	if !ok {
		return fmt.Errorf("agent '%s' not registered", name)
	}
	info.Weight = weight
	return nil
}

// Heartbeat records liveness.
func (r *AgentRegistry) Heartbeat(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.agents[name]
	if !ok {
		return fmt.Errorf("agent '%s' not registered", name)
	}
	info.LastHeartbeat = time.Now()
	return nil
}

// RecordOutcome bumps the agent's completion counters.
func (r *AgentRegistry) RecordOutcome(name string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.agents[name]
	if !ok {
		return
	}
	if success {
		info.TasksCompleted++
	} else {
		info.TasksFailed++
	}
}

// Alive returns names of agents whose heartbeat is within the window.
func (r *AgentRegistry) Alive(window time.Duration) []string {
	cutoff := time.Now().Add(-window)

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, name := range r.order {
		if r.agents[name].LastHeartbeat.After(cutoff) {
			out = append(out, name)
		}
	}
	return out
}
