package orchestrator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageType classifies routed messages.
type MessageType string

const (
	MessageTask              MessageType = "task"
	MessageResult            MessageType = "result"
	MessageCancel            MessageType = "cancel"
	MessageConsensusProposal MessageType = "consensus_proposal"
	MessageBroadcast         MessageType = "broadcast"
)

// AgentMessage is one routed message between agents.
type AgentMessage struct {
	ID        string         `json:"id"`
	Type      MessageType    `json:"type"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Content   string         `json:"content"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Router delivers messages to per-agent inboxes and keeps an append-only
// history of everything routed. Messages to unknown recipients are
// logged and dropped, never queued.
type Router struct {
	registry *AgentRegistry

	mu      sync.Mutex
	inboxes map[string][]AgentMessage
	history []AgentMessage
}

func NewRouter(registry *AgentRegistry) *Router {
	return &Router{
		registry: registry,
		inboxes:  make(map[string][]AgentMessage),
	}
}

// Send routes one message. Returns whether the message was delivered.
func (r *Router) Send(msgType MessageType, from, to, content string, payload map[string]any) bool {
	msg := AgentMessage{
		ID:        uuid.NewString(),
		Type:      msgType,
		From:      from,
		To:        to,
		Content:   content,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	if _, ok := r.registry.Get(to); !ok {
		slog.Warn("Dropping message to unknown agent", "from", from, "to", to, "type", msgType)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inboxes[to] = append(r.inboxes[to], msg)
	r.history = append(r.history, msg)
	return true
}

// Broadcast sends to every registered agent except the sender. Returns
// the number of recipients.
func (r *Router) Broadcast(from, content string, payload map[string]any) int {
	delivered := 0
	for _, name := range r.registry.Names() {
		if name == from {
			continue
		}
		if r.Send(MessageBroadcast, from, name, content, payload) {
			delivered++
		}
	}
	return delivered
}

// Receive drains and returns the agent's inbox in arrival order.
func (r *Router) Receive(agent string) []AgentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.inboxes[agent]
	delete(r.inboxes, agent)
	return msgs
}

// Pending returns the inbox size without draining it.
func (r *Router) Pending(agent string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inboxes[agent])
}

// History returns a snapshot of every routed message.
func (r *Router) History() []AgentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AgentMessage, len(r.history))
	copy(out, r.history)
	return out
}
