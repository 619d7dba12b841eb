// Package protocol defines the wire types shared by the planner, executor,
// runtime and orchestrator: messages, plans and step results.
package protocol

import (
	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Metadata keys stamped onto messages by the runtime.
const (
	MetaSessionID = "session_id"
	MetaRunID     = "run_id"
	MetaType      = "type"
	MetaStepID    = "step_id"
	MetaTool      = "tool"
	MetaSuccess   = "success"
)

// Message type discriminators carried in Metadata[MetaType].
const (
	TypePlan          = "plan"
	TypeExecutionStep = "execution_step"
	TypeExecution     = "execution"
)

// Message is a single utterance in an agent conversation. Messages are
// treated as immutable once emitted: code that needs to alter metadata
// works on a copy (see WithMetadata).
type Message struct {
	ID       string         `json:"id"`
	Role     Role           `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a message with a fresh unique ID and its own metadata
// map.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:       uuid.NewString(),
		Role:     role,
		Content:  content,
		Metadata: make(map[string]any),
	}
}

// WithMetadata returns a copy of the message with the given key set. The
// receiver is not modified.
func (m Message) WithMetadata(key string, value any) Message {
	out := m
	out.Metadata = make(map[string]any, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata[key] = value
	return out
}

// SessionID returns the stamped session id, or "" if the message has not
// been through the runtime yet.
func (m Message) SessionID() string {
	s, _ := m.Metadata[MetaSessionID].(string)
	return s
}

// RunID returns the stamped run id, or "".
func (m Message) RunID() string {
	s, _ := m.Metadata[MetaRunID].(string)
	return s
}
