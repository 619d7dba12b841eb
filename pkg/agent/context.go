// Package agent holds the per-agent mutable state shared by the planner
// and executor: bounded message history, the tool map, model selection and
// optional collaborators.
package agent

import (
	"sync"

	"github.com/kadirpekel/agentsdk/pkg/llms"
	"github.com/kadirpekel/agentsdk/pkg/observability"
	"github.com/kadirpekel/agentsdk/pkg/policy"
	"github.com/kadirpekel/agentsdk/pkg/protocol"
	"github.com/kadirpekel/agentsdk/pkg/ratelimit"
	"github.com/kadirpekel/agentsdk/pkg/reliability"
	"github.com/kadirpekel/agentsdk/pkg/tool"
	"github.com/kadirpekel/agentsdk/pkg/utils"
)

const (
	DefaultMaxShortTerm = 1000
	DefaultMaxLongTerm  = 10000
)

// Context is the per-agent mutable state. It lives for the lifetime of
// its owning agent.
type Context struct {
	Name  string
	Tools *tool.Registry
	Model llms.ModelConfig

	// Optional collaborators. Nil means the concern is disabled.
	Events        *observability.Bus
	RateLimiter   *ratelimit.Limiter
	Reliability   *reliability.Manager
	Policy        *policy.Engine
	Replay        *reliability.ReplayStore
	ReplayMode    bool
	Observability *observability.Manager
	Tokens        *utils.TokenCounter
	OrgID         string

	MaxShortTerm int
	MaxLongTerm  int

	mu        sync.RWMutex
	shortTerm []protocol.Message
	longTerm  []protocol.Message
	sessionID string
	runID     string
}

func NewContext(name string) *Context {
	return &Context{
		Name:         name,
		Tools:        tool.NewRegistry(),
		MaxShortTerm: DefaultMaxShortTerm,
		MaxLongTerm:  DefaultMaxLongTerm,
	}
}

// CountTokens estimates token usage for the given contents, through the
// model's tokenizer when a counter is configured and the whitespace
// estimate otherwise.
func (c *Context) CountTokens(contents ...string) int {
	if c.Tokens == nil {
		return utils.EstimateMessageTokens(contents...)
	}
	total := 0
	for _, content := range contents {
		total += c.Tokens.Count(content)
	}
	return total
}

// AddShortTerm appends a message to short-term history. Overflow shifts
// the oldest short-term message into long-term history; long-term
// overflow silently drops the oldest entry. Both bounds hold after every
// mutation.
func (c *Context) AddShortTerm(m protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shortTerm = append(c.shortTerm, m)
	for len(c.shortTerm) > c.MaxShortTerm {
		oldest := c.shortTerm[0]
		c.shortTerm = c.shortTerm[1:]

		c.longTerm = append(c.longTerm, oldest)
		for len(c.longTerm) > c.MaxLongTerm {
			c.longTerm = c.longTerm[1:]
		}
	}
}

// ShortTerm returns a snapshot of short-term history.
func (c *Context) ShortTerm() []protocol.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]protocol.Message, len(c.shortTerm))
	copy(out, c.shortTerm)
	return out
}

// LongTerm returns a snapshot of long-term history.
func (c *Context) LongTerm() []protocol.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]protocol.Message, len(c.longTerm))
	copy(out, c.longTerm)
	return out
}

// SetRunContext updates the identifiers stamped onto produced messages.
func (c *Context) SetRunContext(sessionID, runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
	c.runID = runID
}

// SessionID returns the current session identifier.
func (c *Context) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// RunID returns the current run identifier.
func (c *Context) RunID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runID
}

// ApplyRunMetadata stamps session and run ids into a copy of the message,
// only where not already present. The input is never mutated.
func (c *Context) ApplyRunMetadata(m protocol.Message) protocol.Message {
	c.mu.RLock()
	sessionID := c.sessionID
	runID := c.runID
	c.mu.RUnlock()

	out := m
	out.Metadata = make(map[string]any, len(m.Metadata)+2)
	for k, v := range m.Metadata {
		out.Metadata[k] = v
	}
	if _, ok := out.Metadata[protocol.MetaSessionID]; !ok && sessionID != "" {
		out.Metadata[protocol.MetaSessionID] = sessionID
	}
	if _, ok := out.Metadata[protocol.MetaRunID]; !ok && runID != "" {
		out.Metadata[protocol.MetaRunID] = runID
	}
	return out
}
