// Package ratelimit implements a sliding-window limiter over calls and
// tokens, scoped per model, agent, tenant or globally.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

// Error codes carried by RateLimitError.
const (
	CodeCalls  = "RATE_LIMIT_CALLS"
	CodeTokens = "RATE_LIMIT_TOKENS"
)

// RateLimitError is raised when a check would exceed a rule. Code
// discriminates the exhausted dimension.
type RateLimitError struct {
	Code    string
	Rule    string
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Scope determines which identifier a rule keys its counters on.
type Scope string

const (
	ScopeModel  Scope = "model"
	ScopeAgent  Scope = "agent"
	ScopeTenant Scope = "tenant"
	ScopeGlobal Scope = "global"
)

type tokenEvent struct {
	at     time.Time
	tokens int64
}

type window struct {
	calls  []time.Time
	tokens []tokenEvent
}

// Limiter tracks usage in per-key sliding windows. A Check either
// atomically records the usage against every rule or fails without
// recording anything.
type Limiter struct {
	mu      sync.Mutex
	rules   []config.RateLimitRule
	windows map[string]*window
	now     func() time.Time
}

func NewLimiter(rules []config.RateLimitRule) (*Limiter, error) {
	cfg := config.RateLimitConfig{Enabled: true, Rules: rules}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit rules: %w", err)
	}
	return &Limiter{
		rules:   rules,
		windows: make(map[string]*window),
		now:     time.Now,
	}, nil
}

// Check verifies every rule against the usage already in its window and,
// if all pass, records the call and token usage in all windows. The check
// is all-or-nothing under a single mutex.
func (l *Limiter) Check(agent, model string, tokens int64, tenant string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	type pending struct {
		rule config.RateLimitRule
		win  *window
	}
	checked := make([]pending, 0, len(l.rules))

	for _, rule := range l.rules {
		key := l.scopeKey(rule, agent, model, tenant)
		win := l.windows[key]
		if win == nil {
			win = &window{}
			l.windows[key] = win
		}

		l.evict(win, now, rule.WindowSeconds)

		if rule.MaxCalls != nil && int64(len(win.calls)) >= *rule.MaxCalls {
			return &RateLimitError{
				Code:    CodeCalls,
				Rule:    rule.Name,
				Message: fmt.Sprintf("rule %q: %d calls already in %ds window", rule.Name, len(win.calls), rule.WindowSeconds),
			}
		}

		if rule.MaxTokens != nil {
			var inWindow int64
			for _, ev := range win.tokens {
				inWindow += ev.tokens
			}
			if inWindow+tokens > *rule.MaxTokens {
				return &RateLimitError{
					Code:    CodeTokens,
					Rule:    rule.Name,
					Message: fmt.Sprintf("rule %q: %d+%d tokens exceeds %d in %ds window", rule.Name, inWindow, tokens, *rule.MaxTokens, rule.WindowSeconds),
				}
			}
		}

		checked = append(checked, pending{rule: rule, win: win})
	}

	// All rules passed; record against every window.
	for _, p := range checked {
		p.win.calls = append(p.win.calls, now)
		p.win.tokens = append(p.win.tokens, tokenEvent{at: now, tokens: tokens})
	}

	return nil
}

func (l *Limiter) scopeKey(rule config.RateLimitRule, agent, model, tenant string) string {
	switch Scope(rule.Scope) {
	case ScopeModel:
		return rule.Name + "|model|" + model
	case ScopeAgent:
		return rule.Name + "|agent|" + agent
	case ScopeTenant:
		return rule.Name + "|tenant|" + tenant
	default:
		return rule.Name + "|global"
	}
}

func (l *Limiter) evict(win *window, now time.Time, windowSeconds int) {
	cutoff := now.Add(-time.Duration(windowSeconds) * time.Second)

	i := 0
	for i < len(win.calls) && !win.calls[i].After(cutoff) {
		i++
	}
	win.calls = win.calls[i:]

	j := 0
	for j < len(win.tokens) && !win.tokens[j].at.After(cutoff) {
		j++
	}
	win.tokens = win.tokens[j:]
}

// CallsInWindow returns the live call count for a rule/identifier pair.
// Used by tests and operational introspection.
func (l *Limiter) CallsInWindow(rule config.RateLimitRule, agent, model, tenant string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	win := l.windows[l.scopeKey(rule, agent, model, tenant)]
	if win == nil {
		return 0
	}
	l.evict(win, l.now(), rule.WindowSeconds)
	return len(win.calls)
}

// TokensInWindow returns the live token sum for a rule/identifier pair.
func (l *Limiter) TokensInWindow(rule config.RateLimitRule, agent, model, tenant string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	win := l.windows[l.scopeKey(rule, agent, model, tenant)]
	if win == nil {
		return 0
	}
	l.evict(win, l.now(), rule.WindowSeconds)

	var total int64
	for _, ev := range win.tokens {
		total += ev.tokens
	}
	return total
}
