// Package policy enforces per-organization tool and egress policy before
// tool dispatch. Denials are step-level failures and are never retried.
package policy

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

// DeniedError reports a policy denial. It is non-retriable by contract.
type DeniedError struct {
	Message string
}

func (e *DeniedError) Error() string {
	return e.Message
}

// IsRetriable marks denials as permanent for the reliability manager.
func (e *DeniedError) IsRetriable() bool {
	return false
}

// egressTools names the tools whose inputs carry a URL subject to egress
// policy.
var egressTools = map[string]bool{
	"http.fetch":   true,
	"http.request": true,
	"web_request":  true,
}

// Engine evaluates org policy bundles.
type Engine struct {
	mu      sync.RWMutex
	bundles map[string]config.Policy
}

func NewEngine(bundles map[string]config.Policy) *Engine {
	if bundles == nil {
		bundles = map[string]config.Policy{}
	}
	return &Engine{bundles: bundles}
}

// SetPolicy installs or replaces the bundle for an org.
func (e *Engine) SetPolicy(orgID string, p config.Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bundles[orgID] = p
}

// Authorize permits or denies a tool call for an org. Orgs without a
// bundle are unrestricted.
func (e *Engine) Authorize(orgID, toolName string, inputs map[string]any) error {
	e.mu.RLock()
	bundle, ok := e.bundles[orgID]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	for _, denied := range bundle.Tools.Deny {
		if denied == toolName {
			return &DeniedError{Message: fmt.Sprintf("Policy denied tool '%s'", toolName)}
		}
	}

	if egressTools[toolName] {
		host := extractHost(inputs)
		if host != "" {
			for _, domain := range bundle.Egress.DenyDomains {
				if hostMatches(host, domain) {
					return &DeniedError{Message: fmt.Sprintf("Policy denied egress to %s", host)}
				}
			}
		}
	}

	return nil
}

func extractHost(inputs map[string]any) string {
	raw, _ := inputs["url"].(string)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// hostMatches reports whether host equals the denied domain or is a
// subdomain of it.
func hostMatches(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
