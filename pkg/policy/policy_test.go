package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

func TestAuthorizeUnknownOrgIsUnrestricted(t *testing.T) {
	engine := NewEngine(nil)
	assert.NoError(t, engine.Authorize("unknown", "shell.exec", nil))
}

func TestAuthorizeDeniesListedTool(t *testing.T) {
	engine := NewEngine(map[string]config.Policy{
		"acme": {Tools: config.ToolPolicy{Deny: []string{"shell.exec"}}},
	})

	err := engine.Authorize("acme", "shell.exec", nil)
	require.Error(t, err)
	assert.Equal(t, "Policy denied tool 'shell.exec'", err.Error())

	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.False(t, denied.IsRetriable())

	assert.NoError(t, engine.Authorize("acme", "calculator", nil))
}

func TestAuthorizeDeniesEgressDomains(t *testing.T) {
	engine := NewEngine(map[string]config.Policy{
		"acme": {Egress: config.EgressPolicy{DenyDomains: []string{"internal.example.com"}}},
	})

	cases := []struct {
		name   string
		url    string
		denied bool
	}{
		{"exact host", "https://internal.example.com/data", true},
		{"subdomain", "https://db.internal.example.com/x", true},
		{"unrelated host", "https://example.com/ok", false},
		{"suffix but not subdomain", "https://notinternal.example.com.evil.io", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := engine.Authorize("acme", "http.fetch", map[string]any{"url": tc.url})
			if tc.denied {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "Policy denied egress to ")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEgressPolicyOnlyAppliesToEgressTools(t *testing.T) {
	engine := NewEngine(map[string]config.Policy{
		"acme": {Egress: config.EgressPolicy{DenyDomains: []string{"example.com"}}},
	})

	// A non-egress tool can carry a url input without triggering policy.
	assert.NoError(t, engine.Authorize("acme", "calculator", map[string]any{"url": "https://example.com"}))
}

func TestSetPolicyReplacesBundle(t *testing.T) {
	engine := NewEngine(nil)
	engine.SetPolicy("acme", config.Policy{Tools: config.ToolPolicy{Deny: []string{"x"}}})

	require.Error(t, engine.Authorize("acme", "x", nil))

	engine.SetPolicy("acme", config.Policy{})
	assert.NoError(t, engine.Authorize("acme", "x", nil))
}

func TestAuthorizeIgnoresUnparseableURL(t *testing.T) {
	engine := NewEngine(map[string]config.Policy{
		"acme": {Egress: config.EgressPolicy{DenyDomains: []string{"example.com"}}},
	})
	assert.NoError(t, engine.Authorize("acme", "http.fetch", map[string]any{"url": "::not-a-url::"}))
}
