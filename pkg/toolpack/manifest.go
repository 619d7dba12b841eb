// Package toolpack manages signed tool manifests: declarative bundles of
// tool descriptions with an HMAC signature over a canonical encoding, and
// a file-backed registry of published packs.
package toolpack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/kadirpekel/agentsdk/pkg/config"
	"github.com/kadirpekel/agentsdk/pkg/tool"
)

// Manifest declares a versioned bundle of tools. Signature covers the
// canonical encoding of every other field.
type Manifest struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Tools     []tool.ToolInfo   `json:"tools"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Signature string            `json:"signature,omitempty"`
}

// Validate checks the manifest shape, signature aside.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest name is required")
	}
	if m.Version == "" {
		return fmt.Errorf("manifest version is required")
	}
	if len(m.Tools) == 0 {
		return fmt.Errorf("manifest must declare at least one tool")
	}
	seen := make(map[string]bool, len(m.Tools))
	for _, t := range m.Tools {
		if t.Name == "" {
			return fmt.Errorf("manifest %s: tool with empty name", m.Name)
		}
		if seen[t.Name] {
			return fmt.Errorf("manifest %s: duplicate tool '%s'", m.Name, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// canonical produces the byte string the signature covers: JSON with
// every object's keys in sorted order, tools sorted by name, signature
// excluded. The round trip through an untyped value is what sorts the
// keys; a single marshal would emit struct fields in declaration order,
// which is not stable across field reordering.
func (m *Manifest) canonical() ([]byte, error) {
	tools := append([]tool.ToolInfo(nil), m.Tools...)
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	unsigned := struct {
		Name     string            `json:"name"`
		Version  string            `json:"version"`
		Tools    []tool.ToolInfo   `json:"tools"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}{
		Name:     m.Name,
		Version:  m.Version,
		Tools:    tools,
		Metadata: m.Metadata,
	}

	typed, err := json.Marshal(unsigned)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize manifest %s: %w", m.Name, err)
	}

	var generic any
	if err := json.Unmarshal(typed, &generic); err != nil {
		return nil, fmt.Errorf("failed to canonicalize manifest %s: %w", m.Name, err)
	}
	data, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize manifest %s: %w", m.Name, err)
	}
	return data, nil
}

// Sign computes and stores the HMAC-SHA256 signature.
func (m *Manifest) Sign(secret []byte) error {
	if len(secret) == 0 {
		return fmt.Errorf("signing secret is empty")
	}
	if err := m.Validate(); err != nil {
		return err
	}

	data, err := m.canonical()
	if err != nil {
		return err
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	m.Signature = hex.EncodeToString(mac.Sum(nil))
	return nil
}

// Verify recomputes the signature and compares in constant time.
func (m *Manifest) Verify(secret []byte) error {
	if m.Signature == "" {
		return fmt.Errorf("manifest %s is unsigned", m.Name)
	}

	data, err := m.canonical()
	if err != nil {
		return err
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	expected := mac.Sum(nil)

	actual, err := hex.DecodeString(m.Signature)
	if err != nil {
		return fmt.Errorf("manifest %s has a malformed signature", m.Name)
	}
	if !hmac.Equal(expected, actual) {
		return fmt.Errorf("manifest %s signature mismatch", m.Name)
	}
	return nil
}

// SecretFromEnv reads the signing secret from the environment.
func SecretFromEnv() ([]byte, error) {
	secret := os.Getenv(config.EnvToolManifestSecret)
	if secret == "" {
		return nil, fmt.Errorf("%s is not set", config.EnvToolManifestSecret)
	}
	return []byte(secret), nil
}
