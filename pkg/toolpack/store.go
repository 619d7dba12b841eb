package toolpack

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store is a file-backed registry of published manifests, laid out as
// <root>/<pack>/<version>.json. Publishing requires a valid signature;
// loading re-verifies it.
type Store struct {
	root   string
	secret []byte
}

func NewStore(root string, secret []byte) *Store {
	return &Store{root: root, secret: secret}
}

func (s *Store) path(name, version string) string {
	return filepath.Join(s.root, name, version+".json")
}

// Publish verifies and writes a manifest. Re-publishing an existing
// version is rejected; versions are immutable once written.
func (s *Store) Publish(m *Manifest) error {
	if err := m.Verify(s.secret); err != nil {
		return err
	}

	path := s.path(m.Name, m.Version)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("pack %s version %s already published", m.Name, m.Version)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create pack directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest %s: %w", m.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", m.Name, err)
	}
	return nil
}

// Load reads and verifies a published manifest.
func (s *Store) Load(name, version string) (*Manifest, error) {
	data, err := os.ReadFile(s.path(name, version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("pack %s version %s not found", name, version)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s/%s: %w", name, version, err)
	}
	if err := m.Verify(s.secret); err != nil {
		return nil, err
	}
	return &m, nil
}

// Versions lists a pack's published versions in lexical order.
func (s *Store) Versions(name string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list pack %s: %w", name, err)
	}

	var versions []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(versions)
	return versions, nil
}

// Packs lists all published pack names in lexical order.
func (s *Store) Packs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list packs: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
