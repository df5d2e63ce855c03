// Package auth stores the secrets referenced by {{credential:name}}
// placeholders in recorded pre-actions. Secrets live in the OS keyring;
// environments without one (CI, containers) fall back to mode-0600 files.
// Persisted configs never contain the secret itself, only the placeholder.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "scrape-studio"
	fallbackDir    = ".studio/credentials"
	manifestKey    = "_manifest"
)

// Store resolves and manages named credentials. It implements the
// CredentialResolver contract used during pre-action replay.
type Store struct {
	mu       sync.Mutex
	fileOnly *bool
}

// NewStore creates a credential store.
func NewStore() *Store {
	return &Store{}
}

// useFiles reports whether keyring access is unavailable and file storage
// should be used. Probed once, then cached.
func (s *Store) useFiles() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fileOnly != nil {
		return *s.fileOnly
	}

	result := false
	if os.Getenv("CI") != "" || os.Getenv("CODESPACES") != "" {
		result = true
	} else {
		probe := "_keyring_probe_"
		if err := keyring.Set(keyringService, probe, "ok"); err != nil {
			result = true
		} else {
			_ = keyring.Delete(keyringService, probe)
		}
	}
	s.fileOnly = &result
	return result
}

func credentialDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, fallbackDir)
	return dir, os.MkdirAll(dir, 0700)
}

func credentialPath(name string) (string, error) {
	dir, err := credentialDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".cred"), nil
}

// Resolve returns the secret for a credential name.
func (s *Store) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("credential name cannot be empty")
	}

	if s.useFiles() {
		path, err := credentialPath(name)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("credential %q not found: %w", name, err)
		}
		return string(data), nil
	}

	secret, err := keyring.Get(keyringService, name)
	if err != nil {
		return "", fmt.Errorf("credential %q not found: %w", name, err)
	}
	return secret, nil
}

// Set stores a secret under a name.
func (s *Store) Set(name, secret string) error {
	if name == "" {
		return fmt.Errorf("credential name cannot be empty")
	}

	if s.useFiles() {
		path, err := credentialPath(name)
		if err != nil {
			return err
		}
		return os.WriteFile(path, []byte(secret), 0600)
	}

	if err := keyring.Set(keyringService, name, secret); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return s.updateManifest(name, true)
}

// Delete removes a credential. Unknown names are a no-op.
func (s *Store) Delete(name string) error {
	if name == "" {
		return fmt.Errorf("credential name cannot be empty")
	}

	if s.useFiles() {
		path, err := credentialPath(name)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	if err := keyring.Delete(keyringService, name); err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return s.updateManifest(name, false)
}

// List returns all stored credential names.
func (s *Store) List() ([]string, error) {
	if s.useFiles() {
		dir, err := credentialDir()
		if err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return []string{}, nil
			}
			return nil, err
		}
		names := []string{}
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".cred" {
				names = append(names, strings.TrimSuffix(e.Name(), ".cred"))
			}
		}
		return names, nil
	}

	// Keyrings cannot enumerate, so a manifest entry tracks names.
	data, err := keyring.Get(keyringService, manifestKey)
	if err != nil {
		return []string{}, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("corrupt credential manifest: %w", err)
	}
	return names, nil
}

func (s *Store) updateManifest(name string, add bool) error {
	names, _ := s.List()
	out := names[:0]
	found := false
	for _, n := range names {
		if n == name {
			found = true
			if !add {
				continue
			}
		}
		out = append(out, n)
	}
	if add && !found {
		out = append(out, name)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return keyring.Set(keyringService, manifestKey, string(data))
}
