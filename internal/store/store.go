// Package store persists scraper configs as one JSON document per name.
// Saves are atomic (write to temp file, rename) so a crash mid-write never
// corrupts an existing config.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/scrape-studio/studio/pkg/models"
)

// ErrNotFound is returned when loading or deleting an unknown config.
var ErrNotFound = errors.New("config not found")

// Store is a directory of persisted scraper configs.
type Store struct {
	dir string
}

// New creates a Store rooted at dir, creating it if needed. An empty dir
// defaults to ~/.studio/configs.
func New(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".studio", "configs")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("config name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid config name %q", name)
	}
	return filepath.Join(s.dir, name+".json"), nil
}

// Save writes the config under its name, replacing any previous version.
func (s *Store) Save(cfg *models.ScraperConfig) error {
	path, err := s.path(cfg.Name)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+cfg.Name+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to store config: %w", err)
	}

	log.Debug().Str("name", cfg.Name).Str("path", path).Msg("Config saved")
	return nil
}

// Load reads one config by name.
func (s *Store) Load(name string) (*models.ScraperConfig, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	var cfg models.ScraperConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %q is corrupt: %w", name, err)
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	return &cfg, nil
}

// Delete removes a config by name.
func (s *Store) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	}
	log.Debug().Str("name", name).Msg("Config deleted")
	return nil
}

// List returns the names of all stored configs, sorted by the directory
// listing order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	return names, nil
}
