// Package settings persists the UI-editable settings as a flat YAML file.
package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

// FileStore reads and writes the settings file. A missing file yields the
// defaults it was created with.
type FileStore struct {
	mu       sync.Mutex
	path     string
	defaults domain.Settings
}

func NewFileStore(path string, defaults domain.Settings) *FileStore {
	if defaults.Theme == "" {
		defaults.Theme = "dark"
	}
	return &FileStore{path: path, defaults: defaults}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(_ context.Context) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileStore) loadLocked() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.defaults, nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("read settings: %w", err)
	}

	// Keys absent from the file keep their defaults.
	out := s.defaults
	if err := yaml.Unmarshal(data, &out); err != nil {
		return domain.Settings{}, fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	return out, nil
}

// Save replaces the file atomically.
func (s *FileStore) Save(_ context.Context, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(settings)
}

func (s *FileStore) saveLocked(settings domain.Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Update applies patch to the stored settings and returns the result.
func (s *FileStore) Update(_ context.Context, patch domain.SettingsPatch) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked()
	if err != nil {
		return domain.Settings{}, err
	}
	next := current.Apply(patch)
	if err := s.saveLocked(next); err != nil {
		return domain.Settings{}, err
	}
	return next, nil
}

var _ domain.SettingsStore = (*FileStore)(nil)
