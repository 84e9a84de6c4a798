// Package backup writes point-in-time copies of the settings file and every
// stored conversation.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
	"github.com/PabloGalante/robovibe-agent/internal/observability"
)

const (
	manifestName    = "manifest.json"
	timestampLayout = "20060102_150405"
)

type manifest struct {
	Timestamp     string    `json:"timestamp"`
	Created       time.Time `json:"created"`
	Type          string    `json:"type"`
	Conversations int       `json:"conversations"`
}

// Snapshotter lays out each backup as
//
//	<dir>/backup_<timestamp>/
//	    config/<settings file>
//	    data/conversations/<id>.json
//	    manifest.json
type Snapshotter struct {
	dir          string
	settingsPath string
	store        domain.ConversationStore
	now          func() time.Time
}

func NewSnapshotter(dir, settingsPath string, store domain.ConversationStore) *Snapshotter {
	return &Snapshotter{
		dir:          dir,
		settingsPath: settingsPath,
		store:        store,
		now:          time.Now,
	}
}

func (s *Snapshotter) Snapshot(ctx context.Context) (string, error) {
	now := s.now()
	stamp := now.Format(timestampLayout)

	path, err := s.reserve(stamp)
	if err != nil {
		return "", err
	}

	if err := s.copySettings(path); err != nil {
		return "", err
	}

	n, err := s.exportConversations(ctx, path)
	if err != nil {
		return "", err
	}

	m := manifest{Timestamp: stamp, Created: now.UTC(), Type: "manual", Conversations: n}
	if err := writeJSON(filepath.Join(path, manifestName), m); err != nil {
		return "", err
	}

	observability.LoggerFromContext(ctx).Info("backup created", "path", path, "conversations", n)
	return path, nil
}

// reserve creates the backup directory, adding a suffix when two backups
// land in the same second.
func (s *Snapshotter) reserve(stamp string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	name := "backup_" + stamp
	for i := 2; ; i++ {
		path := filepath.Join(s.dir, name)
		err := os.Mkdir(path, 0o755)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("create backup: %w", err)
		}
		name = fmt.Sprintf("backup_%s_%d", stamp, i)
	}
}

func (s *Snapshotter) copySettings(path string) error {
	if s.settingsPath == "" {
		return nil
	}
	data, err := os.ReadFile(s.settingsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	dst := filepath.Join(path, "config", filepath.Base(s.settingsPath))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("copy settings: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return fmt.Errorf("copy settings: %w", err)
	}
	return nil
}

func (s *Snapshotter) exportConversations(ctx context.Context, path string) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	ids, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list conversations: %w", err)
	}

	dir := filepath.Join(path, "data", "conversations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("export conversations: %w", err)
	}

	for _, id := range ids {
		msgs, err := s.store.History(ctx, id, 0)
		if err != nil {
			return 0, fmt.Errorf("export %s: %w", id, err)
		}
		if err := writeJSON(filepath.Join(dir, fileName(id)+".json"), msgs); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// List returns the backups that carry a manifest, newest first.
func (s *Snapshotter) List(_ context.Context) ([]domain.BackupInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.BackupInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	out := []domain.BackupInfo{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(filepath.Join(path, manifestName))
		if err != nil {
			continue
		}
		var m manifest
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		out = append(out, domain.BackupInfo{
			Name:      e.Name(),
			Path:      path,
			Timestamp: m.Timestamp,
			Created:   m.Created,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// fileName keeps conversation ids usable as file names.
func fileName(id domain.ConversationID) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, string(id))
	if name == "" || strings.Trim(name, ".") == "" {
		return "conversation"
	}
	return name
}

var _ domain.Snapshotter = (*Snapshotter)(nil)
