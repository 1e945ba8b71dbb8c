package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
)

// RuntimeStore persists the runtime auth settings to a YAML file so admin
// changes survive restarts, and applies edits made to the file by others.
type RuntimeStore struct {
	path     string
	settings *auth.Settings
	logger   *observability.Logger

	mu          sync.Mutex
	lastWritten []byte
}

// NewRuntimeStore binds settings to the file at path. Every settings change
// is saved from then on.
func NewRuntimeStore(path string, settings *auth.Settings, logger *observability.Logger) *RuntimeStore {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	rs := &RuntimeStore{
		path:     filepath.Clean(path),
		settings: settings,
		logger:   logger.WithFields(map[string]interface{}{"component": "runtime_settings", "path": path}),
	}
	settings.OnChange(func(auth.SettingsSnapshot) {
		if err := rs.Save(); err != nil {
			rs.logger.WithError(err).Error("failed to persist runtime settings")
		}
	})
	return rs
}

// Load applies the file's settings. A missing file is created from the
// current settings.
func (rs *RuntimeStore) Load() error {
	data, err := os.ReadFile(rs.path)
	if errors.Is(err, fs.ErrNotExist) {
		return rs.Save()
	}
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}
	return rs.apply(data)
}

func (rs *RuntimeStore) apply(data []byte) error {
	// Start from the current values so omitted keys keep them
	snap := rs.settings.Snapshot()
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse settings file: %w", err)
	}
	applied := rs.settings.Apply(snap)
	rs.logger.WithFields(map[string]interface{}{
		"enable_signup":     applied.EnableSignup,
		"default_user_role": string(applied.DefaultUserRole),
		"jwt_expires_in":    applied.JWTExpiresIn,
	}).Info("runtime settings loaded")
	return nil
}

// Save writes the current settings atomically through a temporary file in the
// same directory. The snapshot is taken under the store lock, so the last save
// always holds the latest settings even when changes race.
func (rs *RuntimeStore) Save() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	data, err := yaml.Marshal(rs.settings.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	dir := filepath.Dir(rs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), rs.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}

	rs.lastWritten = data
	return nil
}

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched because editors and Save replace the file by rename.
func (rs *RuntimeStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(rs.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch settings directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		defer observability.RecoverPanic(rs.logger, "runtime settings watcher")

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != rs.path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				rs.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				rs.logger.WithError(err).Warn("settings watcher error")
			}
		}
	}()
	return nil
}

func (rs *RuntimeStore) reload() {
	data, err := os.ReadFile(rs.path)
	if err != nil {
		rs.logger.WithError(err).Warn("failed to read changed settings file")
		return
	}

	rs.mu.Lock()
	own := bytes.Equal(data, rs.lastWritten)
	rs.mu.Unlock()
	if own {
		return
	}

	if err := rs.apply(data); err != nil {
		rs.logger.WithError(err).Warn("ignoring invalid settings file")
	}
}
