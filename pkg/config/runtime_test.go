package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
)

func newTestSettings() *auth.Settings {
	return auth.NewSettings(auth.SettingsSnapshot{
		EnableSignup:    true,
		DefaultUserRole: auth.RolePending,
		JWTExpiresIn:    "-1",
	})
}

func quietLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
}

func TestRuntimeStore_LoadCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	rs := NewRuntimeStore(path, newTestSettings(), quietLogger())

	if err := rs.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected settings file to be created: %v", err)
	}
	if !strings.Contains(string(data), "default_user_role: pending") {
		t.Errorf("Unexpected file contents:\n%s", data)
	}
}

func TestRuntimeStore_LoadAppliesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := "enable_signup: false\ndefault_user_role: user\njwt_expires_in: bogus\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	settings := newTestSettings()
	if err := NewRuntimeStore(path, settings, quietLogger()).Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	snap := settings.Snapshot()
	if snap.EnableSignup {
		t.Error("Expected signup disabled from file")
	}
	if snap.DefaultUserRole != auth.RoleUser {
		t.Errorf("Expected role user, got %s", snap.DefaultUserRole)
	}
	if snap.JWTExpiresIn != "-1" {
		t.Errorf("Invalid expiry in file should be ignored, got %s", snap.JWTExpiresIn)
	}
}

func TestRuntimeStore_LoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("enable_signup: [not, a, bool\n"), 0o600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := NewRuntimeStore(path, newTestSettings(), quietLogger()).Load(); err == nil {
		t.Error("Expected parse error")
	}
}

func TestRuntimeStore_PersistsChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	settings := newTestSettings()
	NewRuntimeStore(path, settings, quietLogger())

	settings.SetTokenExpiry("2w")
	settings.ToggleSignup()

	reloaded := auth.NewSettings(auth.SettingsSnapshot{EnableSignup: true})
	if err := NewRuntimeStore(path, reloaded, quietLogger()).Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	snap := reloaded.Snapshot()
	if snap.JWTExpiresIn != "2w" || snap.EnableSignup {
		t.Errorf("Expected persisted changes, got %+v", snap)
	}
}

func TestRuntimeStore_ConcurrentChangesPersistLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	settings := newTestSettings()
	NewRuntimeStore(path, settings, quietLogger())

	expiries := []string{"1h", "2h", "3d", "4w"}
	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(2)
		go func() { defer wg.Done(); settings.SetTokenExpiry(expiries[i%len(expiries)]) }()
		go func() { defer wg.Done(); settings.ToggleSignup() }()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read settings file: %v", err)
	}
	var persisted auth.SettingsSnapshot
	if err := yaml.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("Failed to parse settings file: %v", err)
	}
	if want := settings.Snapshot(); persisted != want {
		t.Errorf("Persisted %+v, want latest %+v", persisted, want)
	}
}

func TestRuntimeStore_WatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	settings := newTestSettings()
	rs := NewRuntimeStore(path, settings, quietLogger())
	if err := rs.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rs.Watch(ctx); err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}

	content := "enable_signup: true\ndefault_user_role: admin\njwt_expires_in: 4h\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if settings.DefaultRole() == auth.RoleAdmin && settings.TokenExpiry() == "4h" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("Settings were not reloaded: %+v", settings.Snapshot())
}
