// Package testutil isolates tests from the developer's real napt state.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/settings"
)

// Env points at the isolated directories one test runs against. The
// NAPT_DATA_DIR and NAPT_SETTINGS environment variables are redirected into
// a t.TempDir, so commands under test can never touch the host's store,
// downloads, or settings. Cleanup is handled by the testing framework.
type Env struct {
	// DataDir holds the store, downloads, and journal for this test.
	DataDir string
	// ConfigDir holds the settings and recipe files for this test.
	ConfigDir string
	// SettingsPath is where WriteSettings puts the settings file; it is also
	// the default settings location while the test runs.
	SettingsPath string
	// RecipePath is where WriteRecipe puts the recipe file.
	RecipePath string
}

// Isolate redirects napt's state lookups into test-owned directories and
// returns their locations.
func Isolate(t *testing.T) *Env {
	t.Helper()

	tmp := t.TempDir()
	env := &Env{
		DataDir:   filepath.Join(tmp, "data"),
		ConfigDir: filepath.Join(tmp, "config"),
	}
	env.SettingsPath = filepath.Join(env.ConfigDir, "settings.toml")
	env.RecipePath = filepath.Join(env.ConfigDir, "apps.lua")

	t.Setenv(settings.EnvDataDir, env.DataDir)
	t.Setenv(settings.EnvSettings, env.SettingsPath)

	for _, dir := range []string{env.DataDir, env.ConfigDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("create test directory %s: %v", dir, err)
		}
	}

	return env
}

// StorePath returns where the isolated cache store lands by default.
func (e *Env) StorePath() string {
	return filepath.Join(e.DataDir, "store.json")
}

// WriteSettings writes the isolated settings file.
func (e *Env) WriteSettings(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(e.SettingsPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings file: %v", err)
	}
}

// WriteRecipe writes the isolated recipe file.
func (e *Env) WriteRecipe(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(e.RecipePath, []byte(content), 0o644); err != nil {
		t.Fatalf("write recipe file: %v", err)
	}
}
