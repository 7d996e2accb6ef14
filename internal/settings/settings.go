// Package settings loads operator settings from a TOML file: where state
// lives on disk, how the fetch engine behaves, and how napt logs.
//
// Settings control HOW napt runs; recipes (internal/recipe) declare WHAT it
// tracks. The default settings location is ~/.config/napt/settings.toml and
// state defaults to ~/.local/share/napt; both can be moved with the
// NAPT_SETTINGS and NAPT_DATA_DIR environment variables.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Environment variables overriding the default locations.
const (
	// EnvSettings points at an alternative settings file.
	EnvSettings = "NAPT_SETTINGS"
	// EnvDataDir relocates the state directory (store, downloads, history).
	EnvDataDir = "NAPT_DATA_DIR"
)

// Fetch tunes the transfer engine.
type Fetch struct {
	// TimeoutSeconds bounds each transfer attempt, not the whole retry loop.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// Retries is how many times a transient failure is retried.
	Retries int `toml:"retries"`
	// UserAgent overrides the User-Agent header when non-empty.
	UserAgent string `toml:"user_agent"`
}

// Log selects the log level and handler format.
type Log struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// Settings is the parsed settings document.
type Settings struct {
	// RecipePath is the Lua recipe file declaring the tracked applications.
	RecipePath string `toml:"recipe_path"`
	// StorePath is the cache store JSON document.
	StorePath string `toml:"store_path"`
	// DownloadDir is where fetched artifacts land, one subdirectory per
	// application.
	DownloadDir string `toml:"download_dir"`
	// HistoryPath is the run journal database. Empty disables the journal.
	HistoryPath string `toml:"history_path"`

	Fetch Fetch `toml:"fetch"`
	Log   Log   `toml:"log"`
}

// FetchTimeout returns the per-attempt timeout as a duration.
func (s *Settings) FetchTimeout() time.Duration {
	return time.Duration(s.Fetch.TimeoutSeconds) * time.Second
}

// DataDir resolves the state directory: $NAPT_DATA_DIR when set, otherwise
// ~/.local/share/napt.
func DataDir() (string, error) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "napt"), nil
}

// ConfigDir resolves the configuration directory: ~/.config/napt.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "napt"), nil
}

// DefaultPath resolves the settings file location: $NAPT_SETTINGS when set,
// otherwise ~/.config/napt/settings.toml.
func DefaultPath() (string, error) {
	if path := os.Getenv(EnvSettings); path != "" {
		return path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.toml"), nil
}

// Default returns the settings used when no file overrides them.
func Default() (*Settings, error) {
	dataDir, err := DataDir()
	if err != nil {
		return nil, err
	}
	configDir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return &Settings{
		RecipePath:  filepath.Join(configDir, "apps.lua"),
		StorePath:   filepath.Join(dataDir, "store.json"),
		DownloadDir: filepath.Join(dataDir, "downloads"),
		HistoryPath: filepath.Join(dataDir, "history.db"),
		Fetch: Fetch{
			TimeoutSeconds: 300,
			Retries:        3,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}, nil
}

// Load reads the settings file at path. Values start from Default, so a file
// only needs the keys it changes. An empty path means the default location,
// where a missing file is fine; an explicitly named file must exist.
func Load(path string) (*Settings, error) {
	explicit := path != ""
	if !explicit {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	s, err := Default()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return s, nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	if err := toml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := s.normalize(); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// normalize expands home-relative paths and rejects values the pipeline
// cannot run with.
func (s *Settings) normalize() error {
	var err error
	if s.RecipePath, err = expandHome(s.RecipePath); err != nil {
		return err
	}
	if s.StorePath, err = expandHome(s.StorePath); err != nil {
		return err
	}
	if s.DownloadDir, err = expandHome(s.DownloadDir); err != nil {
		return err
	}
	if s.HistoryPath, err = expandHome(s.HistoryPath); err != nil {
		return err
	}

	if s.StorePath == "" {
		return fmt.Errorf("store_path must not be empty")
	}
	if s.DownloadDir == "" {
		return fmt.Errorf("download_dir must not be empty")
	}
	if s.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be positive, got %d", s.Fetch.TimeoutSeconds)
	}
	if s.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must not be negative, got %d", s.Fetch.Retries)
	}
	return nil
}

// expandHome rewrites a leading "~/" to the user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
