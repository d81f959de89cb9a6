// Package settings loads and persists the tool's own configuration,
// distinct from the editor settings being synchronized.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lazyyq/vscode-sync-settings/internal/paths"
	"go.yaml.in/yaml/v3"
)

// ErrNotLoaded is returned by Get before the first successful Load.
var ErrNotLoaded = errors.New("settings not loaded")

// Notification levels control how chatty the tool is.
const (
	NotifyNone  = "none"
	NotifyMinor = "minor"
	NotifyMajor = "major"
	NotifyAll   = "all"
)

// Config represents settings.yml.
type Config struct {
	Repository   RepositoryConfig  `yaml:"repository"`
	Profile      string            `yaml:"profile"`
	Notification string            `yaml:"notification"`
	Crons        map[string]string `yaml:"crons,omitempty"`
	Editor       EditorConfig      `yaml:"editor,omitempty"`
	Extensions   ExtensionsConfig  `yaml:"extensions,omitempty"`
	LogFile      string            `yaml:"log_file,omitempty"`
}

// RepositoryConfig locates the sync repository.
type RepositoryConfig struct {
	URL  string `yaml:"url,omitempty"`
	Path string `yaml:"path"`
}

// EditorConfig locates the editor being synchronized.
type EditorConfig struct {
	Command     string `yaml:"command,omitempty"`
	SettingsDir string `yaml:"settings_dir,omitempty"`
}

// ExtensionsConfig controls extension-list handling.
type ExtensionsConfig struct {
	TrackVersions bool `yaml:"track_versions,omitempty"`
}

// Store owns the in-memory configuration. It is created once and passed
// to the components that need it; Load may be called again at any time
// to refresh from disk without disturbing holders of the prior Config.
type Store struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

// NewStore creates a store reading from the given settings.yml path.
// Nothing is read until Load is called.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the settings.yml location backing this store.
func (s *Store) Path() string {
	return s.path
}

// Load reads settings.yml, validates it and replaces the in-memory
// configuration. A missing file yields the defaults. Load is safe to
// retry and safe to call after success; consumers keep the *Config they
// already hold.
func (s *Store) Load() (*Config, error) {
	cfg := defaults(filepath.Dir(s.path))

	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", s.path, err)
		}
	}

	applyDefaults(cfg, filepath.Dir(s.path))
	if err := validate(cfg); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return cfg, nil
}

// Get returns the current configuration, or ErrNotLoaded before the
// first successful Load.
func (s *Store) Get() (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil, ErrNotLoaded
	}
	return s.cfg, nil
}

// SetProfile persists a new active profile name and refreshes the
// in-memory configuration. The write is atomic (temp file + rename).
func (s *Store) SetProfile(name string) error {
	cfg, err := s.Get()
	if err != nil {
		return err
	}

	next := *cfg
	next.Profile = name

	if err := write(s.path, &next); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = &next
	s.mu.Unlock()
	return nil
}

// Save writes the current configuration back to settings.yml, creating
// the file (and its directory) if needed.
func (s *Store) Save() error {
	cfg, err := s.Get()
	if err != nil {
		return err
	}
	return write(s.path, cfg)
}

func write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

func defaults(confDir string) *Config {
	return &Config{
		Repository:   RepositoryConfig{Path: paths.DefaultRepositoryDir(confDir)},
		Profile:      "main",
		Notification: NotifyAll,
		Editor: EditorConfig{
			Command:     "code",
			SettingsDir: paths.EditorUserDir(),
		},
	}
}

func applyDefaults(cfg *Config, confDir string) {
	if cfg.Repository.Path == "" {
		cfg.Repository.Path = paths.DefaultRepositoryDir(confDir)
	}
	cfg.Repository.Path = paths.Expand(cfg.Repository.Path)
	if cfg.Profile == "" {
		cfg.Profile = "main"
	}
	if cfg.Notification == "" {
		cfg.Notification = NotifyAll
	}
	if cfg.Editor.Command == "" {
		cfg.Editor.Command = "code"
	}
	if cfg.Editor.SettingsDir == "" {
		cfg.Editor.SettingsDir = paths.EditorUserDir()
	}
	cfg.Editor.SettingsDir = paths.Expand(cfg.Editor.SettingsDir)
}

func validate(cfg *Config) error {
	switch cfg.Notification {
	case NotifyNone, NotifyMinor, NotifyMajor, NotifyAll:
	default:
		return fmt.Errorf("invalid notification level %q (want none, minor, major or all)", cfg.Notification)
	}
	for op := range cfg.Crons {
		switch op {
		case "download", "upload", "review":
		default:
			return fmt.Errorf("invalid cron operation %q (want download, upload or review)", op)
		}
	}
	return nil
}
