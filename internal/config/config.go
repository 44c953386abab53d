// Package config loads, watches and saves the constructor's YAML settings
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const encryptedPrefix = "encrypted:"

// Config is the full settings file
type Config struct {
	Version  string         `yaml:"version"`
	Backend  BackendConfig  `yaml:"backend"`
	Server   ServerConfig   `yaml:"server"`
	Editor   EditorConfig   `yaml:"editor"`
	Storage  StorageConfig  `yaml:"storage"`
	EventBus EventBusConfig `yaml:"eventbus"`
	Live     LiveConfig     `yaml:"live"`
	Logging  LoggingConfig  `yaml:"logging"`

	mu       sync.RWMutex    `yaml:"-"`
	path     string          `yaml:"-"`
	watchers []func(*Config) `yaml:"-"`
	sealer   *Sealer         `yaml:"-"`
}

// BackendConfig points at the collaborator REST service
type BackendConfig struct {
	URL string `yaml:"url"`
	// UploadsURL is the base used to re-expand background filenames on
	// import. Defaults to URL.
	UploadsURL string        `yaml:"uploads_url,omitempty"`
	Timeout    time.Duration `yaml:"timeout"`
	Username   string        `yaml:"username,omitempty"`
	Password   string        `yaml:"password,omitempty"`
	// Policies maps a call site such as "user.save" to "terminal" or
	// "assume_success_on_network_error"
	Policies map[string]string `yaml:"policies,omitempty"`
}

// ServerConfig holds the local HTTP API settings
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
	// RateLimit is requests per minute per client IP, zero disables it
	RateLimit int `yaml:"rate_limit"`
}

// EditorConfig holds editing defaults
type EditorConfig struct {
	CanvasWidth  float64 `yaml:"canvas_width"`
	CanvasHeight float64 `yaml:"canvas_height"`
	HardwarePage int     `yaml:"hardware_page"`
}

// StorageConfig holds local persistence settings
type StorageConfig struct {
	DataPath string `yaml:"data_path"`
	Database string `yaml:"database,omitempty"`
}

// EventBusConfig configures the embedded NATS server
type EventBusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// LiveConfig configures the appeal channel subscription
type LiveConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Reconnect time.Duration `yaml:"reconnect"`
	PageSize  int           `yaml:"page_size"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a config with every default applied
func Default() *Config {
	c := &Config{sealer: NewSealer(encryptionKey())}
	c.setDefaults()
	return c
}

// Load reads a YAML file and applies defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.path = path
	cfg.sealer = NewSealer(encryptionKey())

	if err := cfg.decryptSecrets(); err != nil {
		return nil, fmt.Errorf("failed to decrypt secrets: %w", err)
	}
	cfg.setDefaults()

	return &cfg, nil
}

// Save writes the file atomically with secrets encrypted
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := &Config{
		Version:  c.Version,
		Backend:  c.Backend,
		Server:   c.Server,
		Editor:   c.Editor,
		Storage:  c.Storage,
		EventBus: c.EventBus,
		Live:     c.Live,
		Logging:  c.Logging,
		sealer:   c.sealer,
	}
	if err := out.encryptSecrets(); err != nil {
		return fmt.Errorf("failed to encrypt secrets: %w", err)
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append([]byte("# Building constructor configuration\n\n"), data...)

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Rename(tmpPath, c.path)
}

// Watch reloads the file whenever it is written
func (c *Config) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(c.Path()) {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					time.Sleep(100 * time.Millisecond) // debounce
					c.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watch error", "error", err)
			}
		}
	}()

	// Watch the directory so atomic renames by Save are seen
	return watcher.Add(filepath.Dir(c.Path()))
}

// OnChange registers a callback run after each reload
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

func (c *Config) reload() {
	fresh, err := Load(c.Path())
	if err != nil {
		slog.Error("Failed to reload config", "error", err)
		return
	}

	c.mu.Lock()
	c.Version = fresh.Version
	c.Backend = fresh.Backend
	c.Server = fresh.Server
	c.Editor = fresh.Editor
	c.Storage = fresh.Storage
	c.EventBus = fresh.EventBus
	c.Live = fresh.Live
	c.Logging = fresh.Logging
	watchers := slices.Clone(c.watchers)
	c.mu.Unlock()

	slog.Info("Configuration reloaded")

	for _, fn := range watchers {
		fn(c)
	}
}

// SetPath sets the file used by Save and Watch
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// Path returns the config file path
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// Sealer returns the secret sealer derived from the environment
func (c *Config) Sealer() *Sealer {
	return c.sealer
}

// UploadsBase returns the base URL for uploaded backgrounds
func (c *Config) UploadsBase() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Backend.UploadsURL != "" {
		return strings.TrimRight(c.Backend.UploadsURL, "/")
	}
	return strings.TrimRight(c.Backend.URL, "/")
}

// DatabasePath returns the SQLite file path
func (c *Config) DatabasePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Storage.Database != "" {
		return c.Storage.Database
	}
	return filepath.Join(c.Storage.DataPath, "constructor.db")
}

func (c *Config) setDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Backend.URL == "" {
		c.Backend.URL = "http://localhost:8000"
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = 30 * time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8090"
	}
	if c.Editor.CanvasWidth <= 0 || c.Editor.CanvasHeight <= 0 {
		c.Editor.CanvasWidth, c.Editor.CanvasHeight = 800, 800
	}
	if c.Editor.HardwarePage <= 0 {
		c.Editor.HardwarePage = 100
	}
	if c.Storage.DataPath == "" {
		c.Storage.DataPath = "./data"
	}
	if c.Live.Path == "" {
		c.Live.Path = "/ws/appeals"
	}
	if c.Live.Reconnect <= 0 {
		c.Live.Reconnect = 5 * time.Second
	}
	if c.Live.PageSize <= 0 {
		c.Live.PageSize = 100
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) encryptSecrets() error {
	if c.Backend.Password == "" || strings.HasPrefix(c.Backend.Password, encryptedPrefix) {
		return nil
	}
	sealed, err := c.sealer.Seal(c.Backend.Password)
	if err != nil {
		return err
	}
	c.Backend.Password = encryptedPrefix + sealed
	return nil
}

func (c *Config) decryptSecrets() error {
	if !strings.HasPrefix(c.Backend.Password, encryptedPrefix) {
		return nil
	}
	plain, err := c.sealer.Open(strings.TrimPrefix(c.Backend.Password, encryptedPrefix))
	if err != nil {
		return err
	}
	c.Backend.Password = plain
	return nil
}
