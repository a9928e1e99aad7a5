package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"

	"ytdownloader/internal/format"
	"ytdownloader/pkg/models"
)

// EnvPrefix is the prefix of every environment override, e.g. YTDL_PROXY
const EnvPrefix = "YTDL"

var (
	ErrInvalidPort        = errors.New("invalid port: must be between 1 and 65535")
	ErrInvalidQuality     = errors.New("invalid default quality")
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be between 1 and 10")
	ErrInvalidBackend     = errors.New("invalid backend: must be ytdlp or native")
	ErrInvalidRateLimit   = errors.New("invalid rate limit: must be non-negative")
	ErrInvalidTimeout     = errors.New("invalid resolve timeout: must be positive")
	ErrInvalidSessionAge  = errors.New("invalid session max age: must be non-negative")
)

// Manager handles configuration loading, saving, and updates
type Manager struct {
	mu         sync.RWMutex
	config     *models.Config
	configPath string
}

// NewManager creates a new configuration manager
// If the config file doesn't exist, it creates one with default values
func NewManager(configPath string) (*Manager, error) {
	manager := &Manager{
		configPath: configPath,
		config:     models.DefaultConfig(),
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := manager.load(); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := manager.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	if err := Validate(manager.config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return manager, nil
}

// Get returns a copy of the stored configuration
func (m *Manager) Get() *models.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := *m.config
	return &cfg
}

// Effective returns the stored configuration with YTDL_* environment
// overrides applied. Overrides are never written back to disk.
func (m *Manager) Effective() (*models.Config, error) {
	cfg := m.Get()
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}
	return cfg, nil
}

// Update applies a function to the configuration and saves it
func (m *Manager) Update(fn func(*models.Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := *m.config
	fn(&next)

	if err := Validate(&next); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	m.config = &next
	return m.save()
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.save()
}

// Path returns the configuration file path
func (m *Manager) Path() string {
	return m.configPath
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg models.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}

	m.config = mergeWithDefaults(&cfg)
	return nil
}

// save writes configuration to disk (must be called with lock held)
func (m *Manager) save() error {
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// mergeWithDefaults fills in default values for missing fields
func mergeWithDefaults(cfg *models.Config) *models.Config {
	defaults := models.DefaultConfig()

	if cfg.DefaultQuality == "" {
		cfg.DefaultQuality = defaults.DefaultQuality
	}
	if cfg.MaxConcurrentDownloads == 0 {
		cfg.MaxConcurrentDownloads = defaults.MaxConcurrentDownloads
	}
	if cfg.Backend == "" {
		cfg.Backend = defaults.Backend
	}
	if cfg.ServerPort == 0 {
		cfg.ServerPort = defaults.ServerPort
	}
	if cfg.ResolveTimeoutSeconds == 0 {
		cfg.ResolveTimeoutSeconds = defaults.ResolveTimeoutSeconds
	}
	if cfg.SessionMaxAgeHours == 0 {
		cfg.SessionMaxAgeHours = defaults.SessionMaxAgeHours
	}

	return cfg
}

// Validate checks if the configuration is valid
func Validate(cfg *models.Config) error {
	if cfg.ServerPort < 1 || cfg.ServerPort > 65535 {
		return ErrInvalidPort
	}
	if _, err := format.ParseTier(cfg.DefaultQuality); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidQuality, cfg.DefaultQuality)
	}
	if cfg.MaxConcurrentDownloads < 1 || cfg.MaxConcurrentDownloads > 10 {
		return ErrInvalidConcurrency
	}
	if cfg.Backend != models.BackendYtdlp && cfg.Backend != models.BackendNative {
		return ErrInvalidBackend
	}
	if cfg.RateLimitKBps < 0 {
		return ErrInvalidRateLimit
	}
	if cfg.ResolveTimeoutSeconds <= 0 {
		return ErrInvalidTimeout
	}
	if cfg.SessionMaxAgeHours < 0 {
		return ErrInvalidSessionAge
	}

	return nil
}

// ResolveTimeout returns the metadata timeout as a duration
func ResolveTimeout(cfg *models.Config) time.Duration {
	return time.Duration(cfg.ResolveTimeoutSeconds) * time.Second
}

// GetDataDir returns the application data directory
func GetDataDir() string {
	if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
		dataDir := filepath.Join(appData, "YoutubeDownloader")
		os.MkdirAll(dataDir, 0755)
		return dataDir
	}

	if home, err := os.UserHomeDir(); err == nil {
		dataDir := filepath.Join(home, ".ytdownloader")
		os.MkdirAll(dataDir, 0755)
		return dataDir
	}

	return "."
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	return filepath.Join(GetDataDir(), "config.json")
}

// DownloadDir returns the configured download directory, falling back to
// ~/Downloads and then the working directory
func DownloadDir(cfg *models.Config) string {
	if cfg.DownloadPath != "" {
		return cfg.DownloadPath
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Downloads")
	}
	return "."
}

// CacheDir returns the configured session cache directory
func CacheDir(cfg *models.Config) string {
	if cfg.CachePath != "" {
		return cfg.CachePath
	}
	return filepath.Join(GetDataDir(), "sessions")
}
