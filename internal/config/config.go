// Package config implements configuration management for the portal client.
// The configuration lives in a YAML file under the user's config directory,
// is created with defaults on first use, and can be overridden from the
// environment (including a .env file in the working directory).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/warpspeed/portal/internal/logging"
)

const appDirName = "portal"

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Defaults
const (
	DefaultAPIBaseURL         = "https://api.iamwarpspeed.com"
	DefaultStandardTimeout    = 40 * time.Second
	DefaultLongRunningTimeout = 120 * time.Second
	DefaultWebListen          = "127.0.0.1:3000"
)

// Environment variable overrides
const (
	EnvVarAPIBaseURL  = "PORTAL_API_BASE_URL"
	EnvVarEnvironment = "PORTAL_ENV"
	EnvVarSessionFile = "PORTAL_SESSION_FILE"
	EnvVarDebug       = "PORTAL_DEBUG"
)

// Config represents the complete configuration file structure
type Config struct {
	APIBaseURL  string        `yaml:"api_base_url"`
	Environment string        `yaml:"environment"`
	Timeouts    TimeoutConfig `yaml:"timeouts"`
	Session     SessionConfig `yaml:"session"`
	Logging     LoggingConfig `yaml:"logging"`
	Web         WebConfig     `yaml:"web"`
}

// TimeoutConfig holds the two request profiles
type TimeoutConfig struct {
	Standard    time.Duration `yaml:"standard"`
	LongRunning time.Duration `yaml:"long_running"`
}

// SessionConfig locates the persisted credential
type SessionConfig struct {
	File    string `yaml:"file"`
	KeyFile string `yaml:"key_file"`
}

// LoggingConfig mirrors logging.Config in file form
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// WebConfig configures the web portal listener
type WebConfig struct {
	Listen string `yaml:"listen"`
}

// LoggerConfig converts the logging section for logging.InitGlobalLogger
func (c *Config) LoggerConfig(component string) logging.Config {
	return logging.Config{
		Level:      logging.ParseLevel(c.Logging.Level),
		Format:     c.Logging.Format,
		Output:     c.Logging.Output,
		Component:  component,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
	}
}

// IsProduction reports whether cookies must be transport-secured
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// Debug reports whether debug logging was requested through the environment
func Debug() bool {
	return strings.EqualFold(os.Getenv(EnvVarDebug), "true")
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("api_base_url cannot be empty")
	}

	parsed, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("invalid api_base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api_base_url must be an absolute http(s) URL")
	}
	if parsed.Host == "" {
		return fmt.Errorf("api_base_url must include a host")
	}

	switch strings.ToLower(c.Environment) {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("unsupported environment: %s", c.Environment)
	}

	if c.Timeouts.Standard <= 0 {
		return fmt.Errorf("timeouts.standard must be positive")
	}
	if c.Timeouts.LongRunning <= 0 {
		return fmt.Errorf("timeouts.long_running must be positive")
	}

	return nil
}

// Manager loads and persists the configuration file
type Manager struct {
	configPath   string
	cachedConfig *Config
	mutex        sync.Mutex
}

// NewManager creates a configuration manager; an empty path selects the
// OS-appropriate default location
func NewManager(configPath string) (*Manager, error) {
	if configPath == "" {
		path, err := defaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to determine configuration path: %w", err)
		}
		configPath = path
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create configuration directory: %w", err)
	}

	return &Manager{configPath: configPath}, nil
}

func defaultConfigPath() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, appDirName, "config.yaml"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", appDirName, "config.yaml"), nil
}

func defaultDataDir() string {
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return filepath.Join(xdgDataHome, appDirName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "share", appDirName)
	}
	return filepath.Join(os.TempDir(), appDirName)
}

// DefaultConfig returns the configuration written on first use
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		APIBaseURL:  DefaultAPIBaseURL,
		Environment: EnvDevelopment,
		Timeouts: TimeoutConfig{
			Standard:    DefaultStandardTimeout,
			LongRunning: DefaultLongRunningTimeout,
		},
		Session: SessionConfig{
			File:    filepath.Join(dataDir, "session.enc"),
			KeyFile: filepath.Join(dataDir, "security", "master.key"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     filepath.Join(dataDir, "logs", "portal.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Web: WebConfig{Listen: DefaultWebListen},
	}
}

// Load reads the configuration file (creating it when missing), applies
// environment overrides and validates the result
func (m *Manager) Load() (*Config, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.cachedConfig != nil {
		cfg := *m.cachedConfig
		return &cfg, nil
	}

	cfg, err := m.readOrCreate()
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", m.configPath, err)
	}

	m.cachedConfig = cfg
	out := *cfg
	return &out, nil
}

func (m *Manager) readOrCreate() (*Config, error) {
	data, err := os.ReadFile(m.configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		if err := m.write(cfg); err != nil {
			return nil, fmt.Errorf("failed to create default configuration: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}
	return &cfg, nil
}

// Save validates and persists cfg
func (m *Manager) Save(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.write(cfg); err != nil {
		return err
	}
	saved := *cfg
	m.cachedConfig = &saved
	return nil
}

func (m *Manager) write(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}

// GetConfigPath returns the path to the configuration file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// InvalidateCache forces a reload on next access
func (m *Manager) InvalidateCache() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.cachedConfig = nil
}

// applyDefaults fills fields an older or hand-written file left empty
func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = def.APIBaseURL
	}
	if cfg.Environment == "" {
		cfg.Environment = def.Environment
	}
	if cfg.Timeouts.Standard == 0 {
		cfg.Timeouts.Standard = def.Timeouts.Standard
	}
	if cfg.Timeouts.LongRunning == 0 {
		cfg.Timeouts.LongRunning = def.Timeouts.LongRunning
	}
	if cfg.Session.File == "" {
		cfg.Session.File = def.Session.File
	}
	if cfg.Session.KeyFile == "" {
		cfg.Session.KeyFile = def.Session.KeyFile
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = def.Logging.Output
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = def.Web.Listen
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvVarAPIBaseURL)); v != "" {
		cfg.APIBaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv(EnvVarEnvironment)); v != "" {
		cfg.Environment = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvVarSessionFile)); v != "" {
		cfg.Session.File = v
	}
	if Debug() {
		cfg.Logging.Level = "debug"
	}
}

// LoadDotEnv loads a .env file from dir into the process environment.
// A missing file is not an error; existing variables are not overwritten.
func LoadDotEnv(dir string) error {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}
