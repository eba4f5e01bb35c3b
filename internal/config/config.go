package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/nestegg/internal/types"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Persist    PersistConfig    `yaml:"persist"`
	Backup     BackupConfig     `yaml:"backup"`
	Auth       AuthConfig       `yaml:"auth"`
	Log        LogConfig        `yaml:"log"`
	Categories []types.Category `yaml:"categories"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects where the goal envelope is persisted.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"-"` // env-only, may carry credentials
	Key     string `yaml:"key"`
}

// PersistConfig tunes the background writer.
type PersistConfig struct {
	Debounce    Duration `yaml:"debounce"`
	Timeout     Duration `yaml:"timeout"`
	MaxAttempts int      `yaml:"max_attempts"`
	RetryDelay  Duration `yaml:"retry_delay"`
}

// BackupConfig contains off-site backup settings. An empty bucket disables
// uploads; an empty schedule disables the scheduled backup.
type BackupConfig struct {
	Schedule  string `yaml:"schedule"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	UseSSL    *bool  `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"-"` // env-only
	SecretKey string `yaml:"-"` // env-only
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → .env → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := expandHome(getEnv("NESTEGG_CONFIG_PATH", "~/.nestegg/config.yaml"))

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	return finish(cfg)
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and the --config flag.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := loadDotEnv(getEnv("NESTEGG_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	cfg.Storage.Path = expandHome(cfg.Storage.Path)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Storage: StorageConfig{
			Backend: "file",
			Path:    "~/.nestegg/goals.json",
			Key:     "goals-storage",
		},
		Persist: PersistConfig{
			Debounce:    Duration(250 * time.Millisecond),
			Timeout:     Duration(5 * time.Second),
			MaxAttempts: 3,
			RetryDelay:  Duration(500 * time.Millisecond),
		},
		Backup: BackupConfig{
			Prefix: "nestegg",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// loadDotEnv populates unset environment variables from a dotenv file.
// Variables already present in the environment win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading env file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("NESTEGG_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("NESTEGG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	envDuration("NESTEGG_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("NESTEGG_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("NESTEGG_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Storage
	if v := os.Getenv("NESTEGG_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("NESTEGG_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("NESTEGG_STORAGE_KEY"); v != "" {
		cfg.Storage.Key = v
	}
	// DATABASE_URL is the common convention for postgres
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("NESTEGG_DATABASE_URL"); v != "" {
		cfg.Storage.DSN = v
	}

	// Persist
	envDuration("NESTEGG_PERSIST_DEBOUNCE", &cfg.Persist.Debounce)
	envDuration("NESTEGG_PERSIST_TIMEOUT", &cfg.Persist.Timeout)
	envDuration("NESTEGG_PERSIST_RETRY_DELAY", &cfg.Persist.RetryDelay)
	if v := os.Getenv("NESTEGG_PERSIST_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Persist.MaxAttempts = n
		}
	}

	// Backup
	if v := os.Getenv("NESTEGG_BACKUP_SCHEDULE"); v != "" {
		cfg.Backup.Schedule = v
	}
	if v := os.Getenv("NESTEGG_BACKUP_BUCKET"); v != "" {
		cfg.Backup.Bucket = v
	}
	if v := os.Getenv("NESTEGG_BACKUP_PREFIX"); v != "" {
		cfg.Backup.Prefix = v
	}
	if v := os.Getenv("NESTEGG_S3_ENDPOINT"); v != "" {
		cfg.Backup.Endpoint = v
	}
	if v := os.Getenv("NESTEGG_S3_REGION"); v != "" {
		cfg.Backup.Region = v
	}
	if v := os.Getenv("NESTEGG_S3_ACCESS_KEY"); v != "" {
		cfg.Backup.AccessKey = v
	}
	if v := os.Getenv("NESTEGG_S3_SECRET_KEY"); v != "" {
		cfg.Backup.SecretKey = v
	}
	if v := os.Getenv("NESTEGG_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.Backup.UseSSL = &useSSL
	}

	// Auth
	if v := os.Getenv("NESTEGG_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Log
	if v := os.Getenv("NESTEGG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NESTEGG_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// validate checks that the selected backend has what it needs.
func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "file", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want memory, file, sqlite or postgres)", c.Storage.Backend)
	}

	if c.Persist.MaxAttempts < 1 {
		return errors.New("persist.max_attempts must be at least 1")
	}
	if c.Persist.Debounce < 0 || c.Persist.Timeout < 0 || c.Persist.RetryDelay < 0 {
		return errors.New("persist durations must not be negative")
	}
	if c.Backup.Bucket != "" && c.Backup.Endpoint == "" {
		return errors.New("backup.endpoint is required when backup.bucket is set")
	}
	for i, cat := range c.Categories {
		if strings.TrimSpace(cat.ID) == "" {
			return fmt.Errorf("categories[%d]: id is required", i)
		}
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
