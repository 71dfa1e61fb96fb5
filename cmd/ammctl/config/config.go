package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the YAML file. A .env file in the working directory
// is loaded first when present.
const (
	EnvLogLevel    = "AMMCTL_LOG_LEVEL"
	EnvLogFile     = "AMMCTL_LOG_FILE"
	EnvStorePath   = "AMMCTL_STORE_PATH"
	EnvStoreKey    = "AMMCTL_STORE_KEY"
	EnvScenario    = "AMMCTL_SCENARIO"
	EnvMetricsFile = "AMMCTL_METRICS_FILE"
	EnvFailOnDiff  = "AMMCTL_FAIL_ON_UNEXPECTED"
)

// Config is the ammctl configuration.
type Config struct {
	Log         LogConfig   `yaml:"log"`
	Store       StoreConfig `yaml:"store"`
	Scenario    string      `yaml:"scenario"`
	MetricsFile string      `yaml:"metricsFile"` // Prometheus text exposition written on exit.
	// FailOnUnexpected makes ammctl exit non-zero when a step's outcome differs from its expectation.
	FailOnUnexpected bool `yaml:"failOnUnexpected"`
}

// LogConfig controls the slog handler. An empty File logs to stderr.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json or text
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// StoreConfig selects the pool journal. With neither Path nor InMemory set, state is not persisted.
type StoreConfig struct {
	Path          string `yaml:"path"`
	InMemory      bool   `yaml:"inMemory"`
	EncryptionKey string `yaml:"encryptionKey"` // hex, 16/24/32 bytes
}

// Enabled reports whether a store should be opened.
func (s StoreConfig) Enabled() bool {
	return s.Path != "" || s.InMemory
}

// Key decodes EncryptionKey.
func (s StoreConfig) Key() []byte {
	if s.EncryptionKey == "" {
		return nil
	}
	return common.FromHex(s.EncryptionKey)
}

// Default returns the configuration used for fields the file leaves empty.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadConfig reads the YAML file at path, then applies .env and environment overrides, then
// overrides (typically command-line flags). A missing file is an error; an empty path skips the file.
func LoadConfig(path string, overrides ...func(*Config)) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	for env, dst := range map[string]*string{
		EnvLogLevel:    &c.Log.Level,
		EnvLogFile:     &c.Log.File,
		EnvStorePath:   &c.Store.Path,
		EnvStoreKey:    &c.Store.EncryptionKey,
		EnvScenario:    &c.Scenario,
		EnvMetricsFile: &c.MetricsFile,
	} {
		if v := strings.TrimSpace(getenv(env)); v != "" {
			*dst = v
		}
	}
	if v := strings.TrimSpace(getenv(EnvFailOnDiff)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvFailOnDiff, err)
		}
		c.FailOnUnexpected = b
	}
	return nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.Store.Path != "" && c.Store.InMemory {
		return errors.New("config: store.path and store.inMemory are mutually exclusive")
	}
	if c.Store.EncryptionKey != "" {
		switch len(c.Store.Key()) {
		case 16, 24, 32:
		default:
			return errors.New("config: store.encryptionKey must be 16, 24 or 32 hex-encoded bytes")
		}
	}
	if c.Scenario == "" {
		return errors.New("config: scenario cannot be empty")
	}
	return nil
}
