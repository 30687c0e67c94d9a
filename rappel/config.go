package rappel

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full rappel service configuration.
type Config struct {
	Listen      string `yaml:"listen"`
	StorageMode string `yaml:"storage_mode"` // file | memory
	DataDir     string `yaml:"data_dir"`
	DataFile    string `yaml:"data_file"`
	ObsDB       string `yaml:"obs_db"`
	LogLevel    string `yaml:"log_level"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:      ":8080",
		StorageMode: ModeFile,
		DataDir:     "./data",
		DataFile:    "todos.json",
		ObsDB:       "db/observability.db",
		LogLevel:    "info",
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig
// merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// FromEnv overlays environment variables on the config. TODO_* names match
// the public configuration surface; PORT, OBS_DB, and LOG_LEVEL follow the
// deployment conventions of the other services.
func (c *Config) FromEnv() {
	if v := strings.TrimSpace(os.Getenv("TODO_STORAGE_MODE")); v != "" {
		c.StorageMode = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("TODO_DATA_DIR")); v != "" {
		c.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("TODO_DATA_FILE")); v != "" {
		c.DataFile = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	if v := os.Getenv("OBS_DB"); v != "" {
		c.ObsDB = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	switch c.StorageMode {
	case ModeFile, ModeMemory:
	default:
		return fmt.Errorf("storage_mode must be %q or %q, got %q", ModeFile, ModeMemory, c.StorageMode)
	}
	if c.StorageMode == ModeFile && c.DataFile == "" {
		return fmt.Errorf("data_file is required in file mode")
	}
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	return nil
}

// StoreConfig projects the storage portion of the config.
func (c *Config) StoreConfig() StoreConfig {
	return StoreConfig{
		Mode:     c.StorageMode,
		DataDir:  c.DataDir,
		DataFile: c.DataFile,
	}
}
