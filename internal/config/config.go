package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

// #region config

// Config holds the orchestrator's runtime settings. Values resolve in
// order: defaults, then the optional YAML file, then environment variables.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	StatusPath string `yaml:"status_path"`
	PromptDir  string `yaml:"prompt_dir"`
	ProfileDir string `yaml:"profile_dir"`

	Model          string            `yaml:"model"`
	ModelOverrides map[string]string `yaml:"model_overrides"`

	GrowthThreshold int           `yaml:"growth_threshold"`
	Cooldown        time.Duration `yaml:"cooldown"`
	IdlePoll        time.Duration `yaml:"idle_poll"`
	OracleTimeout   time.Duration `yaml:"oracle_timeout"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8765",
		DBPath:          "./intake.db",
		StatusPath:      "./status_update.json",
		Model:           "gpt-4o-mini",
		GrowthThreshold: 20,
		Cooldown:        5 * time.Second,
		IdlePoll:        1 * time.Second,
		OracleTimeout:   60 * time.Second,
	}
}

// Load builds the effective config. path may be empty; a missing file at a
// non-empty path is an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = envOr("INTAKE_LISTEN_ADDR", c.ListenAddr)
	c.DBPath = envOr("INTAKE_DB_PATH", c.DBPath)
	c.StatusPath = envOr("INTAKE_STATUS_PATH", c.StatusPath)
	c.PromptDir = envOr("INTAKE_PROMPT_DIR", c.PromptDir)
	c.ProfileDir = envOr("INTAKE_PROFILE_DIR", c.ProfileDir)
	c.Model = envOr("INTAKE_MODEL", c.Model)
	if v := os.Getenv("INTAKE_GROWTH_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GrowthThreshold = n
		}
	}
	if v := os.Getenv("INTAKE_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cooldown = d
		}
	}
	if v := os.Getenv("INTAKE_ORACLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.OracleTimeout = d
		}
	}
}

func (c *Config) validate() error {
	if c.GrowthThreshold <= 0 {
		return fmt.Errorf("growth_threshold must be positive, got %d", c.GrowthThreshold)
	}
	if c.Cooldown <= 0 || c.IdlePoll <= 0 || c.OracleTimeout <= 0 {
		return fmt.Errorf("cooldown, idle_poll, and oracle_timeout must be positive")
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	return nil
}

// #endregion

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion
