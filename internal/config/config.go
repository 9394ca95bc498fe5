package config

import (
	"fmt"
	"path/filepath"
	"time"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Models   ModelsConfig
	Log      LogConfig
	Training TrainingConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type ModelsConfig struct {
	Dir string // empty means <data_dir>/models
}

type LogConfig struct {
	Level string
}

type TrainingConfig struct {
	Seed     int
	Trees    int
	MaxDepth int
	Timeout  string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Training: TrainingConfig{
			Seed:    42,
			Trees:   200,
			Timeout: "2m",
		},
	}
}

// ModelsDir returns the directory holding trained artifacts.
func (c Config) ModelsDir() string {
	if c.Models.Dir != "" {
		return c.Models.Dir
	}
	return filepath.Join(c.Storage.DataDir, "models")
}

// TrainingTimeout returns training.timeout as a duration.
func (c Config) TrainingTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Training.Timeout)
	return d
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/moodtrack/config.json and then applies environment
// variables (MOODTRACK_*), which take precedence. Secrets are read from the
// environment only.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", cfg.Server.Port)
	}
	if d, err := time.ParseDuration(cfg.Training.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid config: training.timeout %q is not a positive duration", cfg.Training.Timeout)
	}
	if cfg.Training.Trees < 1 {
		return fmt.Errorf("invalid config: training.trees must be at least 1")
	}
	if cfg.Training.MaxDepth < 0 {
		return fmt.Errorf("invalid config: training.max_depth must not be negative")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid config: log.level %q (want debug, info, warn or error)", cfg.Log.Level)
	}
	return nil
}
