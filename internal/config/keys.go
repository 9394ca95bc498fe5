package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "MOODTRACK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "MOODTRACK_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MOODTRACK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "models.dir", typ: kString, env: "MOODTRACK_MODELS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Models.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.ModelsDir() },
	},
	{
		key: "log.level", typ: kString, env: "MOODTRACK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "training.seed", typ: kInt, env: "MOODTRACK_TRAINING_SEED",
		apply:   func(cfg *Config, v any) { cfg.Training.Seed = v.(int) },
		extract: func(cfg Config) any { return cfg.Training.Seed },
	},
	{
		key: "training.trees", typ: kInt, env: "MOODTRACK_TRAINING_TREES",
		apply:   func(cfg *Config, v any) { cfg.Training.Trees = v.(int) },
		extract: func(cfg Config) any { return cfg.Training.Trees },
	},
	{
		key: "training.max_depth", typ: kInt, env: "MOODTRACK_TRAINING_MAX_DEPTH",
		apply:   func(cfg *Config, v any) { cfg.Training.MaxDepth = v.(int) },
		extract: func(cfg Config) any { return cfg.Training.MaxDepth },
	},
	{
		key: "training.timeout", typ: kString, env: "MOODTRACK_TRAINING_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Training.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Training.Timeout },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
