package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
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
		key: "server.port", typ: kInt, env: "DOOMCLOCK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DOOMCLOCK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.guestbook_backend", typ: kString, env: "DOOMCLOCK_STORAGE_GUESTBOOK_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.GuestbookBackend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.GuestbookBackend },
	},
	{
		key: "redis.addr", typ: kString, env: "DOOMCLOCK_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Redis.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.Addr },
	},
	{
		key: "redis.db", typ: kInt, env: "DOOMCLOCK_REDIS_DB",
		apply:   func(cfg *Config, v any) { cfg.Redis.DB = v.(int) },
		extract: func(cfg Config) any { return cfg.Redis.DB },
	},
	{
		key: "agent.provider", typ: kString, env: "DOOMCLOCK_AGENT_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Agent.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Agent.Provider },
	},
	{
		key: "agent.base_url", typ: kString, env: "DOOMCLOCK_AGENT_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Agent.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Agent.BaseURL },
	},
	{
		key: "agent.model", typ: kString, env: "DOOMCLOCK_AGENT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Agent.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Agent.Model },
	},
	{
		key: "agent.timeout", typ: kDuration, env: "DOOMCLOCK_AGENT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Agent.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Agent.Timeout },
	},
	{
		key: "agent.api_key", typ: kString, env: "DOOMCLOCK_AGENT_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Agent.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Agent.APIKey },
	},
	{
		key: "worker.poll_interval", typ: kDuration, env: "DOOMCLOCK_WORKER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
	},
	{
		key: "worker.stale_after", typ: kDuration, env: "DOOMCLOCK_WORKER_STALE_AFTER",
		apply:   func(cfg *Config, v any) { cfg.Worker.StaleAfter = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Worker.StaleAfter },
	},
	{
		key: "worker.sweep_interval", typ: kDuration, env: "DOOMCLOCK_WORKER_SWEEP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.SweepInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Worker.SweepInterval },
	},
	{
		key: "log.level", typ: kString, env: "DOOMCLOCK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "DOOMCLOCK_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
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
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return fmt.Errorf("invalid duration for %s: %w", s.key, err)
				}
				s.apply(cfg, d)
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
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
