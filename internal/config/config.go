package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Redis   RedisConfig
	Agent   AgentConfig
	Worker  WorkerConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int `validate:"min=1,max=65535"`
}

type StorageConfig struct {
	DataDir          string `validate:"required"`
	GuestbookBackend string `validate:"oneof=sqlite redis"`
}

type RedisConfig struct {
	Addr string `validate:"required_if=Enabled true"`
	DB   int    `validate:"min=0"`

	// Enabled mirrors Storage.GuestbookBackend == "redis" during validation.
	Enabled bool
}

type AgentConfig struct {
	Provider string        `validate:"oneof=ollama openai"`
	BaseURL  string        `validate:"omitempty,url"`
	Model    string        `validate:"required"`
	Timeout  time.Duration `validate:"gt=0"`
	APIKey   string
}

type WorkerConfig struct {
	PollInterval  time.Duration `validate:"gt=0"`
	StaleAfter    time.Duration `validate:"gt=0"`
	SweepInterval time.Duration `validate:"gt=0"`
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Storage: StorageConfig{
			DataDir:          defaultDataDir(),
			GuestbookBackend: "sqlite",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Agent: AgentConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "llama3.1",
			Timeout:  2 * time.Minute,
		},
		Worker: WorkerConfig{
			PollInterval:  500 * time.Millisecond,
			StaleAfter:    10 * time.Minute,
			SweepInterval: time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from the YAML file at ConfigFilePath and
// environment variables. Environment variables (DOOMCLOCK_*) override file
// values; secrets are read from the environment only.
func Load() (Config, error) {
	b, err := newFileBackend(ConfigFilePath())
	if err != nil {
		return Config{}, err
	}
	return loadWith(b)
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges and cross-field requirements.
func (c Config) Validate() error {
	c.Redis.Enabled = c.Storage.GuestbookBackend == "redis"
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Agent.Provider == "openai" && c.Agent.APIKey == "" {
		return errors.New("missing required config: agent API key. Set it via environment variable DOOMCLOCK_AGENT_API_KEY")
	}
	return nil
}
