package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all newswire configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	LLM        LLMConfig        `koanf:"llm"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Feed       FeedConfig       `koanf:"feed"`
	Profile    ProfileConfig    `koanf:"profile"`
	Notify     NotifyConfig     `koanf:"notify"`
	Schedule   ScheduleConfig   `koanf:"schedule"`
	Log        LogConfig        `koanf:"log"`
}

type ServerConfig struct {
	Bind           string   `koanf:"bind"`
	Port           int      `koanf:"port"`
	WriteRate      int      `koanf:"write_rate"` // write requests per minute per IP, 0 disables
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type LLMConfig struct {
	Provider     string        `koanf:"provider"` // "anthropic", "ollama", "gemini", "none"
	Model        string        `koanf:"model"`
	OllamaURL    string        `koanf:"ollama_url"`
	OllamaModel  string        `koanf:"ollama_model"`
	AnthropicKey string        `koanf:"anthropic_key"`
	GeminiKey    string        `koanf:"gemini_key"`
	GeminiModel  string        `koanf:"gemini_model"`
	Timeout      time.Duration `koanf:"timeout"`
}

type ClassifierConfig struct {
	TablePath string `koanf:"table_path"` // optional YAML category table
	UseBody   bool   `koanf:"use_body"`
}

type FeedConfig struct {
	WindowHours    int     `koanf:"window_hours"`
	PoolSize       int     `koanf:"pool_size"`
	PersonalWeight float64 `koanf:"personal_weight"`
	DefaultLimit   int     `koanf:"default_limit"`
	MaxLimit       int     `koanf:"max_limit"`
	RelatedLimit   int     `koanf:"related_limit"`
}

type ProfileConfig struct {
	LookbackDays int     `koanf:"lookback_days"`
	DecayRate    float64 `koanf:"decay_rate"`
	Parallelism  int     `koanf:"parallelism"`
}

type NotifyConfig struct {
	Enabled       bool    `koanf:"enabled"`
	BatchSize     int     `koanf:"batch_size"`
	BatchesPerSec float64 `koanf:"batches_per_second"` // 0 disables pacing
}

type ScheduleConfig struct {
	Enabled        bool   `koanf:"enabled"`
	ProfileRebuild string `koanf:"profile_rebuild"`
	Backfill       string `koanf:"backfill"`
	Timezone       string `koanf:"timezone"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:      "127.0.0.1",
			Port:      37780,
			WriteRate: 120,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		LLM: LLMConfig{
			Provider:    "none",
			Model:       "claude-haiku-4-5",
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "llama3.2",
			GeminiModel: "gemini-2.0-flash",
			Timeout:     20 * time.Second,
		},
		Feed: FeedConfig{
			WindowHours:    72,
			PoolSize:       300,
			PersonalWeight: 0.7,
			DefaultLimit:   20,
			MaxLimit:       100,
			RelatedLimit:   3,
		},
		Profile: ProfileConfig{
			LookbackDays: 30,
			DecayRate:    0.05,
			Parallelism:  4,
		},
		Notify: NotifyConfig{
			Enabled:   true,
			BatchSize: 100,
		},
		Schedule: ScheduleConfig{
			Enabled:        true,
			ProfileRebuild: "@every 1h",
			Backfill:       "@daily",
			Timezone:       "Asia/Kolkata",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.LLM.Provider {
	case "", "none", "anthropic", "ollama", "gemini":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q not supported", c.LLM.Provider))
	}
	if c.Feed.WindowHours <= 0 {
		errs = append(errs, errors.New("feed.window_hours must be positive"))
	}
	if c.Feed.PoolSize <= 0 {
		errs = append(errs, errors.New("feed.pool_size must be positive"))
	}
	if c.Feed.PersonalWeight < 0 || c.Feed.PersonalWeight > 1 {
		errs = append(errs, fmt.Errorf("feed.personal_weight %.2f not in [0,1]", c.Feed.PersonalWeight))
	}
	if c.Profile.LookbackDays <= 0 {
		errs = append(errs, errors.New("profile.lookback_days must be positive"))
	}
	if c.Profile.DecayRate < 0 {
		errs = append(errs, errors.New("profile.decay_rate must not be negative"))
	}
	if c.Notify.BatchSize <= 0 {
		errs = append(errs, errors.New("notify.batch_size must be positive"))
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q not supported", c.Log.Format))
	}
	return errors.Join(errs...)
}
