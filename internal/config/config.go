package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingDatabaseDSN = errors.New("DB_DSN is required")
	ErrMissingModel       = errors.New("OLLAMA_MODEL is required")
)

type Config struct {
	TenantID string

	Listen  ListenConfig
	Ollama  OllamaConfig
	Prompts PromptsConfig
	DB      DBConfig
	Redis   RedisConfig
	Rate    RateConfig
	HTTP    HTTPConfig
	Log     LogConfig
}

type ListenConfig struct {
	Addr        string
	HealthPath  string
	MetricsPath string
}

type OllamaConfig struct {
	BaseURL           string
	Model             string
	ContextWindow     int
	MaxResponseTokens int
}

type PromptsConfig struct {
	// ComponentsDir overrides the embedded default components when set.
	ComponentsDir     string
	CompactTriggerPct float64
}

type DBConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

// RedisConfig is optional; an empty Addr disables the rate limiter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateConfig struct {
	PerHour int64
}

type HTTPConfig struct {
	ClientTimeout time.Duration
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		TenantID: mustEnv("TENANT_ID", "default"),
		Listen: ListenConfig{
			Addr:        mustEnv("LISTEN_ADDR", ":8080"),
			HealthPath:  mustEnv("HEALTH_PATH", "/health"),
			MetricsPath: mustEnv("METRICS_PATH", "/metrics"),
		},
		Ollama: OllamaConfig{
			BaseURL:           mustEnv("OLLAMA_BASE_URL", "http://127.0.0.1:11434"),
			Model:             mustEnv("OLLAMA_MODEL", "llama3.2:3b"),
			ContextWindow:     mustIntMin("OLLAMA_CONTEXT_WINDOW", 4096, 256),
			MaxResponseTokens: mustIntMin("OLLAMA_MAX_RESPONSE_TOKENS", 512, 16),
		},
		Prompts: PromptsConfig{
			ComponentsDir:     mustEnv("PROMPT_COMPONENTS_DIR", ""),
			CompactTriggerPct: mustFloat("COMPACT_TRIGGER_PCT", 0.9),
		},
		DB: DBConfig{
			Driver:      strings.ToLower(mustEnv("DB_DRIVER", "sqlite")),
			DSN:         mustEnv("DB_DSN", "file:aigentd.db?_pragma=busy_timeout(5000)"),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     mustEnv("REDIS_ADDR", ""),
			Password: mustEnv("REDIS_PASSWORD", ""),
			DB:       mustInt("REDIS_DB", 0),
		},
		Rate: RateConfig{
			PerHour: int64(mustInt("RATE_LIMIT_PER_HOUR", 120)),
		},
		HTTP: HTTPConfig{
			ClientTimeout: mustDuration("HTTP_TIMEOUT", 90*time.Second),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	if cfg.DB.DSN == "" {
		return nil, ErrMissingDatabaseDSN
	}
	if cfg.Ollama.Model == "" {
		return nil, ErrMissingModel
	}
	if cfg.Prompts.CompactTriggerPct <= 0 || cfg.Prompts.CompactTriggerPct > 1 {
		return nil, fmt.Errorf("COMPACT_TRIGGER_PCT must be in (0,1], got %v", cfg.Prompts.CompactTriggerPct)
	}

	return cfg, nil
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustIntMin(key string, def, min int) int {
	n := mustInt(key, def)
	if n < min {
		return def
	}
	return n
}

func mustFloat(key string, def float64) float64 {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
