package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	NATS   NATSConfig
	JWT    JWTConfig
	LLM    LLMConfig
	Limits LimitsConfig
	Log    LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// LLMConfig configures the upstream model providers, tried in the order
// given by ProviderOrder.
type LLMConfig struct {
	ProviderOrder []string

	GeminiAPIKey       string
	GeminiModel        string
	GeminiContextLimit int

	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIContextLimit int

	Temperature       float32
	MaxResponseTokens int           // reserved out of each provider's context budget
	SafetyMargin      int           // extra tokens held back against estimator drift
	RetryBackoff      time.Duration // pause before falling over to the next provider
}

// LimitsConfig configures per-user admission control.
type LimitsConfig struct {
	BucketCapacity float64 // token-bucket size
	RefillRate     float64 // tokens restored per second
	DailyQuota     int     // requests per UTC calendar day
	MaxCodeLines   int     // code snippets above this are rejected outright

	HistoryMaxMessages    int // retained history above this triggers a re-trim
	HistoryRetainedBudget int // token budget the re-trim shrinks history to

	AuthRateLimitMax    int // login/register attempts per window per IP
	AuthRateLimitWindow int // window in seconds
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		LLM: LLMConfig{
			GeminiAPIKey:       k.String("llm.gemini.api.key"),
			GeminiModel:        k.String("llm.gemini.model"),
			GeminiContextLimit: k.Int("llm.gemini.context.limit"),
			OpenAIAPIKey:       k.String("llm.openai.api.key"),
			OpenAIModel:        k.String("llm.openai.model"),
			OpenAIContextLimit: k.Int("llm.openai.context.limit"),
			Temperature:        float32(k.Float64("llm.temperature")),
			MaxResponseTokens:  k.Int("llm.max.response.tokens"),
			SafetyMargin:       k.Int("llm.safety.margin"),
		},
		Limits: LimitsConfig{
			BucketCapacity:        k.Float64("limits.bucket.capacity"),
			RefillRate:            k.Float64("limits.refill.rate"),
			DailyQuota:            k.Int("limits.daily.quota"),
			MaxCodeLines:          k.Int("limits.max.code.lines"),
			HistoryMaxMessages:    k.Int("limits.history.max.messages"),
			HistoryRetainedBudget: k.Int("limits.history.retained.budget"),
			AuthRateLimitMax:      k.Int("limits.auth.ratelimit.max"),
			AuthRateLimitWindow:   k.Int("limits.auth.ratelimit.window"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	if order := k.String("llm.provider.order"); order != "" {
		for _, p := range strings.Split(order, ",") {
			cfg.LLM.ProviderOrder = append(cfg.LLM.ProviderOrder, strings.TrimSpace(p))
		}
	}

	applyDefaults(cfg)

	// Parse durations
	accessExpStr := k.String("jwt.access.expiry")
	if accessExpStr == "" {
		accessExpStr = "15m"
	}
	cfg.JWT.AccessExpiry, err = time.ParseDuration(accessExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt access expiry: %w", err)
	}

	refreshExpStr := k.String("jwt.refresh.expiry")
	if refreshExpStr == "" {
		refreshExpStr = "168h"
	}
	cfg.JWT.RefreshExpiry, err = time.ParseDuration(refreshExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt refresh expiry: %w", err)
	}

	backoffStr := k.String("llm.retry.backoff")
	if backoffStr == "" {
		backoffStr = "500ms"
	}
	cfg.LLM.RetryBackoff, err = time.ParseDuration(backoffStr)
	if err != nil {
		return nil, fmt.Errorf("parsing llm retry backoff: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "codementor"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "codementor"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if len(cfg.LLM.ProviderOrder) == 0 {
		cfg.LLM.ProviderOrder = []string{"gemini", "openai"}
	}
	if cfg.LLM.GeminiModel == "" {
		cfg.LLM.GeminiModel = "gemini-2.5-flash"
	}
	if cfg.LLM.GeminiContextLimit == 0 {
		cfg.LLM.GeminiContextLimit = 1_048_576
	}
	if cfg.LLM.OpenAIModel == "" {
		cfg.LLM.OpenAIModel = "gpt-4o-mini"
	}
	if cfg.LLM.OpenAIContextLimit == 0 {
		cfg.LLM.OpenAIContextLimit = 128_000
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.MaxResponseTokens == 0 {
		cfg.LLM.MaxResponseTokens = 2048
	}
	if cfg.LLM.SafetyMargin == 0 {
		cfg.LLM.SafetyMargin = 512
	}
	if cfg.Limits.BucketCapacity == 0 {
		cfg.Limits.BucketCapacity = 10_000
	}
	if cfg.Limits.RefillRate == 0 {
		cfg.Limits.RefillRate = 1.0
	}
	if cfg.Limits.DailyQuota == 0 {
		cfg.Limits.DailyQuota = 125
	}
	if cfg.Limits.MaxCodeLines == 0 {
		cfg.Limits.MaxCodeLines = 150
	}
	if cfg.Limits.HistoryMaxMessages == 0 {
		cfg.Limits.HistoryMaxMessages = 80
	}
	if cfg.Limits.HistoryRetainedBudget == 0 {
		cfg.Limits.HistoryRetainedBudget = 32_000
	}
	if cfg.Limits.AuthRateLimitMax == 0 {
		cfg.Limits.AuthRateLimitMax = 10
	}
	if cfg.Limits.AuthRateLimitWindow == 0 {
		cfg.Limits.AuthRateLimitWindow = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
