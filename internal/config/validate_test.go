package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "codementor",
			Password: "secret", Name: "codementor", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		NATS:  NATSConfig{URL: "nats://localhost:4222"},
		JWT: JWTConfig{
			AccessSecret:  "access-secret-that-is-at-least-32-chars!",
			RefreshSecret: "refresh-secret-that-is-at-least-32-chr!",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
		},
		LLM: LLMConfig{
			ProviderOrder:      []string{"gemini", "openai"},
			GeminiAPIKey:       "test-key",
			GeminiModel:        "gemini-2.5-flash",
			GeminiContextLimit: 1_048_576,
			OpenAIModel:        "gpt-4o-mini",
			OpenAIContextLimit: 128_000,
			Temperature:        0.2,
			MaxResponseTokens:  2048,
			SafetyMargin:       512,
			RetryBackoff:       500 * time.Millisecond,
		},
		Limits: LimitsConfig{
			BucketCapacity:        10_000,
			RefillRate:            1.0,
			DailyQuota:            125,
			MaxCodeLines:          150,
			HistoryMaxMessages:    80,
			HistoryRetainedBudget: 32_000,
			AuthRateLimitMax:      10,
			AuthRateLimitWindow:   60,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_JWTAccessSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_ACCESS_SECRET") {
		t.Fatalf("expected JWT_ACCESS_SECRET error, got: %v", err)
	}
}

func TestValidate_JWTSecretsMustDiffer(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "the-same-secret-that-is-at-least-32-chars!"
	cfg.JWT.RefreshSecret = "the-same-secret-that-is-at-least-32-chars!"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected 'must differ' error, got: %v", err)
	}
}

func TestValidate_NoUsableProvider(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.GeminiAPIKey = ""
	cfg.LLM.OpenAIAPIKey = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "no usable provider") {
		t.Fatalf("expected no usable provider error, got: %v", err)
	}
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.ProviderOrder = []string{"gemini", "llamacpp"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Fatalf("expected unknown provider error, got: %v", err)
	}
}

func TestValidate_NegativeRefillRate(t *testing.T) {
	cfg := validConfig()
	cfg.Limits.RefillRate = -1
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "LIMITS_REFILL_RATE") {
		t.Fatalf("expected LIMITS_REFILL_RATE error, got: %v", err)
	}
}

func TestValidate_DBPasswordRequired(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}
