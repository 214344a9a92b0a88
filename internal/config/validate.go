package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secrets
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// At least one provider needs a key, and every configured provider must be known
	hasProvider := false
	for _, p := range c.LLM.ProviderOrder {
		switch p {
		case "gemini":
			if c.LLM.GeminiAPIKey != "" {
				hasProvider = true
			}
		case "openai":
			if c.LLM.OpenAIAPIKey != "" {
				hasProvider = true
			}
		default:
			errs = append(errs, fmt.Sprintf("unknown provider %q in LLM_PROVIDER_ORDER", p))
		}
	}
	if !hasProvider {
		errs = append(errs, "no usable provider: set LLM_GEMINI_API_KEY and/or LLM_OPENAI_API_KEY")
	}

	// Admission limits must stay positive; zero values were already defaulted,
	// so only explicit negatives land here.
	if c.Limits.BucketCapacity < 1 {
		errs = append(errs, "LIMITS_BUCKET_CAPACITY must be at least 1")
	}
	if c.Limits.RefillRate <= 0 {
		errs = append(errs, "LIMITS_REFILL_RATE must be positive")
	}
	if c.Limits.DailyQuota < 1 {
		errs = append(errs, "LIMITS_DAILY_QUOTA must be at least 1")
	}
	if c.LLM.MaxResponseTokens < 0 || c.LLM.SafetyMargin < 0 {
		errs = append(errs, "LLM token reservations must not be negative")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
