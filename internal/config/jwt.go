package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// JWTConfig holds the signing settings for API tokens.
type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

// NewJWTConfig builds the token settings from the loaded config plus
// JWT_EXPIRATION_HOURS (default 24).
func NewJWTConfig(cfg Config) (*JWTConfig, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required but not set")
	}

	hours := 24
	if v := os.Getenv("JWT_EXPIRATION_HOURS"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_EXPIRATION_HOURS: %v", err)
		}
		hours = parsed
	}
	if hours < 1 {
		return nil, fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", hours)
	}

	return &JWTConfig{Secret: cfg.JWTSecret, TTL: time.Duration(hours) * time.Hour}, nil
}
