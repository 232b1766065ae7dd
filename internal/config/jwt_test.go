package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTConfig_Defaults(t *testing.T) {
	jc, err := NewJWTConfig(Config{JWTSecret: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "s3cret", jc.Secret)
	assert.Equal(t, 24*time.Hour, jc.TTL)
}

func TestNewJWTConfig_MissingSecret(t *testing.T) {
	_, err := NewJWTConfig(Config{})
	require.Error(t, err)
}

func TestNewJWTConfig_ExpirationOverride(t *testing.T) {
	t.Setenv("JWT_EXPIRATION_HOURS", "2")
	jc, err := NewJWTConfig(Config{JWTSecret: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, jc.TTL)
}

func TestNewJWTConfig_InvalidExpiration(t *testing.T) {
	t.Setenv("JWT_EXPIRATION_HOURS", "soon")
	_, err := NewJWTConfig(Config{JWTSecret: "s3cret"})
	require.Error(t, err)

	t.Setenv("JWT_EXPIRATION_HOURS", "0")
	_, err = NewJWTConfig(Config{JWTSecret: "s3cret"})
	require.Error(t, err)
}
