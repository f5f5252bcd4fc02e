package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, "6379", cfg.Redis.Port)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://class.example.com")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, []string{"https://class.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
	assert.Equal(t, 3, cfg.Redis.DB)
}
