package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://backend:8000/")
	cfg := FromEnv()

	assert.Equal(t, "http://backend:8000", cfg.BackendURL)
	assert.Equal(t, 5*time.Second, cfg.HealthTimeout)
	assert.Equal(t, 30*time.Second, cfg.GenerateTimeout)
	assert.Equal(t, 60*time.Second, cfg.MediaGenerateTimeout)
	assert.Equal(t, "music_data.json", cfg.MusicDataFile)
	assert.Equal(t, "local", cfg.MediaBackend)
	assert.False(t, cfg.AllowPlaceholderToken)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("BACKEND_GENERATE_TIMEOUT", "45")
	t.Setenv("HEALTH_CACHE_TTL", "1500ms")
	t.Setenv("AUTH_ALLOW_PLACEHOLDER_TOKEN", "true")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MEDIA_BACKEND", "MinIO")

	cfg := FromEnv()

	assert.Equal(t, 45*time.Second, cfg.GenerateTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.HealthCacheTTL)
	assert.True(t, cfg.AllowPlaceholderToken)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, "minio", cfg.MediaBackend)
}

func TestFromEnv_BadValuesFallBack(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	t.Setenv("COOKIE_SECURE", "maybe")
	t.Setenv("BACKEND_HEALTH_TIMEOUT", "soon")

	cfg := FromEnv()

	assert.Equal(t, 0, cfg.RedisDB)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, 5*time.Second, cfg.HealthTimeout)
}

func TestOAuthConfigured(t *testing.T) {
	cfg := &Config{GoogleClientID: "id"}
	assert.False(t, cfg.OAuthConfigured())
	cfg.GoogleClientSecret = "secret"
	assert.True(t, cfg.OAuthConfigured())
}
