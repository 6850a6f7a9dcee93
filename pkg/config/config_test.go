package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 30*time.Second, cfg.Academy.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Imports.SessionTTL)
	assert.Equal(t, int64(5*1024*1024), cfg.Imports.MaxFileSizeBytes)
	assert.Equal(t, 24*time.Hour, cfg.Exports.SignedURLTTL)
	assert.Equal(t, 720*time.Hour, cfg.Imports.RunRetention)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("ACADEMY_API_BASE_URL", "https://academy.example.com/api/")
	v.Set("ACADEMY_API_TIMEOUT", "not-a-duration")
	v.Set("IMPORT_MAX_FILE_SIZE", -1)
	v.Set("IMPORT_MAX_PHOTOS", -5)
	v.Set("ALLOWED_ORIGINS", " https://a.example.com , ,https://b.example.com")

	cfg := fromViper(v)

	assert.Equal(t, "https://academy.example.com/api", cfg.Academy.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Academy.Timeout)
	assert.Equal(t, int64(5*1024*1024), cfg.Imports.MaxFileSizeBytes)
	assert.Equal(t, 0, cfg.Imports.MaxPhotos)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
}
