package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "card-templates", cfg.TemplateBucket)
	assert.Equal(t, "card-thumbnails", cfg.ThumbnailBucket)
	assert.Equal(t, 3600, cfg.UploadURLTTLSeconds)
	assert.Equal(t, "card_templates", cfg.CatalogTable)
	assert.Equal(t, int64(256*1024*1024), cfg.CacheQuotaBytes)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
	t.Setenv("CACHE_QUOTA_BYTES", "1048576")
	t.Setenv("UPLOAD_URL_TTL_SECONDS", "120")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1048576), cfg.CacheQuotaBytes)
	assert.Equal(t, 120, cfg.UploadURLTTLSeconds)
}

func TestLoadRequiresSupabaseSettings(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_SERVICE_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
	t.Setenv("CACHE_QUOTA_BYTES", "not-a-number")

	_, err := Load()
	require.Error(t, err)
}
