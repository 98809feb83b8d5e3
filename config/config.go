package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration for the gateway, loaded from
// environment variables.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	SupabaseURL        string `env:"SUPABASE_URL,required,notEmpty"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY,required,notEmpty"`

	// Storage buckets for template documents and their thumbnails.
	TemplateBucket  string `env:"TEMPLATE_BUCKET" envDefault:"card-templates"`
	ThumbnailBucket string `env:"THUMBNAIL_BUCKET" envDefault:"card-thumbnails"`

	// UploadURLTTLSeconds is the time box on issued upload/download URLs.
	UploadURLTTLSeconds int `env:"UPLOAD_URL_TTL_SECONDS" envDefault:"3600"`

	CatalogTable string `env:"CATALOG_TABLE" envDefault:"card_templates"`

	// Local template library settings.
	CacheDBPath     string `env:"CACHE_DB_PATH" envDefault:"./template-library.db"`
	CacheQuotaBytes int64  `env:"CACHE_QUOTA_BYTES" envDefault:"268435456"` // 256 MiB

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
