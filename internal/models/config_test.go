package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "ALLOWED_ORIGINS", "CORS_ORIGIN", "STORE_BACKEND", "STORE_ENDPOINT", "PROJECT_URL",
		"STORE_REGION", "STORE_ACCESS_KEY", "STORE_SECRET_KEY", "SERVICE_ROLE_KEY",
		"ORIGINAL_BUCKET", "DERIVED_BUCKET", "DATABASE_URL", "KAFKA_BROKER", "KAFKA_TOPIC",
		"KAFKA_GROUP", "WATERMARK_TEXT", "THUMBNAIL_SIZES", "THUMBNAIL_FORMATS", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.ServerAddr)
	assert.Equal(t, "photos-original", cfg.OriginalBucket)
	assert.Equal(t, "photos-derived", cfg.DerivedBucket)
	assert.Equal(t, DefaultSizes(), cfg.Sizes)
	assert.Equal(t, DefaultFormats(), cfg.Formats)
	assert.Equal(t, "s3", cfg.StoreBackend)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("PROJECT_URL", "http://minio:9000")
	t.Setenv("SERVICE_ROLE_KEY", "secret")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("THUMBNAIL_SIZES", "thumb:120,full:2000")
	t.Setenv("THUMBNAIL_FORMATS", "webp:70,jpeg")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.ServerAddr)
	assert.Equal(t, "http://minio:9000", cfg.StoreEndpoint)
	assert.Equal(t, "secret", cfg.StoreSecretKey)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, []Size{{Name: "thumb", Width: 120}, {Name: "full", Width: 2000}}, cfg.Sizes)
	require.Len(t, cfg.Formats, 2)
	assert.Equal(t, 70, cfg.Formats[0].Quality)
	assert.Equal(t, "jpg", cfg.Formats[1].Ext)
	assert.Equal(t, "image/jpeg", cfg.Formats[1].ContentType)
}

func TestLoadConfigYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server_addr: ":9000"
derived_bucket: thumbs
sizes:
  - name: tiny
    width: 64
formats:
  - name: avif
    quality: 40
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, "thumbs", cfg.DerivedBucket)
	assert.Equal(t, []Size{{Name: "tiny", Width: 64}}, cfg.Sizes)
	assert.Equal(t, []Format{{Name: "avif", Ext: "avif", ContentType: "image/avif", Quality: 40}}, cfg.Formats)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port", "PORT", "not-a-number"},
		{"size width", "THUMBNAIL_SIZES", "small:zero"},
		{"size format", "THUMBNAIL_SIZES", "small"},
		{"unknown format", "THUMBNAIL_FORMATS", "gif"},
		{"quality range", "THUMBNAIL_FORMATS", "webp:300"},
		{"backend", "STORE_BACKEND", "ftp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
			assert.Error(t, err)
		})
	}
}
