package models

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

type Config struct {
	ServerAddr     string   `yaml:"server_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	StoreBackend   string `yaml:"store_backend"` // s3 or memory
	StoreEndpoint  string `yaml:"store_endpoint"`
	StoreRegion    string `yaml:"store_region"`
	StoreAccessKey string `yaml:"store_access_key"`
	StoreSecretKey string `yaml:"store_secret_key"`
	OriginalBucket string `yaml:"original_bucket"`
	DerivedBucket  string `yaml:"derived_bucket"`

	DatabaseURL string `yaml:"database_url"`
	KafkaBroker string `yaml:"kafka_broker"`
	KafkaTopic  string `yaml:"kafka_topic"`
	KafkaGroup  string `yaml:"kafka_group"`

	WatermarkText string   `yaml:"watermark_text"`
	Sizes         []Size   `yaml:"sizes"`
	Formats       []Format `yaml:"formats"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func DefaultConfig() *Config {
	return &Config{
		ServerAddr:     ":3000",
		AllowedOrigins: []string{"*"},
		StoreBackend:   "s3",
		StoreRegion:    "us-east-1",
		OriginalBucket: "photos-original",
		DerivedBucket:  "photos-derived",
		KafkaTopic:     "thumbnail-jobs",
		KafkaGroup:     "thumbnail-workers",
		Sizes:          DefaultSizes(),
		Formats:        DefaultFormats(),
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// LoadConfig reads the optional YAML file at path over the defaults, then
// applies environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	const op = "models.LoadConfig"

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.ServerAddr = ":" + v
	}
	if v := getenv("ALLOWED_ORIGINS", "CORS_ORIGIN"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	setString(&c.StoreBackend, "STORE_BACKEND")
	setString(&c.StoreEndpoint, "STORE_ENDPOINT", "PROJECT_URL")
	setString(&c.StoreRegion, "STORE_REGION")
	setString(&c.StoreAccessKey, "STORE_ACCESS_KEY")
	setString(&c.StoreSecretKey, "STORE_SECRET_KEY", "SERVICE_ROLE_KEY")
	setString(&c.OriginalBucket, "ORIGINAL_BUCKET")
	setString(&c.DerivedBucket, "DERIVED_BUCKET")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.KafkaBroker, "KAFKA_BROKER")
	setString(&c.KafkaTopic, "KAFKA_TOPIC")
	setString(&c.KafkaGroup, "KAFKA_GROUP")
	setString(&c.WatermarkText, "WATERMARK_TEXT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")

	if v := os.Getenv("THUMBNAIL_SIZES"); v != "" {
		sizes, err := ParseSizes(v)
		if err != nil {
			return fmt.Errorf("parse THUMBNAIL_SIZES: %w", err)
		}
		c.Sizes = sizes
	}
	if v := os.Getenv("THUMBNAIL_FORMATS"); v != "" {
		formats, err := ParseFormats(v)
		if err != nil {
			return fmt.Errorf("parse THUMBNAIL_FORMATS: %w", err)
		}
		c.Formats = formats
	}
	return nil
}

func (c *Config) Validate() error {
	if len(c.Sizes) == 0 {
		return errors.New("at least one size is required")
	}
	if len(c.Formats) == 0 {
		return errors.New("at least one format is required")
	}
	seen := make(map[string]bool, len(c.Sizes))
	for _, s := range c.Sizes {
		if s.Name == "" || s.Width <= 0 {
			return fmt.Errorf("invalid size %q: width must be greater than zero (got %d)", s.Name, s.Width)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate size %q", s.Name)
		}
		seen[s.Name] = true
	}
	for i, f := range c.Formats {
		known, err := FormatByName(f.Name)
		if err != nil {
			return err
		}
		// YAML entries may only name the format and override its quality.
		if f.Quality == 0 {
			f.Quality = known.Quality
		}
		if f.Quality < 1 || f.Quality > 100 {
			return fmt.Errorf("format %s: quality must be within 1..100 (got %d)", f.Name, f.Quality)
		}
		known.Quality = f.Quality
		c.Formats[i] = known
	}
	switch c.StoreBackend {
	case "s3", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.OriginalBucket == "" || c.DerivedBucket == "" {
		return errors.New("original and derived buckets are required")
	}
	return nil
}

// ParseSizes parses "name:width,name:width".
func ParseSizes(v string) ([]Size, error) {
	var sizes []Size
	for _, pair := range splitList(v) {
		parts := strings.Split(pair, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid size format '%s', expected 'name:width'", pair)
		}
		width, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || width <= 0 {
			return nil, fmt.Errorf("invalid width in '%s'", pair)
		}
		sizes = append(sizes, Size{Name: strings.TrimSpace(parts[0]), Width: width})
	}
	return sizes, nil
}

// ParseFormats parses "webp:80,avif,jpeg:75". A missing quality keeps the
// format's default.
func ParseFormats(v string) ([]Format, error) {
	var formats []Format
	for _, item := range splitList(v) {
		name, quality, hasQuality := strings.Cut(item, ":")
		f, err := FormatByName(name)
		if err != nil {
			return nil, err
		}
		if hasQuality {
			q, err := strconv.Atoi(strings.TrimSpace(quality))
			if err != nil {
				return nil, fmt.Errorf("invalid quality in '%s'", item)
			}
			f.Quality = q
		}
		formats = append(formats, f)
	}
	return formats, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func setString(dst *string, keys ...string) {
	if v := getenv(keys...); v != "" {
		*dst = v
	}
}
