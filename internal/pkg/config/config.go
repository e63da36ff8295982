package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates levels: GALLERY_SERVER__PORT sets server.port.
const EnvPrefix = "GALLERY_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Tenants   TenantsConfig   `koanf:"tenants"`
	Content   ContentConfig   `koanf:"content"`
	Chat      ChatConfig      `koanf:"chat"`
	Admin     AdminConfig     `koanf:"admin"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	Environment     string        `koanf:"environment"` // development, production
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Production reports whether unknown hosts are rejected and cookies are
// marked Secure.
func (s ServerConfig) Production() bool {
	return s.Environment == "production"
}

type TenantsConfig struct {
	// Path is the host-to-tenant JSON file.
	Path      string `koanf:"path"`
	DefaultID string `koanf:"default_id"`
	// Watch invalidates the directory when Path changes on disk.
	Watch bool `koanf:"watch"`
}

type ContentConfig struct {
	Backend   string   `koanf:"backend"` // fs, s3
	Dir       string   `koanf:"dir"`
	CacheSize int      `koanf:"cache_size"`
	S3        S3Config `koanf:"s3"`
}

type S3Config struct {
	Bucket string `koanf:"bucket"`
	Prefix string `koanf:"prefix"`
}

type ChatConfig struct {
	APIKey      string `koanf:"api_key"`
	BaseURL     string `koanf:"base_url"`
	Model       string `koanf:"model"`
	MaxChars    int    `koanf:"max_chars"`
	TokenBudget int    `koanf:"token_budget"`
}

type AdminConfig struct {
	OTPStore string `koanf:"otp_store"` // memory, redis
	RedisURL string `koanf:"redis_url"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

var defaults = map[string]any{
	"server.port":             8080,
	"server.environment":      "development",
	"server.request_timeout":  "30s",
	"server.shutdown_timeout": "15s",
	"tenants.path":            "data/tenants.json",
	"tenants.default_id":      "nini",
	"content.backend":         "fs",
	"content.dir":             ".",
	"content.cache_size":      512,
	"chat.api_key":            "${OPENROUTER_API_KEY}",
	"chat.max_chars":          256,
	"chat.token_budget":       8000,
	"admin.otp_store":         "memory",
	"storage.type":            "none",
	"storage.sqlite.path":     "data/transcripts.db",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml from the working directory, if present, and
// overlays GALLERY_ environment variables.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile is Load with an explicit file path. A missing file is not an
// error.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// The deployment's DEFAULT_TENANT_ID wins over the built-in default.
	if !k.Exists("tenants.default_id") {
		if id := os.Getenv("DEFAULT_TENANT_ID"); id != "" {
			k.Set("tenants.default_id", id)
		}
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Chat.APIKey = substituteEnvVars(cfg.Chat.APIKey)
	cfg.Admin.RedisURL = substituteEnvVars(cfg.Admin.RedisURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("server.environment: unknown value %q", c.Server.Environment)
	}
	switch c.Content.Backend {
	case "fs":
	case "s3":
		if c.Content.S3.Bucket == "" {
			return errors.New("content.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("content.backend: unknown value %q", c.Content.Backend)
	}
	switch c.Admin.OTPStore {
	case "memory":
	case "redis":
		if c.Admin.RedisURL == "" {
			return errors.New("admin.redis_url is required for the redis otp store")
		}
	default:
		return fmt.Errorf("admin.otp_store: unknown value %q", c.Admin.OTPStore)
	}
	switch c.Storage.Type {
	case "none", "memory":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("storage.type: unknown value %q", c.Storage.Type)
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
