package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func missingFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "config.yaml")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DEFAULT_TENANT_ID", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	cfg, err := LoadFile(missingFile(t))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %v, want 8080", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 30*time.Second {
		t.Errorf("Server.RequestTimeout = %v, want 30s", cfg.Server.RequestTimeout)
	}
	if cfg.Server.Production() {
		t.Error("Server.Production() = true, want false")
	}
	if cfg.Tenants.DefaultID != "nini" {
		t.Errorf("Tenants.DefaultID = %q, want nini", cfg.Tenants.DefaultID)
	}
	if cfg.Content.Backend != "fs" || cfg.Content.CacheSize != 512 {
		t.Errorf("Content = %+v", cfg.Content)
	}
	if cfg.Chat.APIKey != "" || cfg.Chat.MaxChars != 256 {
		t.Errorf("Chat = %+v", cfg.Chat)
	}
	if cfg.Storage.Type != "none" || cfg.Admin.OTPStore != "memory" {
		t.Errorf("Storage.Type = %q, Admin.OTPStore = %q", cfg.Storage.Type, cfg.Admin.OTPStore)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GALLERY_SERVER__PORT", "9000")
	t.Setenv("GALLERY_SERVER__ENVIRONMENT", "production")
	t.Setenv("GALLERY_SERVER__REQUEST_TIMEOUT", "5s")
	t.Setenv("GALLERY_TELEMETRY__ENABLED", "true")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("DEFAULT_TENANT_ID", "mika")

	cfg, err := LoadFile(missingFile(t))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %v, want 9000", cfg.Server.Port)
	}
	if !cfg.Server.Production() {
		t.Error("Server.Production() = false, want true")
	}
	if cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("Server.RequestTimeout = %v, want 5s", cfg.Server.RequestTimeout)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("Telemetry.Enabled = false, want true")
	}
	if cfg.Chat.APIKey != "sk-or-test" {
		t.Errorf("Chat.APIKey = %q, want the OPENROUTER_API_KEY value", cfg.Chat.APIKey)
	}
	if cfg.Tenants.DefaultID != "mika" {
		t.Errorf("Tenants.DefaultID = %q, want mika", cfg.Tenants.DefaultID)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("REDIS_PASSWORD", "hunter2")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 7070
tenants:
  path: /etc/gallery/tenants.json
  default_id: ana
  watch: true
admin:
  otp_store: redis
  redis_url: redis://:${REDIS_PASSWORD}@localhost:6379/0
storage:
  type: sqlite
  sqlite:
    path: /var/lib/gallery/chat.db
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %v, want 7070", cfg.Server.Port)
	}
	if cfg.Tenants.Path != "/etc/gallery/tenants.json" || cfg.Tenants.DefaultID != "ana" || !cfg.Tenants.Watch {
		t.Errorf("Tenants = %+v", cfg.Tenants)
	}
	if cfg.Admin.RedisURL != "redis://:hunter2@localhost:6379/0" {
		t.Errorf("Admin.RedisURL = %q", cfg.Admin.RedisURL)
	}
	if cfg.Storage.SQLite.Path != "/var/lib/gallery/chat.db" {
		t.Errorf("Storage.SQLite.Path = %q", cfg.Storage.SQLite.Path)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:  ServerConfig{Environment: "development"},
			Content: ContentConfig{Backend: "fs"},
			Admin:   AdminConfig{OTPStore: "memory"},
			Storage: StorageConfig{Type: "none"},
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"unknown environment", func(c *Config) { c.Server.Environment = "staging" }, true},
		{"s3 without bucket", func(c *Config) { c.Content.Backend = "s3" }, true},
		{"s3 with bucket", func(c *Config) { c.Content.Backend = "s3"; c.Content.S3.Bucket = "gallery" }, false},
		{"redis without url", func(c *Config) { c.Admin.OTPStore = "redis" }, true},
		{"unknown storage", func(c *Config) { c.Storage.Type = "postgres" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple substitution", "${TEST_VAR}", "test-value"},
		{"substitution in string", "prefix-${TEST_VAR}-suffix", "prefix-test-value-suffix"},
		{"no substitution", "plain-string", "plain-string"},
		{"undefined var", "${UNDEFINED_GALLERY_VAR}", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Errorf("substituteEnvVars() = %v, want %v", got, tt.want)
			}
		})
	}
}
