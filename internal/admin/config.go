package admin

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the admin login configuration, read from the environment.
// Every field except RedisURL must be set for admin login to work.
type Config struct {
	SMTPHost       string `env:"SMTP_HOST"`
	SMTPPort       int    `env:"SMTP_PORT"`
	SMTPUser       string `env:"SMTP_USER"`
	SMTPPass       string `env:"SMTP_PASS"`
	SMTPSecure     string `env:"SMTP_SECURE"`
	SMTPRequireTLS string `env:"SMTP_REQUIRE_TLS"`
	AdminEmail     string `env:"ADMIN_EMAIL"`
	JWTSecret      string `env:"JWT_SECRET"`

	// RedisURL selects the Redis OTP store; empty keeps codes in memory.
	RedisURL string `env:"GALLERY_REDIS_URL"`

	OTPTTL          time.Duration `env:"GALLERY_ADMIN_OTP_TTL"          envDefault:"10m"`
	OTPMaxAttempts  int           `env:"GALLERY_ADMIN_OTP_MAX_ATTEMPTS" envDefault:"3"`
	RateLimit       int           `env:"GALLERY_ADMIN_OTP_RATE_LIMIT"   envDefault:"3"`
	RateLimitWindow time.Duration `env:"GALLERY_ADMIN_OTP_RATE_WINDOW"  envDefault:"15m"`
	SessionTTL      time.Duration `env:"GALLERY_ADMIN_SESSION_TTL"      envDefault:"24h"`
}

// LoadConfigFromEnv parses Config from the process environment.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse admin env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.OTPTTL <= 0 {
		c.OTPTTL = 10 * time.Minute
	}
	if c.OTPMaxAttempts <= 0 {
		c.OTPMaxAttempts = 3
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 3
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = 15 * time.Minute
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
}

// Missing lists the unset required variables.
func (c Config) Missing() []string {
	required := []struct {
		name string
		set  bool
	}{
		{"SMTP_HOST", c.SMTPHost != ""},
		{"SMTP_PORT", c.SMTPPort != 0},
		{"SMTP_USER", c.SMTPUser != ""},
		{"SMTP_PASS", c.SMTPPass != ""},
		{"SMTP_SECURE", c.SMTPSecure != ""},
		{"SMTP_REQUIRE_TLS", c.SMTPRequireTLS != ""},
		{"ADMIN_EMAIL", c.AdminEmail != ""},
		{"JWT_SECRET", c.JWTSecret != ""},
	}
	var missing []string
	for _, r := range required {
		if !r.set {
			missing = append(missing, r.name)
		}
	}
	return missing
}

// Configured reports whether every required variable is set.
func (c Config) Configured() bool {
	return len(c.Missing()) == 0
}
