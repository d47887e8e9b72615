package main

import (
	"fmt"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/httpapi"
	"github.com/caarlos0/env/v11"
)

// config is read from the environment. A .env file in the working
// directory is loaded first.
type config struct {
	Addr        string `env:"GOGUARD_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"GOGUARD_METRICS_ADDR" envDefault:":9090"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass   string `env:"REDIS_PASSWORD"`
	RedisDB     int    `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix   string `env:"GOGUARD_KEY_PREFIX"`
	AMQPURL     string `env:"AMQP_URL"`

	// MasterKey is base64 for 32 random bytes. It seals TOTP secrets.
	MasterKey  string        `env:"GOGUARD_MASTER_KEY,required"`
	SigningKey string        `env:"GOGUARD_SIGNING_KEY,required"`
	Issuer     string        `env:"GOGUARD_ISSUER" envDefault:"goGuard"`
	SessionTTL time.Duration `env:"GOGUARD_SESSION_TTL" envDefault:"12h"`
	IdleTTL    time.Duration `env:"GOGUARD_SESSION_IDLE" envDefault:"2h"`

	ConfigRoot     string   `env:"GOGUARD_CONFIG_ROOT" envDefault:"."`
	AllowedOrigins []string `env:"GOGUARD_ALLOWED_ORIGINS" envSeparator:","`
	CookieSecure   bool     `env:"GOGUARD_COOKIE_SECURE" envDefault:"true"`

	LockoutThreshold int           `env:"GOGUARD_LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutDuration  time.Duration `env:"GOGUARD_LOCKOUT_DURATION" envDefault:"15m"`
	DeviceTrustTTL   time.Duration `env:"GOGUARD_DEVICE_TRUST_TTL" envDefault:"720h"`

	SweepSchedule  string        `env:"GOGUARD_SWEEP_SCHEDULE" envDefault:"@hourly"`
	SweepRetention time.Duration `env:"GOGUARD_SWEEP_RETENTION" envDefault:"720h"`
}

func loadConfig(opts env.Options) (config, error) {
	var cfg config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// engineConfig overlays the environment on goGuard.DefaultConfig.
func (c config) engineConfig() goGuard.Config {
	out := goGuard.DefaultConfig()
	out.TOTP.Issuer = c.Issuer
	out.Lockout.Threshold = c.LockoutThreshold
	out.Lockout.Duration = c.LockoutDuration
	out.DeviceTrust.TTL = c.DeviceTrustTTL
	out.Redis.KeyPrefix = c.KeyPrefix
	out.Audit.Enabled = true
	out.Metrics.Enabled = true
	out.Metrics.EnableLatencyHistograms = true
	return out
}

func (c config) httpConfig() httpapi.Config {
	out := httpapi.DefaultConfig()
	out.CookieSecure = c.CookieSecure
	out.SessionTTL = c.SessionTTL
	out.AllowedOrigins = c.AllowedOrigins
	return out
}
