// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads latchkey configuration from layered sources.
//
// Later layers override earlier ones:
//
//  1. built-in defaults
//  2. an optional YAML file (--config)
//  3. LATCHKEY_* environment variables, "__" separating levels
//     (LATCHKEY_MAIL__SMTP__HOST sets mail.smtp.host)
//  4. command-line flags that were explicitly set
package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/latchkey/latchkey/internal/auth"
	"github.com/latchkey/latchkey/internal/logging"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "LATCHKEY_"

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Mail transports.
const (
	MailSMTP  = "smtp"
	MailBrevo = "brevo"
	MailLog   = "log"
)

// Config is the complete service configuration.
type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	Store     string          `koanf:"store"`
	Database  DatabaseConfig  `koanf:"database"`
	Session   SessionConfig   `koanf:"session"`
	Reset     ResetConfig     `koanf:"reset"`
	Hasher    HasherConfig    `koanf:"hasher"`
	Mail      MailConfig      `koanf:"mail"`
	Redis     RedisConfig     `koanf:"redis"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	TrustedProxies  []string      `koanf:"trusted_proxies"`
}

// MetricsConfig configures the observability listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig selects log output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL             string `koanf:"url"`
	ConnectAttempts uint64 `koanf:"connect_attempts"`
	AutoMigrate     bool   `koanf:"auto_migrate"`
}

// SessionConfig configures bearer session tokens.
type SessionConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
}

// ResetConfig configures password reset tokens and links.
type ResetConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	PublicBaseURL string        `koanf:"public_base_url"`
}

// HasherConfig holds argon2id cost parameters.
type HasherConfig struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
}

// Params converts the config to auth.Argon2Params.
func (h HasherConfig) Params() auth.Argon2Params {
	return auth.Argon2Params{Time: h.Time, MemoryKiB: h.MemoryKiB, Threads: h.Threads}
}

// MailConfig configures reset email delivery.
type MailConfig struct {
	Transport   string      `koanf:"transport"`
	From        string      `koanf:"from"`
	FromName    string      `koanf:"from_name"`
	MaxAttempts uint64      `koanf:"max_attempts"`
	SMTP        SMTPConfig  `koanf:"smtp"`
	Brevo       BrevoConfig `koanf:"brevo"`
}

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// BrevoConfig configures the Brevo transport.
type BrevoConfig struct {
	APIKey string `koanf:"api_key"`
}

// RedisConfig configures the rate limiter backend. Empty URL selects the
// in-process limiter.
type RedisConfig struct {
	URL string `koanf:"url"`
}

// RateLimitConfig holds per-client request budgets. Zero disables a rule.
type RateLimitConfig struct {
	ForgotPerHour  int `koanf:"forgot_per_hour"`
	LoginPerMinute int `koanf:"login_per_minute"`
}

// Defaults returns the built-in configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"http.addr":                  ":5000",
		"http.shutdown_timeout":      "10s",
		"metrics.addr":               "127.0.0.1:9100",
		"log.format":                 "json",
		"log.level":                  "info",
		"store":                      StorePostgres,
		"database.connect_attempts":  5,
		"database.auto_migrate":      false,
		"session.ttl":                auth.SessionTokenExpiry.String(),
		"reset.ttl":                  auth.ResetTokenExpiry.String(),
		"reset.public_base_url":      "http://localhost:3000",
		"hasher.time":                auth.DefaultArgon2Params.Time,
		"hasher.memory_kib":          auth.DefaultArgon2Params.MemoryKiB,
		"hasher.threads":             auth.DefaultArgon2Params.Threads,
		"mail.transport":             MailLog,
		"mail.from_name":             "Password Reset",
		"mail.max_attempts":          3,
		"mail.smtp.port":             587,
		"ratelimit.forgot_per_hour":  5,
		"ratelimit.login_per_minute": 10,
	}
}

// LoadOptions tunes Load. Zero values read the real environment.
type LoadOptions struct {
	// File is an optional YAML config path.
	File string
	// Flags are applied last; only flags set on the command line override.
	Flags *pflag.FlagSet
	// Environ replaces os.Environ.
	Environ func() []string
}

// Load builds a Config from defaults, file, environment and flags.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "defaults").Wrap(err)
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("layer", "file").
				With("path", opts.File).
				Wrap(err)
		}
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
		EnvironFunc:   environ,
	}), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
	}

	// DATABASE_URL is the conventional name used by hosting platforms.
	if k.String("database.url") == "" {
		if dsn := lookupEnv(environ, "DATABASE_URL"); dsn != "" {
			if err := k.Set("database.url", dsn); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
			}
		}
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey(opts.Flags)), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	return &cfg, nil
}

// envKey maps LATCHKEY_MAIL__SMTP__HOST to mail.smtp.host.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "http.trusted_proxies" {
		return key, strings.Split(value, ",")
	}
	return key, value
}

// flagKey maps a flag such as --database-url to database.url. Flags are
// named so that every dash is a level separator.
func flagKey(fs *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		if f.Name == "config" || f.Name == "help" {
			return "", nil
		}
		return strings.ReplaceAll(f.Name, "-", "."), posflag.FlagVal(fs, f)
	}
}

func lookupEnv(environ func() []string, name string) string {
	prefix := name + "="
	for _, kv := range environ() {
		if strings.HasPrefix(kv, prefix) {
			return strings.TrimPrefix(kv, prefix)
		}
	}
	return ""
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "is required")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return invalid("http.shutdown_timeout", "must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be 'json' or 'text'")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "must be debug, info, warn or error")
	}
	switch c.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "is required for the postgres store")
		}
	case StoreMemory:
	default:
		return invalid("store", "must be 'postgres' or 'memory'")
	}
	if len(c.Session.Secret) < auth.MinSessionSecretSize {
		return invalid("session.secret", "must be at least 32 bytes")
	}
	if c.Session.TTL <= 0 {
		return invalid("session.ttl", "must be positive")
	}
	if c.Reset.TTL <= 0 {
		return invalid("reset.ttl", "must be positive")
	}
	if u, err := url.Parse(c.Reset.PublicBaseURL); err != nil || !u.IsAbs() {
		return invalid("reset.public_base_url", "must be an absolute URL")
	}
	if err := c.Hasher.Params().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "hasher").Errorf("hasher: %v", err)
	}
	switch c.Mail.Transport {
	case MailLog:
	case MailSMTP:
		if c.Mail.SMTP.Host == "" {
			return invalid("mail.smtp.host", "is required for the smtp transport")
		}
		if c.Mail.From == "" {
			return invalid("mail.from", "is required for the smtp transport")
		}
	case MailBrevo:
		if c.Mail.Brevo.APIKey == "" {
			return invalid("mail.brevo.api_key", "is required for the brevo transport")
		}
		if c.Mail.From == "" {
			return invalid("mail.from", "is required for the brevo transport")
		}
	default:
		return invalid("mail.transport", "must be 'smtp', 'brevo' or 'log'")
	}
	if c.RateLimit.ForgotPerHour < 0 || c.RateLimit.LoginPerMinute < 0 {
		return invalid("ratelimit", "budgets cannot be negative")
	}
	return nil
}

func invalid(key, reason string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s %s", key, reason)
}
