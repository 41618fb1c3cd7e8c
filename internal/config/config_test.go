// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latchkey/latchkey/pkg/errutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "config file")
	fs.String("http-addr", ":5000", "listen address")
	fs.String("log-format", "json", "log format")
	fs.String("database-url", "", "database URL")
	fs.String("store", "postgres", "store backend")
	return fs
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(LoadOptions{Environ: environ(
		"LATCHKEY_SESSION__SECRET="+testSecret,
		"LATCHKEY_DATABASE__URL=postgres://localhost/latchkey",
	)})
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(LoadOptions{Environ: environ()})
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, uint64(5), cfg.Database.ConnectAttempts)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, time.Hour, cfg.Reset.TTL)
	assert.Equal(t, uint32(64*1024), cfg.Hasher.MemoryKiB)
	assert.Equal(t, uint8(4), cfg.Hasher.Threads)
	assert.Equal(t, MailLog, cfg.Mail.Transport)
	assert.Equal(t, 587, cfg.Mail.SMTP.Port)
	assert.Equal(t, 5, cfg.RateLimit.ForgotPerHour)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latchkey.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":8080"
reset:
  ttl: 30m
mail:
  transport: smtp
  from: noreply@example.com
  smtp:
    host: smtp.example.com
    port: 2525
`), 0o600))

	cfg, err := Load(LoadOptions{File: path, Environ: environ()})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Reset.TTL)
	assert.Equal(t, MailSMTP, cfg.Mail.Transport)
	assert.Equal(t, "smtp.example.com", cfg.Mail.SMTP.Host)
	assert.Equal(t, 2525, cfg.Mail.SMTP.Port)
	assert.Equal(t, "json", cfg.Log.Format, "unset keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(LoadOptions{File: filepath.Join(t.TempDir(), "nope.yaml"), Environ: environ()})
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
	errutil.AssertErrorContext(t, err, "layer", "file")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latchkey.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":8080\"\n"), 0o600))

	cfg, err := Load(LoadOptions{File: path, Environ: environ(
		"LATCHKEY_HTTP__ADDR=:9090",
		"LATCHKEY_MAIL__SMTP__HOST=mail.internal",
		"LATCHKEY_RATELIMIT__FORGOT_PER_HOUR=3",
		"LATCHKEY_HTTP__TRUSTED_PROXIES=10.0.0.1,10.0.0.2",
		"UNRELATED=value",
	)})
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "mail.internal", cfg.Mail.SMTP.Host)
	assert.Equal(t, 3, cfg.RateLimit.ForgotPerHour)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.HTTP.TrustedProxies)
}

func TestLoad_DatabaseURLFallback(t *testing.T) {
	cfg, err := Load(LoadOptions{Environ: environ("DATABASE_URL=postgres://fallback/db")})
	require.NoError(t, err)
	assert.Equal(t, "postgres://fallback/db", cfg.Database.URL)

	cfg, err = Load(LoadOptions{Environ: environ(
		"DATABASE_URL=postgres://fallback/db",
		"LATCHKEY_DATABASE__URL=postgres://primary/db",
	)})
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary/db", cfg.Database.URL)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--http-addr=:7000", "--store=memory"}))

	cfg, err := Load(LoadOptions{Flags: fs, Environ: environ("LATCHKEY_HTTP__ADDR=:9090", "LATCHKEY_LOG__FORMAT=text")})
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "text", cfg.Log.Format, "unchanged flags do not override env")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"short session secret", func(c *Config) { c.Session.Secret = "short" }, "session.secret"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero shutdown timeout", func(c *Config) { c.HTTP.ShutdownTimeout = 0 }, "http.shutdown_timeout"},
		{"postgres without url", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"unknown store", func(c *Config) { c.Store = "sqlite" }, "store"},
		{"relative base url", func(c *Config) { c.Reset.PublicBaseURL = "/reset" }, "reset.public_base_url"},
		{"zero reset ttl", func(c *Config) { c.Reset.TTL = 0 }, "reset.ttl"},
		{"weak hasher", func(c *Config) { c.Hasher.MemoryKiB = 1024 }, "hasher"},
		{"unknown transport", func(c *Config) { c.Mail.Transport = "pigeon" }, "mail.transport"},
		{"smtp without host", func(c *Config) {
			c.Mail.Transport = MailSMTP
			c.Mail.From = "noreply@example.com"
		}, "mail.smtp.host"},
		{"brevo without key", func(c *Config) {
			c.Mail.Transport = MailBrevo
			c.Mail.From = "noreply@example.com"
		}, "mail.brevo.api_key"},
		{"negative budget", func(c *Config) { c.RateLimit.LoginPerMinute = -1 }, "ratelimit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "key", tt.key)
		})
	}
}

func TestValidate_Accepts(t *testing.T) {
	cfg := validConfig(t)
	assert.NoError(t, cfg.Validate())

	cfg.Store = StoreMemory
	cfg.Database.URL = ""
	assert.NoError(t, cfg.Validate(), "memory store needs no database")
}
