// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/latchkey/latchkey/internal/auth"
	"github.com/latchkey/latchkey/internal/auth/memory"
	"github.com/latchkey/latchkey/internal/auth/postgres"
	"github.com/latchkey/latchkey/internal/config"
	"github.com/latchkey/latchkey/internal/httpapi"
	"github.com/latchkey/latchkey/internal/notify"
	"github.com/latchkey/latchkey/internal/observability"
	"github.com/latchkey/latchkey/internal/ratelimit"
	"github.com/latchkey/latchkey/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// UserStoreFactory opens the configured credential store.
	// Default: openUserStore
	UserStoreFactory func(ctx context.Context, cfg *config.Config) (UserStore, error)

	// MigratorFactory creates a migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// TransportFactory builds the mail transport.
	// Default: newTransport
	TransportFactory func(cfg *config.Config) (notify.Transport, error)

	// LimitersFactory builds the forgot-password and login limiters.
	// Default: newLimiters
	LimitersFactory func(ctx context.Context, cfg *config.Config) (*Limiters, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// UserStore is a credential store with a lifecycle.
type UserStore interface {
	auth.UserRepository
	Ping(ctx context.Context) error
	Close()
}

// AutoMigrator interface wraps the methods used from store.Migrator.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Limiters holds the per-route limiters. A nil limiter disables its rule.
type Limiters struct {
	Forgot ratelimit.Limiter
	Login  ratelimit.Limiter
	close  func() error
}

// Close releases the backing Redis client, if any.
func (l *Limiters) Close() error {
	if l == nil || l.close == nil {
		return nil
	}
	return l.close()
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	if d == nil {
		d = &ServeDeps{}
	}
	if d.UserStoreFactory == nil {
		d.UserStoreFactory = openUserStore
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if d.TransportFactory == nil {
		d.TransportFactory = newTransport
	}
	if d.LimitersFactory == nil {
		d.LimitersFactory = newLimiters
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if d.ListenerFactory == nil {
		d.ListenerFactory = net.Listen
	}
	return d
}

type postgresStore struct {
	*postgres.UserRepository
	pool *pgxpool.Pool
}

func (s *postgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
func (s *postgresStore) Close()                         { s.pool.Close() }

type memoryStore struct {
	*memory.UserRepository
}

func (memoryStore) Ping(context.Context) error { return nil }
func (memoryStore) Close()                     {}

// openUserStore connects to PostgreSQL, or returns an in-process store for
// store=memory.
func openUserStore(ctx context.Context, cfg *config.Config) (UserStore, error) {
	if cfg.Store == config.StoreMemory {
		return memoryStore{memory.NewUserRepository()}, nil
	}
	pool, err := store.Connect(ctx, cfg.Database.URL, store.ConnectOptions{
		Attempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, err
	}
	return &postgresStore{UserRepository: postgres.NewUserRepository(pool), pool: pool}, nil
}

// newTransport builds the configured mail transport. The log transport
// prints messages, reset links included, to stderr and is meant for
// development only.
func newTransport(cfg *config.Config) (notify.Transport, error) {
	from := notify.Sender{Email: cfg.Mail.From, Name: cfg.Mail.FromName}
	switch cfg.Mail.Transport {
	case config.MailSMTP:
		return notify.NewSMTPTransport(notify.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
			Timeout:  notify.DefaultDeliveryTimeout,
		}, from)
	case config.MailBrevo:
		return notify.NewBrevoTransport(cfg.Mail.Brevo.APIKey, from)
	case config.MailLog:
		return notify.NewWriterTransport(os.Stderr), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("key", "mail.transport").
			Errorf("unknown mail transport %q", cfg.Mail.Transport)
	}
}

// newLimiters builds the limiters. Counters are shared through Redis when
// redis.url is set and kept in process otherwise.
func newLimiters(ctx context.Context, cfg *config.Config) (*Limiters, error) {
	rules := []struct {
		rule ratelimit.Rule
		dst  func(*Limiters, ratelimit.Limiter)
	}{
		{
			ratelimit.Rule{Name: httpapi.RuleForgotPassword, Limit: cfg.RateLimit.ForgotPerHour, Window: time.Hour},
			func(l *Limiters, lim ratelimit.Limiter) { l.Forgot = lim },
		},
		{
			ratelimit.Rule{Name: httpapi.RuleLogin, Limit: cfg.RateLimit.LoginPerMinute, Window: time.Minute},
			func(l *Limiters, lim ratelimit.Limiter) { l.Login = lim },
		},
	}

	limiters := &Limiters{}
	if cfg.Redis.URL == "" {
		for _, r := range rules {
			if r.rule.Limit == 0 {
				continue
			}
			lim, err := ratelimit.NewLocalLimiter(r.rule)
			if err != nil {
				return nil, err
			}
			r.dst(limiters, lim)
		}
		return limiters, nil
	}

	client, err := ratelimit.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	limiters.close = client.Close
	for _, r := range rules {
		if r.rule.Limit == 0 {
			continue
		}
		lim, err := ratelimit.NewRedisLimiter(client, r.rule)
		if err != nil {
			_ = client.Close() //nolint:errcheck // construction error takes precedence
			return nil, err
		}
		r.dst(limiters, lim)
	}
	return limiters, nil
}
