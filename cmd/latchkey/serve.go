// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/latchkey/latchkey/internal/auth"
	"github.com/latchkey/latchkey/internal/config"
	"github.com/latchkey/latchkey/internal/httpapi"
	"github.com/latchkey/latchkey/internal/logging"
	"github.com/latchkey/latchkey/internal/notify"
	"github.com/latchkey/latchkey/internal/observability"
	"github.com/latchkey/latchkey/pkg/errutil"
)

const (
	serviceName       = "latchkey"
	readinessTimeout  = 2 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API together with the metrics and health probe
listener. The process shuts down gracefully on SIGINT or SIGTERM, waiting for
in-flight requests and queued reset emails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().String("http-addr", ":5000", "API listen address")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", "json", "log format (json or text)")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("store", config.StorePostgres, "credential store (postgres or memory)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	}, os.Stderr)
	if err != nil {
		return err
	}

	logger.Info("starting latchkey",
		"http_addr", cfg.HTTP.Addr,
		"store", cfg.Store,
		"mail_transport", cfg.Mail.Transport)

	if cfg.Store == config.StorePostgres && cfg.Database.AutoMigrate {
		if err := runAutoMigration(cfg.Database.URL, deps.MigratorFactory); err != nil {
			return err
		}
	}

	users, err := deps.UserStoreFactory(ctx, cfg)
	if err != nil {
		return oops.Code("SERVE_STORE_FAILED").With("store", cfg.Store).Wrap(err)
	}
	defer users.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, observability.PingReadiness(users, readinessTimeout))
		metrics = obsServer.Metrics()
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("SERVE_OBSERVABILITY_FAILED").Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	dispatcher, err := newDispatcher(cfg, deps, metrics, logger)
	if err != nil {
		stopObservability(obsServer)
		return err
	}

	limiters, err := deps.LimitersFactory(ctx, cfg)
	if err != nil {
		closeDispatcher(dispatcher)
		stopObservability(obsServer)
		return oops.Code("SERVE_RATELIMIT_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := limiters.Close(); closeErr != nil {
			slog.Warn("error closing rate limiter", "error", closeErr)
		}
	}()

	router, err := newRouter(cfg, users, dispatcher, limiters, metrics, logger)
	if err != nil {
		closeDispatcher(dispatcher)
		stopObservability(obsServer)
		return err
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		closeDispatcher(dispatcher)
		stopObservability(obsServer)
		return oops.Code("SERVE_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("latchkey started")
	logger.Info("latchkey ready", "http_addr", listener.Addr().String())

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case serveErr = <-errChan:
		logger.Error("http server error, shutting down", "error", serveErr)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	// Requests are drained, so no new reset emails can be queued.
	if err := dispatcher.Close(shutdownCtx); err != nil {
		errutil.LogError(logger, "queued reset emails were abandoned", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	if serveErr != nil {
		return oops.Code("SERVE_HTTP_FAILED").Wrap(serveErr)
	}
	return nil
}

func newDispatcher(cfg *config.Config, deps *ServeDeps, metrics *observability.Metrics, logger *slog.Logger) (*notify.Dispatcher, error) {
	transport, err := deps.TransportFactory(cfg)
	if err != nil {
		return nil, err
	}
	renderer, err := notify.NewRenderer(cfg.Reset.PublicBaseURL, cfg.Reset.TTL)
	if err != nil {
		return nil, err
	}
	return notify.NewDispatcher(renderer, transport,
		notify.WithLogger(logger),
		notify.WithMaxAttempts(cfg.Mail.MaxAttempts),
		notify.WithDeliveryObserver(metrics.RecordEmailDelivery))
}

func newRouter(
	cfg *config.Config,
	users auth.UserRepository,
	notifier auth.Notifier,
	limiters *Limiters,
	metrics *observability.Metrics,
	logger *slog.Logger,
) (http.Handler, error) {
	hasher, err := auth.NewArgon2idHasherWithParams(cfg.Hasher.Params())
	if err != nil {
		return nil, err
	}
	sessions, err := auth.NewSessionIssuer([]byte(cfg.Session.Secret), cfg.Session.TTL, auth.SystemClock{})
	if err != nil {
		return nil, err
	}
	authSvc, err := auth.NewAuthService(users, hasher, sessions, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	resets, err := auth.NewPasswordResetService(users, hasher, notifier,
		auth.WithLogger(logger),
		auth.WithResetTTL(cfg.Reset.TTL))
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	return httpapi.NewRouter(httpapi.Deps{
		Auth:           authSvc,
		Resets:         resets,
		ForgotLimiter:  limiters.Forgot,
		LoginLimiter:   limiters.Login,
		Metrics:        metrics,
		Logger:         logger,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
}

// runAutoMigration applies pending migrations before the store is opened.
func runAutoMigration(databaseURL string, factory func(string) (AutoMigrator, error)) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator, connection may leak", "error", closeErr)
		}
	}()

	slog.Info("running database migrations")
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").Wrap(err)
	}
	return nil
}

func closeDispatcher(d *notify.Dispatcher) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		slog.Warn("failed to close dispatcher during cleanup", "error", err)
	}
}

func stopObservability(s ObservabilityServer) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when an error arrives, the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
