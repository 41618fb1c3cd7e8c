// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the auth services over HTTP.
//
// Every route is served both at the root and under /api/auth so clients of
// either layout keep working.
package httpapi

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/latchkey/latchkey/internal/auth"
	"github.com/latchkey/latchkey/internal/observability"
	"github.com/latchkey/latchkey/internal/ratelimit"
)

// APIPrefix is the secondary mount point for the auth routes.
const APIPrefix = "/api/auth"

// Rate limit rule names, also used as metric labels.
const (
	RuleForgotPassword = "forgot_password"
	RuleLogin          = "login"
)

// Deps are the collaborators of the HTTP surface. Limiters and Metrics are
// optional.
type Deps struct {
	Auth   *auth.Service
	Resets *auth.PasswordResetService

	ForgotLimiter ratelimit.Limiter
	LoginLimiter  ratelimit.Limiter

	Metrics *observability.Metrics
	Logger  *slog.Logger

	// TrustedProxies are the proxies allowed to set X-Forwarded-For.
	// Empty trusts none and rate limits by the socket address.
	TrustedProxies []string
}

type handler struct {
	auth    *auth.Service
	resets  *auth.PasswordResetService
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRouter builds the gin engine serving the auth API.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Auth == nil {
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("auth service is required")
	}
	if deps.Resets == nil {
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("password reset service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handler{
		auth:    deps.Auth,
		resets:  deps.Resets,
		metrics: deps.Metrics,
		logger:  logger,
	}

	r := gin.New()
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return nil, oops.Code("HTTPAPI_INVALID").With("trusted_proxies", deps.TrustedProxies).Wrap(err)
	}
	r.Use(gin.CustomRecovery(h.recover))
	r.Use(tracing())
	r.Use(h.observe())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, errorBody{Error: "not found"})
	})

	r.GET("/health", h.health)

	forgot := h.rateLimit(RuleForgotPassword, deps.ForgotLimiter)
	login := h.rateLimit(RuleLogin, deps.LoginLimiter)

	for _, g := range []*gin.RouterGroup{&r.RouterGroup, r.Group(APIPrefix)} {
		g.POST("/register", h.register)
		g.POST("/login", login, h.login)
		g.POST("/forgot-password", forgot, h.forgotPassword)
		g.POST("/reset-password/:token", h.resetPassword)
		g.GET("/verify-token/:token", h.verifyToken)

		authed := g.Group("", h.requireSession())
		authed.GET("/current-user", h.currentUser)
		authed.POST("/change-password", h.changePassword)
	}
	r.GET("/", h.index)
	r.GET(APIPrefix, h.index)

	return r, nil
}
