// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/latchkey/latchkey/internal/ratelimit"
	"github.com/latchkey/latchkey/pkg/errutil"
)

const tracerName = "github.com/latchkey/latchkey/internal/httpapi"

// redactedRoute is the matched route with path tokens masked, safe to log.
func redactedRoute(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		return "unmatched"
	}
	return strings.ReplaceAll(route, ":token", "***")
}

// tracing starts a server span per request. Spans are no-ops unless the
// process installs a tracer provider.
func tracing() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		route := redactedRoute(c)
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
			))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, strconv.Itoa(status))
		}
	}
}

// observe records request metrics and writes one log line per request.
// The raw URL is never logged because reset tokens travel in the path.
func (h *handler) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		h.metrics.ObserveRequest(c.FullPath(), c.Request.Method, status, elapsed)

		attrs := []any{
			"method", c.Request.Method,
			"route", redactedRoute(c),
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if id, ok := sessionUserID(c); ok {
			attrs = append(attrs, "user_id", id.String())
		}
		if code := lastErrorCode(c); code != "" {
			attrs = append(attrs, "code", code)
		}

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		h.logger.Log(c.Request.Context(), level, "http request", attrs...)
	}
}

func lastErrorCode(c *gin.Context) string {
	last := c.Errors.Last()
	if last == nil {
		return ""
	}
	return errutil.Code(last.Err)
}

// rateLimit throttles a route per client IP. A nil limiter disables it.
// Limiter failures let the request through so a Redis outage cannot lock
// users out.
func (h *handler) rateLimit(rule string, limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		decision, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			h.logger.WarnContext(c.Request.Context(), "rate limiter unavailable, allowing request",
				"rule", rule,
				"error", err.Error())
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			h.metrics.RecordRateLimited(rule)
			seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(max(seconds, 1)))
			h.fail(c, oops.Code(CodeRateLimited).With("rule", rule).Errorf("rate limit exceeded"))
			return
		}
		c.Next()
	}
}

// requireSession resolves the bearer token to a user or rejects the request.
func (h *handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			h.fail(c, oops.Code(CodeSessionMissing).Errorf("bearer token is required"))
			return
		}

		user, err := h.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Set(sessionUserKey, user)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
