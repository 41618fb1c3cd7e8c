// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/latchkey/latchkey/internal/auth"
	"github.com/latchkey/latchkey/pkg/errutil"
)

// Codes raised by this package.
const (
	CodeRequestInvalid = "REQUEST_INVALID"
	CodeSessionMissing = "SESSION_MISSING"
	CodeRateLimited    = "RATE_LIMITED"
)

// Stable client messages.
const (
	msgInvalidCredentials = "invalid email or password"
	msgInvalidResetToken  = "invalid or expired reset token"
	msgUnauthorized       = "authentication required"
	msgRateLimited        = "too many requests, please try again later"
	msgInternal           = "internal server error"
)

type errorBody struct {
	Error string `json:"error"`
}

// clientError describes how an error code is shown to clients. An empty
// message means the error's own message is safe to return.
type clientError struct {
	status  int
	message string
}

var clientErrors = map[string]clientError{
	auth.CodeInvalidEmail:   {http.StatusBadRequest, ""},
	auth.CodeWeakPassword:   {http.StatusBadRequest, ""},
	auth.CodeEmptyPassword:  {http.StatusBadRequest, ""},
	auth.CodeDuplicateEmail: {http.StatusBadRequest, ""},
	CodeRequestInvalid:      {http.StatusBadRequest, ""},

	auth.CodeInvalidCredentials: {http.StatusUnauthorized, msgInvalidCredentials},

	// Expired and unknown tokens are indistinguishable to clients.
	auth.CodeResetTokenInvalid: {http.StatusBadRequest, msgInvalidResetToken},
	auth.CodeResetTokenExpired: {http.StatusBadRequest, msgInvalidResetToken},

	auth.CodeSessionInvalidSignature: {http.StatusUnauthorized, msgUnauthorized},
	auth.CodeSessionExpired:          {http.StatusUnauthorized, msgUnauthorized},
	CodeSessionMissing:               {http.StatusUnauthorized, msgUnauthorized},

	CodeRateLimited: {http.StatusTooManyRequests, msgRateLimited},
}

// classify maps err to a status and client message.
func classify(err error) (int, string) {
	ce, ok := clientErrors[errutil.Code(err)]
	if !ok {
		return http.StatusInternalServerError, msgInternal
	}
	if ce.message != "" {
		return ce.status, ce.message
	}
	if oopsErr, isOops := oops.AsOops(err); isOops {
		return ce.status, oopsErr.Error()
	}
	return ce.status, err.Error()
}

// fail writes the client view of err. Internal errors are logged with their
// full context and never described to the client.
func (h *handler) fail(c *gin.Context, err error) {
	status, message := classify(err)
	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(c.Request.Context(), h.logger, "request failed", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody{Error: message})
}

func (h *handler) badRequest(c *gin.Context, message string) {
	h.fail(c, oops.Code(CodeRequestInvalid).Errorf("%s", message))
}

func (h *handler) recover(c *gin.Context, recovered any) {
	errutil.LogErrorContext(c.Request.Context(), h.logger, "panic serving request",
		oops.Code("HTTPAPI_PANIC").With("route", c.FullPath()).Errorf("%v", recovered))
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: msgInternal})
}

// result is the auth event label for err.
func result(err error) string {
	if err == nil {
		return "success"
	}
	if code := errutil.Code(err); code != "" {
		if _, known := clientErrors[code]; known {
			return code
		}
	}
	return "error"
}
