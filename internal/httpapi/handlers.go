// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/latchkey/latchkey/internal/auth"
	"github.com/latchkey/latchkey/internal/observability"
)

// forgotPasswordMessage is returned whether or not the account exists.
const forgotPasswordMessage = "If an account exists for that email, a password reset link has been sent."

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type registerResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

type loginResponse struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{ID: u.ID.String(), Email: u.Email, CreatedAt: u.CreatedAt}
}

func (h *handler) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "latchkey auth API",
		"endpoints": []string{
			"POST " + APIPrefix + "/register",
			"POST " + APIPrefix + "/login",
			"POST " + APIPrefix + "/forgot-password",
			"POST " + APIPrefix + "/reset-password/:token",
			"GET " + APIPrefix + "/verify-token/:token",
			"GET " + APIPrefix + "/current-user",
			"POST " + APIPrefix + "/change-password",
		},
	})
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "email and password are required")
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	h.metrics.RecordAuthEvent(observability.EventRegister, result(err))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, registerResponse{
		Message: "user registered successfully",
		User:    toUserResponse(user),
	})
}

func (h *handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "email and password are required")
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	h.metrics.RecordAuthEvent(observability.EventLogin, result(err))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		Message:   "login successful",
		Token:     res.Token,
		UserID:    res.UserID.String(),
		ExpiresAt: res.ExpiresAt,
	})
}

// forgotPassword answers identically for known and unknown emails. Only a
// store failure changes the response, and that does not depend on the account.
func (h *handler) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "email is required")
		return
	}

	_, err := h.resets.RequestReset(c.Request.Context(), req.Email)
	h.metrics.RecordAuthEvent(observability.EventForgotPassword, result(err))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: forgotPasswordMessage})
}

func (h *handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "newPassword is required")
		return
	}

	err := h.resets.CompleteReset(c.Request.Context(), c.Param("token"), req.NewPassword)
	h.metrics.RecordAuthEvent(observability.EventResetPassword, result(err))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: "password has been reset successfully"})
}

func (h *handler) verifyToken(c *gin.Context) {
	if _, err := h.resets.ValidateToken(c.Request.Context(), c.Param("token")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "token is valid"})
}

func (h *handler) currentUser(c *gin.Context) {
	c.JSON(http.StatusOK, toUserResponse(sessionUser(c)))
}

func (h *handler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "currentPassword and newPassword are required")
		return
	}

	user := sessionUser(c)
	err := h.auth.ChangePassword(c.Request.Context(), user.ID, req.CurrentPassword, req.NewPassword)
	h.metrics.RecordAuthEvent(observability.EventChangePassword, result(err))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: "password changed successfully"})
}

// sessionUserKey stores the authenticated *auth.User in the gin context.
const sessionUserKey = "latchkey.session_user"

func sessionUser(c *gin.Context) *auth.User {
	user, _ := c.MustGet(sessionUserKey).(*auth.User)
	return user
}

// sessionUserID is used by the request logger.
func sessionUserID(c *gin.Context) (ulid.ULID, bool) {
	v, ok := c.Get(sessionUserKey)
	if !ok {
		return ulid.ULID{}, false
	}
	user, ok := v.(*auth.User)
	if !ok {
		return ulid.ULID{}, false
	}
	return user.ID, true
}
