package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	apperrors "catalog-service/common/errors"
	"catalog-service/middleware"

	"github.com/gin-gonic/gin"
)

// AuthController serves login, logout and the current user.
type AuthController struct {
	auth      AuthServiceAPI
	validator *RequestValidator
	timeout   time.Duration
}

func NewAuthController(auth AuthServiceAPI, validator *RequestValidator) *AuthController {
	return &AuthController{auth: auth, validator: validator, timeout: DefaultContextTimeout}
}

// Login exchanges email and password for an access token.
func (ac *AuthController) Login(c *gin.Context) {
	fields, err := ac.validator.Fields(c, "email", "password")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	verr := apperrors.NewValidationError()
	email := strings.TrimSpace(fields["email"])
	password := fields["password"]
	if email == "" {
		verr.Add("email", "The email field is required.")
	}
	if password == "" {
		verr.Add("password", "The password field is required.")
	}
	if err := verr.OrNil(); err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ac.timeout)
	defer cancel()

	res, err := ac.auth.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid email or password"})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"user":       newUserResponse(res.User),
		"token":      res.Token,
		"token_type": "bearer",
		"expires_at": res.ExpiresAt.UTC(),
	})
}

// Logout revokes the token the request was authenticated with.
func (ac *AuthController) Logout(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		respondError(c, apperrors.ErrUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ac.timeout)
	defer cancel()

	if err := ac.auth.Logout(ctx, claims); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}

// User returns the authenticated user.
func (ac *AuthController) User(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		respondError(c, apperrors.ErrUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ac.timeout)
	defer cancel()

	user, err := ac.auth.CurrentUser(ctx, claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}
