// Package middleware provides HTTP middleware for the REST surface.
package middleware

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/notehub/collab/internal/config"
	"github.com/notehub/collab/internal/dto"
	"github.com/notehub/collab/internal/errors"
	"github.com/notehub/collab/internal/models"
	"github.com/notehub/collab/internal/session"
	"github.com/notehub/collab/internal/usersvc"
)

const userContextKey = "user"

// SessionAuth resolves the same signed session cookie the realtime
// admitter verifies and attaches the authenticated user to the gin
// context, rejecting the request if the cookie is missing or invalid.
func SessionAuth(sessions session.Service, users usersvc.Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		user, apiErr := resolveUser(c.Request, sessions, users, cfg)
		if apiErr != nil {
			writeError(c, apiErr)
			c.Abort()
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// OptionalSessionAuth behaves like SessionAuth but never aborts the
// request; a missing or invalid cookie simply leaves no user in context.
func OptionalSessionAuth(sessions session.Service, users usersvc.Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, apiErr := resolveUser(c.Request, sessions, users, cfg); apiErr == nil {
			c.Set(userContextKey, user)
		}
		c.Next()
	}
}

func resolveUser(r *http.Request, sessions session.Service, users usersvc.Service, cfg *config.Config) (*models.User, *errors.APIError) {
	cookie, err := r.Cookie(cfg.Session.CookieName)
	if err != nil {
		return nil, errors.NewUnauthorizedError("missing session cookie")
	}

	value, err := url.PathUnescape(cookie.Value)
	if err != nil {
		value = cookie.Value
	}

	sessionID, err := session.ParseCookie(value, cfg.Session.Secret)
	if err != nil {
		return nil, errors.NewUnauthorizedError("invalid session cookie")
	}

	username, err := sessions.UsernameFromSessionID(r.Context(), sessionID)
	if err != nil {
		return nil, errors.NewUnauthorizedError("session expired or unknown")
	}

	user, err := users.ByUsername(username)
	if err != nil {
		return nil, errors.NewUnauthorizedError("unknown user")
	}

	return user, nil
}

// AdminOnly rejects any request whose authenticated user (attached by a
// preceding SessionAuth) does not have the admin flag set. Must run after
// SessionAuth in the middleware chain.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || !user.IsAdmin {
			writeError(c, errors.NewForbiddenError("admin access required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// isPublicPath checks if the path should skip authentication.
func isPublicPath(path string) bool {
	publicPaths := []string{
		"/health",
		"/metrics",
		"/api/v1/auth/login",
		"/realtime/",
	}

	for _, publicPath := range publicPaths {
		if strings.HasPrefix(path, publicPath) {
			return true
		}
	}

	return false
}

// CurrentUser extracts the authenticated user set by SessionAuth or
// OptionalSessionAuth from the gin context.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(userContextKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

func writeError(c *gin.Context, apiErr *errors.APIError) {
	apiErr.WithRequestID(c.GetString("request_id"))
	c.JSON(apiErr.HTTPStatus(), dto.ErrorResponse{
		BaseResponse: dto.BaseResponse{
			Success:   false,
			Timestamp: time.Now(),
			RequestID: apiErr.RequestID,
		},
		Error: &dto.ErrorDetail{
			Code:    string(apiErr.Code),
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	})
}
