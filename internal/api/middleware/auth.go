package middleware

import (
	"fmt"
	"log/slog"
	"strings"

	"ctchen222/tictactoe-solo/internal/api/response"
	"ctchen222/tictactoe-solo/internal/auth"

	"github.com/gin-gonic/gin"
)

// Authorizer checks that a token controls a session.
type Authorizer interface {
	Authorize(token, sessionID string) error
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// SessionAuth requires a bearer token issued for the session named by the :id path parameter.
func SessionAuth(authorizer Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.AbortWithError(c, fmt.Errorf("%w: missing bearer token", auth.ErrInvalidToken))
			return
		}

		id := c.Param("id")
		if err := authorizer.Authorize(token, id); err != nil {
			slog.WarnContext(c.Request.Context(), "Rejected session token", "session.id", id, "error", err)
			response.AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
