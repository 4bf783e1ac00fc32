package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/services"
)

type Middleware struct {
	log  *logger.Logger
	auth services.Auth
}

func NewMiddleware(log *logger.Logger, auth services.Auth) *Middleware {
	return &Middleware{
		log:  log.With("middleware", "auth"),
		auth: auth,
	}
}

// RequireAuth verifies the bearer token and swaps in a request context
// carrying the resolved user. Store failures are not auth failures and
// surface as 500, never 401.
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, err := m.auth.SetContextFromToken(c.Request.Context(), extractToken(c))
		if err != nil {
			if errors.Is(err, services.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing credentials"})
				return
			}
			m.log.Error("Failed to resolve caller", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// EventSource cannot set headers, so SSE clients pass the token in the
	// query string instead.
	return c.Query("token")
}
