package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"findoc-backend/internal/shared/auth"
	"findoc-backend/internal/shared/server/respond"
)

// Auth validates the bearer token and stores the authenticated identity on
// the request context. Requests without a valid token are rejected.
func Auth(signer *auth.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing Authorization header", nil)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Authorization header must be a bearer token", nil)
			return
		}

		claims, err := signer.Verify(strings.TrimSpace(token))
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired token", nil)
			return
		}

		c.Set("userId", claims.Subject)
		c.Set("userEmail", claims.Email)
		c.Next()
	}
}

// UserIDFromContext fetches the authenticated user ID stored by Auth.
func UserIDFromContext(c *gin.Context) string {
	return c.GetString("userId")
}
