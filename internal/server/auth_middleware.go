package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/langconnect/mcp-control-plane/internal/authtoken"
)

const userIDContextKey = "user_id"

// RequireAuth validates the bearer token on every request and stores the
// authenticated user's ID in the gin context for downstream handlers.
func RequireAuth(tokens *authtoken.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{
				Success: false,
				Error:   "missing bearer token",
			})
			return
		}

		claims, err := tokens.Validate(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{
				Success: false,
				Error:   "invalid or expired token",
			})
			return
		}

		c.Set(userIDContextKey, claims.UserID)
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	userID, _ := c.Get(userIDContextKey)
	id, _ := userID.(string)
	return id
}
