package middleware

import (
	"net/http"
	"strings"

	"kuraos/utils"

	"github.com/gin-gonic/gin"
)

// SessionAuthMiddleware admits requests carrying the bearer token issued when
// the booking session started, and exposes its session ID as "sessionID".
func SessionAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			utils.JSONError(c, http.StatusUnauthorized, "Unauthorized", "Missing or invalid Authorization header")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		sessionID, err := utils.ExtractSessionIDFromToken(tokenString)
		if err != nil {
			utils.JSONError(c, http.StatusUnauthorized, "Unauthorized", "Invalid or expired session token")
			return
		}

		c.Set("sessionID", sessionID)
		c.Next()
	}
}
