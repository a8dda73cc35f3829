// internal/middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/solunex/core-backend/internal/utils"
)

const adminCookie = "sol_admin"

// AdminRequired authenticates administrative calls with the admin JWT,
// accepted either as a Bearer token or the session cookie the login
// endpoint sets.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""

		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}

		if token == "" {
			if cookie, err := c.Cookie(adminCookie); err == nil {
				token = cookie
			}
		}

		if token == "" {
			utils.UnauthorizedResponse(c, "Not authenticated")
			c.Abort()
			return
		}

		claims, err := utils.ValidateAdminToken(token)
		if err != nil {
			utils.UnauthorizedResponse(c, "Invalid or expired session")
			c.Abort()
			return
		}

		c.Set("admin_username", claims.Username)
		c.Next()
	}
}
