// internal/middleware/apikey.go
package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/solunex/core-backend/internal/utils"
)

const apiKeyHeader = "X-Solunex-Key"

// APIKeyRequired restricts license endpoints to holders of the static
// service key. An empty configured key disables the check (dev only);
// the HMAC gate still applies either way.
func APIKeyRequired(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		supplied := c.GetHeader(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(apiKey)) != 1 {
			utils.UnauthorizedResponse(c, "Invalid or missing API key")
			c.Abort()
			return
		}

		c.Next()
	}
}
