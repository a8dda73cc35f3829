// internal/middleware/hmac.go
package middleware

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/solunex/core-backend/internal/signer"
	"github.com/solunex/core-backend/internal/utils"
)

// HMACRequired gates protected endpoints behind the request signature
// check. allowLocalBypass skips the gate for loopback callers; it is a
// dev-only escape hatch and config validation refuses it in production.
func HMACRequired(authenticator *signer.Authenticator, allowLocalBypass bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowLocalBypass && isLoopback(c.ClientIP()) {
			c.Next()
			return
		}

		// The body is consumed for canonicalization and restored for
		// the handler's own binding.
		var rawBody []byte
		if c.Request.Body != nil {
			rawBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(rawBody))
		}

		err := authenticator.Authenticate(
			c.Request.Context(),
			c.Request.Header,
			c.Request.Method,
			c.Request.URL.Path,
			c.Request.URL.RawQuery,
			rawBody,
		)
		if err == nil {
			c.Next()
			return
		}

		switch {
		case errors.Is(err, signer.ErrNotConfigured):
			utils.InternalErrorResponse(c, "Request signing is not configured")
		case errors.Is(err, signer.ErrMissingHeaders):
			utils.ErrorResponse(c, http.StatusUnauthorized, "MISSING_HEADERS", "Missing signature headers", nil)
		case errors.Is(err, signer.ErrInvalidTimestamp):
			utils.ErrorResponse(c, http.StatusBadRequest, "INVALID_TIMESTAMP", "Invalid timestamp", nil)
		case errors.Is(err, signer.ErrTimestampOutOfWindow):
			utils.ErrorResponse(c, http.StatusUnauthorized, "TIMESTAMP_OUT_OF_WINDOW", "Timestamp outside allowed window", nil)
		case errors.Is(err, signer.ErrReplayedNonce):
			utils.ErrorResponse(c, http.StatusUnauthorized, "REPLAYED_NONCE", "Nonce already used", nil)
		case errors.Is(err, signer.ErrInvalidSignature):
			utils.ErrorResponse(c, http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid signature", nil)
		default:
			utils.InternalErrorResponse(c, "Authentication unavailable")
		}
		c.Abort()
	}
}

func isLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
