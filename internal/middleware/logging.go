// internal/middleware/logging.go
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/solunex/core-backend/internal/models"
)

// AuditLogMiddleware appends mutating requests to the api_logs table
// and emits a structured request log line. Signature material is
// never persisted.
func AuditLogMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for GET requests and health checks
		if c.Request.Method == "GET" || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		actor := c.ClientIP()
		if admin, exists := c.Get("admin_username"); exists {
			if name, ok := admin.(string); ok {
				actor = name
			}
		}

		var requestData map[string]interface{}
		if len(requestBody) > 0 {
			json.Unmarshal(requestBody, &requestData)
		}
		redactSensitive(requestData)

		entry := &models.APILog{
			Actor:     actor,
			Action:    c.Request.Method + " " + c.Request.URL.Path,
			Endpoint:  c.Request.URL.Path,
			Details:   models.JSONB(requestData),
			IPAddress: c.ClientIP(),
		}

		// Persist asynchronously; the audit trail never blocks a request
		go func() {
			if err := db.Create(entry).Error; err != nil {
				logrus.WithError(err).Error("Failed to write audit log")
			}
		}()

		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": duration.Milliseconds(),
			"ip":       c.ClientIP(),
		}).Info("Request processed")
	}
}

func redactSensitive(data map[string]interface{}) {
	for key := range data {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "password") || strings.Contains(lower, "secret") {
			data[key] = "[redacted]"
		}
	}
}
