// internal/router/router.go
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/solunex/core-backend/internal/config"
	"github.com/solunex/core-backend/internal/handlers"
	"github.com/solunex/core-backend/internal/middleware"
	"github.com/solunex/core-backend/internal/services"
	"github.com/solunex/core-backend/internal/signer"
	"github.com/solunex/core-backend/internal/store"
	"github.com/solunex/core-backend/internal/utils"
)

// Setup wires stores, services and handlers onto the gin engine.
func Setup(db *gorm.DB, cfg *config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	utils.SetJWTSecret(cfg.Admin.JWTSecret)

	licenseStore := store.NewGormLicenseStore(db)
	notificationService := services.NewNotificationService(cfg)
	licenseService := services.NewLicenseService(licenseStore, notificationService, cfg.License.AllowSingleSeatRebind)
	issuanceService := services.NewIssuanceService(licenseStore, notificationService, cfg.License)

	authenticator := signer.NewAuthenticator(
		cfg.HMAC.Secret,
		time.Duration(cfg.HMAC.TimestampTolerance)*time.Second,
		time.Duration(cfg.HMAC.NonceTTL)*time.Second,
		buildNonceStore(cfg),
	)

	licenseHandler := handlers.NewLicenseHandler(licenseService)
	orderHandler := handlers.NewOrderHandler(issuanceService)
	adminHandler := handlers.NewAdminHandler(db, licenseService, cfg)
	paymentHandler := handlers.NewPaymentHandler(issuanceService, cfg)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	r.Use(middleware.AuditLogMiddleware(db))
	r.Use(middleware.GeneralRateLimit())

	r.GET("/health", adminHandler.Health)

	// Client verification surface: static key plus request signature.
	license := r.Group("/api/v1/license")
	license.Use(middleware.APIKeyRequired(cfg.License.APIKey))
	license.Use(middleware.HMACRequired(authenticator, cfg.HMAC.AllowLocalBypass))
	{
		license.POST("/validate", licenseHandler.ValidateLicense)
		license.POST("/activate", licenseHandler.ActivateLicense)
		license.GET("/ping/:key", licenseHandler.PingLicense)
		license.GET("/describe/:key", licenseHandler.DescribeLicense)
	}

	// Trusted backend surface for the order pipeline.
	internal := r.Group("/api/internal")
	internal.Use(middleware.HMACRequired(authenticator, cfg.HMAC.AllowLocalBypass))
	{
		internal.POST("/orders", orderHandler.CreateOrder)
	}

	// Stripe signs its own payloads; no HMAC gate here.
	r.POST("/api/webhooks/stripe", paymentHandler.HandleStripeWebhook)

	admin := r.Group("/api/admin")
	{
		admin.POST("/login", middleware.AuthRateLimit(), adminHandler.Login)
		admin.POST("/logout", adminHandler.Logout)

		protected := admin.Group("")
		protected.Use(middleware.AdminRequired())
		{
			protected.GET("/licenses", adminHandler.ListLicenses)
			protected.GET("/licenses/export", adminHandler.ExportLicenses)
			protected.GET("/licenses/:key", adminHandler.GetLicense)
			protected.PATCH("/licenses/:key", adminHandler.UpdateLicense)
			protected.POST("/licenses/:key/revoke", adminHandler.RevokeLicense)
			protected.POST("/licenses/:key/renew", adminHandler.RenewLicense)
		}
	}

	return r
}

// buildNonceStore picks the replay-protection backend: Redis when a URL
// is configured, wrapped with the in-process fallback; plain in-process
// otherwise.
func buildNonceStore(cfg *config.Config) signer.NonceStore {
	local := signer.NewMemoryNonceStore()

	if cfg.Redis.URL == "" {
		logrus.Warn("REDIS_URL not set, nonce replay protection is process-local only")
		return local
	}

	client, err := signer.ConnectRedis(cfg.Redis.URL, time.Duration(cfg.Redis.DialMs)*time.Millisecond)
	if err != nil {
		logrus.WithError(err).Warn("Redis unavailable, nonce replay protection is process-local only")
		return local
	}

	shared := signer.NewRedisNonceStore(client, time.Duration(cfg.Redis.TimeoutMs)*time.Millisecond)
	return signer.NewFallbackNonceStore(shared, local)
}
