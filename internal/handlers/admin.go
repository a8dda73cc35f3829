// internal/handlers/admin.go
package handlers

import (
	"crypto/subtle"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/solunex/core-backend/internal/config"
	"github.com/solunex/core-backend/internal/models"
	"github.com/solunex/core-backend/internal/services"
	"github.com/solunex/core-backend/internal/utils"
)

// AdminHandler serves the operator console: login, listing, revocation,
// renewal and CSV export. Listing queries go straight to the database;
// lifecycle mutations go through the license service so the state
// machine rules hold everywhere.
type AdminHandler struct {
	db             *gorm.DB
	licenseService *services.LicenseService
	cfg            *config.Config
}

func NewAdminHandler(db *gorm.DB, licenseService *services.LicenseService, cfg *config.Config) *AdminHandler {
	return &AdminHandler{db: db, licenseService: licenseService, cfg: cfg}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates the configured admin account and issues a JWT,
// returned in the body and mirrored into a session cookie.
// POST /api/admin/login
func (h *AdminHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	if h.cfg.Admin.PasswordHash == "" {
		utils.InternalErrorResponse(c, "Admin account is not configured")
		return
	}

	usernameOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.cfg.Admin.Username)) == 1
	passwordErr := bcrypt.CompareHashAndPassword([]byte(h.cfg.Admin.PasswordHash), []byte(req.Password))
	if !usernameOK || passwordErr != nil {
		logrus.WithFields(logrus.Fields{"username": req.Username, "ip": c.ClientIP()}).
			Warn("Admin login rejected")
		utils.UnauthorizedResponse(c, "Invalid credentials")
		return
	}

	token, err := utils.GenerateAdminToken(req.Username, h.cfg.Admin.TokenTTL)
	if err != nil {
		logrus.WithError(err).Error("Failed to generate admin token")
		utils.InternalErrorResponse(c, "Failed to create session")
		return
	}

	secure := h.cfg.Environment == "production"
	c.SetCookie("sol_admin", token, h.cfg.Admin.TokenTTL*3600, "/", "", secure, true)

	utils.SuccessResponse(c, gin.H{
		"token":      token,
		"expires_in": h.cfg.Admin.TokenTTL * 3600,
	})
}

// Logout clears the session cookie.
// POST /api/admin/logout
func (h *AdminHandler) Logout(c *gin.Context) {
	c.SetCookie("sol_admin", "", -1, "/", "", false, true)
	utils.SuccessResponse(c, gin.H{"message": "Logged out"})
}

func (h *AdminHandler) filteredQuery(c *gin.Context) *gorm.DB {
	query := h.db.Model(&models.License{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if email := c.Query("email"); email != "" {
		query = query.Where("user_email ILIKE ?", "%"+email+"%")
	}
	if product := c.Query("product"); product != "" {
		query = query.Where("app_id = ?", product)
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("license_key ILIKE ? OR user_email ILIKE ? OR order_id ILIKE ?",
			"%"+search+"%", "%"+search+"%", "%"+search+"%")
	}

	return query
}

// ListLicenses returns a paginated, filterable license index.
// GET /api/admin/licenses
func (h *AdminHandler) ListLicenses(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	query := h.filteredQuery(c)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		logrus.WithError(err).Error("Failed to count licenses")
		utils.InternalErrorResponse(c, "Failed to fetch licenses")
		return
	}

	var licenses []models.License
	if err := utils.ApplyPagination(query.Order("created_at DESC"), params).Find(&licenses).Error; err != nil {
		logrus.WithError(err).Error("Failed to list licenses")
		utils.InternalErrorResponse(c, "Failed to fetch licenses")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(licenses, total, params))
}

// GetLicense returns the full stored record for one key.
// GET /api/admin/licenses/:key
func (h *AdminHandler) GetLicense(c *gin.Context) {
	var license models.License
	if err := h.db.Where("license_key = ?", c.Param("key")).First(&license).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFoundResponse(c, "License not found")
			return
		}
		logrus.WithError(err).Error("Failed to fetch license")
		utils.InternalErrorResponse(c, "Failed to fetch license")
		return
	}

	utils.SuccessResponse(c, license)
}

type revokeRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// RevokeLicense marks a license revoked. Revocation is terminal.
// POST /api/admin/licenses/:key/revoke
func (h *AdminHandler) RevokeLicense(c *gin.Context) {
	var req revokeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request body", nil)
			return
		}
	}

	key := c.Param("key")
	if err := h.licenseService.Revoke(c.Request.Context(), key, req.Reason); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || isNotFound(err) {
			utils.NotFoundResponse(c, "License not found")
			return
		}
		logrus.WithError(err).WithField("license_key", key).Error("Failed to revoke license")
		utils.InternalErrorResponse(c, "Failed to revoke license")
		return
	}

	utils.SuccessResponse(c, gin.H{"license_key": key, "status": "revoked"})
}

type renewRequest struct {
	Days int `json:"days" validate:"required,min=1,max=7300"`
}

// RenewLicense extends expiry and reactivates an expired license.
// POST /api/admin/licenses/:key/renew
func (h *AdminHandler) RenewLicense(c *gin.Context) {
	var req renewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	key := c.Param("key")
	license, err := h.licenseService.Renew(c.Request.Context(), key, req.Days)
	if err != nil {
		switch {
		case isNotFound(err):
			utils.NotFoundResponse(c, "License not found")
		case errors.Is(err, services.ErrLicenseRevoked):
			utils.ConflictResponse(c, "A revoked license cannot be renewed")
		default:
			logrus.WithError(err).WithField("license_key", key).Error("Failed to renew license")
			utils.InternalErrorResponse(c, "Failed to renew license")
		}
		return
	}

	utils.SuccessResponse(c, license)
}

type updateLicenseRequest struct {
	MaxDevices *int `json:"max_devices,omitempty" validate:"omitempty,min=0,max=1000"`
}

// UpdateLicense adjusts mutable policy fields. Seat limit changes never
// evict existing bindings; an over-limit license simply stops accepting
// new devices.
// PATCH /api/admin/licenses/:key
func (h *AdminHandler) UpdateLicense(c *gin.Context) {
	var req updateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	if req.MaxDevices == nil {
		utils.BadRequestResponse(c, "No updatable fields supplied", nil)
		return
	}

	var license models.License
	key := c.Param("key")
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("license_key = ?", key).First(&license).Error; err != nil {
			return err
		}
		return tx.Model(&license).Update("max_devices", *req.MaxDevices).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFoundResponse(c, "License not found")
			return
		}
		logrus.WithError(err).WithField("license_key", key).Error("Failed to update license")
		utils.InternalErrorResponse(c, "Failed to update license")
		return
	}

	utils.SuccessResponse(c, license)
}

// ExportLicenses streams the filtered license set as CSV.
// GET /api/admin/licenses/export
func (h *AdminHandler) ExportLicenses(c *gin.Context) {
	var licenses []models.License
	if err := h.filteredQuery(c).Order("created_at DESC").Find(&licenses).Error; err != nil {
		logrus.WithError(err).Error("Failed to export licenses")
		utils.InternalErrorResponse(c, "Failed to export licenses")
		return
	}

	filename := fmt.Sprintf("licenses-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename="+filename)

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	writer.Write([]string{
		"license_key", "email", "product", "status", "order_id",
		"amount", "currency", "max_devices", "bound_devices",
		"expires_at", "last_verified", "created_at",
	})

	for _, l := range licenses {
		orderID := ""
		if l.OrderID != nil {
			orderID = *l.OrderID
		}
		expiresAt := ""
		if l.ExpiresAt != nil {
			expiresAt = l.ExpiresAt.UTC().Format(time.RFC3339)
		}
		lastVerified := ""
		if l.LastVerified != nil {
			lastVerified = l.LastVerified.UTC().Format(time.RFC3339)
		}

		writer.Write([]string{
			l.LicenseKey,
			l.UserEmail,
			l.AppID,
			string(l.Status),
			orderID,
			strconv.FormatFloat(l.Amount, 'f', 2, 64),
			l.Currency,
			strconv.Itoa(l.MaxDevices),
			strconv.Itoa(len(l.BoundDevices)),
			expiresAt,
			lastVerified,
			l.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
}

// Health is the unauthenticated liveness probe.
// GET /health
func (h *AdminHandler) Health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.Ping() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "solunex-core",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
