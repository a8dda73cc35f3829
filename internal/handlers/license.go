// internal/handlers/license.go
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/solunex/core-backend/internal/models"
	"github.com/solunex/core-backend/internal/services"
	"github.com/solunex/core-backend/internal/store"
	"github.com/solunex/core-backend/internal/utils"
)

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

type LicenseHandler struct {
	licenseService *services.LicenseService
}

func NewLicenseHandler(licenseService *services.LicenseService) *LicenseHandler {
	return &LicenseHandler{licenseService: licenseService}
}

type verifyRequest struct {
	LicenseKey string            `json:"license_key" validate:"required,license_key"`
	DeviceID   string            `json:"device_id,omitempty" validate:"omitempty,device_id"`
	AppID      string            `json:"app_id,omitempty" validate:"omitempty,max=100"`
	Meta       map[string]string `json:"meta,omitempty"`
}

type deviceView struct {
	DeviceID string    `json:"device_id"`
	BoundAt  time.Time `json:"bound_at"`
	LastSeen time.Time `json:"last_seen"`
}

type licenseView struct {
	LicenseKey   string       `json:"license_key"`
	Product      string       `json:"product"`
	Status       string       `json:"status"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
	MaxDevices   int          `json:"max_devices"`
	BoundDevices []deviceView `json:"bound_devices"`
}

type verifyResponse struct {
	Valid   bool         `json:"valid"`
	Outcome string       `json:"outcome"`
	License *licenseView `json:"license,omitempty"`
}

func newLicenseView(license *models.License) *licenseView {
	if license == nil {
		return nil
	}

	devices := make([]deviceView, 0, len(license.BoundDevices))
	for _, d := range license.BoundDevices {
		devices = append(devices, deviceView{DeviceID: d.DeviceID, BoundAt: d.BoundAt, LastSeen: d.LastSeen})
	}

	return &licenseView{
		LicenseKey:   license.LicenseKey,
		Product:      license.AppID,
		Status:       string(license.Status),
		ExpiresAt:    license.ExpiresAt,
		MaxDevices:   license.MaxDevices,
		BoundDevices: devices,
	}
}

func outcomeStatus(outcome services.Outcome) int {
	switch outcome {
	case services.OutcomeActive, services.OutcomeCanBind:
		return http.StatusOK
	case services.OutcomeNotFound:
		return http.StatusNotFound
	case services.OutcomeRequiresDevice:
		return http.StatusBadRequest
	case services.OutcomeDeviceLimitReached:
		return http.StatusConflict
	default:
		// revoked, expired, app_mismatch
		return http.StatusForbidden
	}
}

func (h *LicenseHandler) respondVerification(c *gin.Context, result *services.VerificationResult) {
	payload := verifyResponse{
		Valid:   result.Valid(),
		Outcome: string(result.Outcome),
		License: newLicenseView(result.License),
	}

	status := outcomeStatus(result.Outcome)
	if status == http.StatusOK {
		utils.SuccessResponse(c, payload)
		return
	}

	c.JSON(status, utils.APIResponse{Success: false, Data: payload, Error: &utils.APIError{
		Code:    "LICENSE_" + strings.ToUpper(string(result.Outcome)),
		Message: "License verification failed",
	}})
}

// ValidateLicense checks a key without binding a device.
// POST /api/v1/license/validate
func (h *LicenseHandler) ValidateLicense(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	result, err := h.licenseService.Validate(c.Request.Context(), req.LicenseKey, req.DeviceID, req.AppID)
	if err != nil {
		logrus.WithError(err).Error("License validation failed")
		utils.InternalErrorResponse(c, "Failed to validate license")
		return
	}

	h.respondVerification(c, result)
}

// ActivateLicense binds the calling device to the license.
// POST /api/v1/license/activate
func (h *LicenseHandler) ActivateLicense(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	if !utils.ValidateDeviceMeta(req.Meta) {
		utils.BadRequestResponse(c, "Device metadata exceeds allowed size", nil)
		return
	}

	result, err := h.licenseService.Activate(c.Request.Context(), req.LicenseKey, req.DeviceID, req.Meta, req.AppID)
	if err != nil {
		logrus.WithError(err).Error("License activation failed")
		utils.InternalErrorResponse(c, "Failed to activate license")
		return
	}

	h.respondVerification(c, result)
}

// PingLicense is the lightweight status probe clients poll with.
// GET /api/v1/license/ping/:key
func (h *LicenseHandler) PingLicense(c *gin.Context) {
	key := c.Param("key")

	result, err := h.licenseService.Validate(c.Request.Context(), key, "", "")
	if err != nil {
		logrus.WithError(err).Error("License ping failed")
		utils.InternalErrorResponse(c, "Failed to check license")
		return
	}

	status := "unknown"
	if result.License != nil {
		status = string(result.License.Status)
	}

	c.JSON(outcomeStatus(result.Outcome), gin.H{
		"valid":   result.Valid(),
		"outcome": string(result.Outcome),
		"status":  status,
	})
}

// DescribeLicense returns the stored record without side effects; no
// lazy expiry transition is persisted here.
// GET /api/v1/license/describe/:key
func (h *LicenseHandler) DescribeLicense(c *gin.Context) {
	key := c.Param("key")

	license, err := h.licenseService.Describe(c.Request.Context(), key)
	if err != nil {
		if isNotFound(err) {
			utils.NotFoundResponse(c, "License not found")
			return
		}
		logrus.WithError(err).Error("Failed to describe license")
		utils.InternalErrorResponse(c, "Failed to fetch license")
		return
	}

	utils.SuccessResponse(c, newLicenseView(license))
}
