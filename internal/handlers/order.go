// internal/handlers/order.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/solunex/core-backend/internal/services"
	"github.com/solunex/core-backend/internal/utils"
)

type OrderHandler struct {
	issuanceService *services.IssuanceService
}

func NewOrderHandler(issuanceService *services.IssuanceService) *OrderHandler {
	return &OrderHandler{issuanceService: issuanceService}
}

// CreateOrder issues a license for a purchase. Retried orders get the
// original license back, never a second key.
// POST /api/internal/orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var order services.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	result, err := h.issuanceService.Issue(c.Request.Context(), &order)
	if err != nil {
		if errs := utils.GetValidationErrors(errors.Unwrap(err)); len(errs) > 0 {
			utils.ValidationErrorResponse(c, errs)
			return
		}
		if errors.Is(err, services.ErrKeyspaceExhausted) {
			logrus.WithField("order_id", order.OrderID).Error("Issuance aborted, key generation exhausted")
			utils.InternalErrorResponse(c, "Unable to issue license")
			return
		}
		logrus.WithError(err).Error("Order processing failed")
		utils.InternalErrorResponse(c, "Failed to process order")
		return
	}

	payload := gin.H{
		"license":    newLicenseView(result.License),
		"email":      result.License.UserEmail,
		"idempotent": string(result.Idempotent),
	}

	if result.Created {
		utils.CreatedResponse(c, payload)
		return
	}
	utils.SuccessResponse(c, payload)
}
