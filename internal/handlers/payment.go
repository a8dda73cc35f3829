// internal/handlers/payment.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/solunex/core-backend/internal/config"
	"github.com/solunex/core-backend/internal/services"
	"github.com/solunex/core-backend/internal/utils"
)

// PaymentHandler bridges Stripe checkout completions into issuance.
// Webhook deliveries are at-least-once; the issuance path is idempotent
// on the session id, so duplicate events are harmless.
type PaymentHandler struct {
	issuanceService *services.IssuanceService
	cfg             *config.Config
}

func NewPaymentHandler(issuanceService *services.IssuanceService, cfg *config.Config) *PaymentHandler {
	return &PaymentHandler{issuanceService: issuanceService, cfg: cfg}
}

// HandleStripeWebhook verifies the event signature and issues a license
// for completed checkout sessions.
// POST /api/webhooks/stripe
func (h *PaymentHandler) HandleStripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		utils.BadRequestResponse(c, "Failed to read request body", nil)
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.cfg.Payment.StripeWebhookSecret)
	if err != nil {
		logrus.WithError(err).Warn("Stripe webhook signature verification failed")
		utils.BadRequestResponse(c, "Invalid webhook signature", nil)
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		if err := h.handleCheckoutCompleted(c, event); err != nil {
			logrus.WithError(err).WithField("event_id", event.ID).Error("Failed to process checkout completion")
			// Non-2xx makes Stripe redeliver; issuance is idempotent so
			// the retry is safe.
			utils.InternalErrorResponse(c, "Failed to process event")
			return
		}
	default:
		logrus.WithField("type", event.Type).Debug("Ignoring unhandled Stripe event")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *PaymentHandler) handleCheckoutCompleted(c *gin.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return err
	}

	email := ""
	if session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
	}
	if email == "" {
		email = session.CustomerEmail
	}

	product := session.Metadata["product"]
	if product == "" {
		product = session.ClientReferenceID
	}

	order := &services.Order{
		OrderID:          session.ID,
		Email:            email,
		Product:          product,
		PaymentReference: session.ID,
		Amount:           float64(session.AmountTotal) / 100,
		Currency:         string(session.Currency),
	}

	if name, ok := session.Metadata["customer_name"]; ok {
		order.Name = name
	}
	if days, err := strconv.Atoi(session.Metadata["validity_days"]); err == nil && days > 0 {
		order.Days = days
	}
	if seats, err := strconv.Atoi(session.Metadata["max_devices"]); err == nil && seats != 0 {
		order.MaxDevices = seats
	}

	result, err := h.issuanceService.Issue(c.Request.Context(), order)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"session_id":  session.ID,
		"license_key": result.License.LicenseKey,
		"idempotent":  string(result.Idempotent),
	}).Info("Checkout session processed")

	return nil
}
