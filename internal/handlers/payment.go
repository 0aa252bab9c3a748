// internal/handlers/payment.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/promptmint/promptmint-backend/internal/config"
	"github.com/promptmint/promptmint-backend/internal/services"
	"github.com/promptmint/promptmint-backend/internal/utils"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
	config         *config.Config
}

func NewPaymentHandler(paymentService *services.PaymentService, config *config.Config) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		config:         config,
	}
}

// POST /orders/:id/payment-intent
func (h *PaymentHandler) CreatePaymentIntent(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid order ID", nil)
		return
	}

	intent, err := h.paymentService.CreatePaymentIntent(buyerID, orderID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			utils.NotFoundResponse(c, "Order")
			return
		}
		utils.BadRequestResponse(c, "Failed to create payment intent", err.Error())
		return
	}

	utils.SuccessResponse(c, intent)
}

// POST /webhooks/stripe
//
// Stripe retries deliveries until it sees a 2xx, so the handler only
// returns errors for requests that can never succeed (bad signature,
// malformed payload). Processing failures are returned as 500 to trigger
// a retry; the downstream posting is idempotent.
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 65536))
	if err != nil {
		utils.BadRequestResponse(c, "Failed to read payload", nil)
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.config.Payment.StripeWebhookSecret)
	if err != nil {
		logrus.WithError(err).Warn("Stripe webhook signature verification failed")
		utils.BadRequestResponse(c, "Invalid signature", nil)
		return
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			utils.BadRequestResponse(c, "Malformed event payload", nil)
			return
		}

		orderID, err := uuid.Parse(pi.Metadata["order_id"])
		if err != nil {
			logrus.WithField("payment_id", pi.ID).Warn("Payment intent without order metadata")
			// Not ours; acknowledge so Stripe stops retrying.
			utils.SuccessResponse(c, gin.H{"received": true})
			return
		}

		result := &services.PaymentResult{
			OrderID:           orderID,
			Succeeded:         event.Type == "payment_intent.succeeded",
			ProviderReference: pi.ID,
		}
		if err := h.paymentService.HandlePaymentResult(result); err != nil {
			if errors.Is(err, services.ErrOrderNotFound) {
				// No such order here (e.g. an intent from another
				// environment): a retry can never succeed, so acknowledge.
				logrus.WithFields(logrus.Fields{
					"payment_id": pi.ID,
					"order_id":   orderID,
				}).Warn("Payment result for unknown order")
				utils.SuccessResponse(c, gin.H{"received": true})
				return
			}
			utils.InternalErrorResponse(c, err.Error())
			return
		}
	default:
		logrus.WithField("type", event.Type).Debug("Ignoring unhandled Stripe event")
	}

	utils.SuccessResponse(c, gin.H{"received": true})
}
