// internal/services/payment_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"gorm.io/gorm"

	"github.com/promptmint/promptmint-backend/internal/config"
	"github.com/promptmint/promptmint-backend/internal/models"
)

// PaymentService owns the glue around the external payment gateway: it
// creates the Stripe PaymentIntent for a pending order and consumes the
// gateway's result. Card tokenization and charge execution stay with
// Stripe; the core only ever sees "payment succeeded for order X".
type PaymentService struct {
	db            *gorm.DB
	config        *config.Config
	ledgerService *LedgerService
	cartService   *CartService
}

type PaymentIntentResponse struct {
	ClientSecret string `json:"client_secret"`
	PaymentID    string `json:"payment_id"`
	Status       string `json:"status"`
}

// PaymentResult is the shape delivered by the gateway callback. Delivery is
// at-least-once, so handling must be idempotent.
type PaymentResult struct {
	OrderID           uuid.UUID `json:"order_id" validate:"required"`
	Succeeded         bool      `json:"succeeded"`
	ProviderReference string    `json:"provider_reference"`
}

func NewPaymentService(db *gorm.DB, config *config.Config, ledgerService *LedgerService, cartService *CartService) *PaymentService {
	// Initialize Stripe
	stripe.Key = config.Payment.StripeSecretKey

	return &PaymentService{
		db:            db,
		config:        config,
		ledgerService: ledgerService,
		cartService:   cartService,
	}
}

// CreatePaymentIntent opens a Stripe PaymentIntent for the buyer's pending
// order. JPY is a zero-decimal currency in Stripe, so the amount is passed
// through unscaled.
func (s *PaymentService) CreatePaymentIntent(buyerID, orderID uuid.UUID) (*PaymentIntentResponse, error) {
	var order models.Order
	err := s.db.Where("id = ? AND buyer_id = ?", orderID, buyerID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if order.Status != models.OrderStatusPending {
		return nil, fmt.Errorf("order %s is not awaiting payment", order.OrderNumber)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(order.TotalAmountJPY),
		Currency: stripe.String(string(stripe.CurrencyJPY)),
	}
	params.AddMetadata("order_id", order.ID.String())
	params.AddMetadata("order_number", order.OrderNumber)

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &PaymentIntentResponse{
		ClientSecret: pi.ClientSecret,
		PaymentID:    pi.ID,
		Status:       string(pi.Status),
	}, nil
}

// HandlePaymentResult applies the gateway's verdict for an order. On
// success the order is marked paid, the sale's ledger entries are posted
// exactly once, and the purchased items are cleared from the buyer's cart.
// Redelivered callbacks are no-ops.
func (s *PaymentService) HandlePaymentResult(result *PaymentResult) error {
	var order models.Order
	err := s.db.Preload("Items").First(&order, "id = ?", result.OrderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}

	if !result.Succeeded {
		if order.Status == models.OrderStatusPending {
			if err := s.db.Model(&order).Update("status", models.OrderStatusFailed).Error; err != nil {
				return fmt.Errorf("failed to mark order failed: %w", err)
			}
			logrus.WithField("order_id", order.ID).Info("Order marked failed after payment failure")
		}
		return nil
	}

	if order.Status == models.OrderStatusPending {
		now := time.Now()
		err := s.db.Model(&order).Updates(map[string]interface{}{
			"status":            models.OrderStatusPaid,
			"payment_reference": result.ProviderReference,
			"paid_at":           now,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to mark order paid: %w", err)
		}
		order.Status = models.OrderStatusPaid
	}

	if order.Status != models.OrderStatusPaid {
		// Terminal non-paid state (refunded, cancelled): nothing to post.
		return nil
	}

	// Posting is idempotent per order; a duplicate means an earlier
	// delivery already credited the sellers.
	if err := s.ledgerService.PostSaleEntries(order.ID); err != nil {
		if errors.Is(err, ErrDuplicatePosting) {
			return nil
		}
		return fmt.Errorf("failed to post sale entries: %w", err)
	}

	s.afterFirstCapture(&order)
	return nil
}

// afterFirstCapture runs the non-financial follow-ups of a first successful
// capture. Failures here are logged, never surfaced to the gateway.
func (s *PaymentService) afterFirstCapture(order *models.Order) {
	promptIDs := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		promptIDs = append(promptIDs, item.PromptID)

		if err := s.db.Model(&models.Prompt{}).Where("id = ?", item.PromptID).
			UpdateColumn("sales_count", gorm.Expr("sales_count + ?", item.Quantity)).Error; err != nil {
			logrus.WithError(err).WithField("prompt_id", item.PromptID).Warn("Failed to bump sales count")
		}
	}

	if err := s.cartService.ClearPurchased(s.db, order.BuyerID, promptIDs); err != nil {
		logrus.WithError(err).WithField("order_id", order.ID).Warn("Failed to clear purchased cart items")
	}
}
