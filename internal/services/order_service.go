// internal/services/order_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/promptmint/promptmint-backend/internal/database"
	"github.com/promptmint/promptmint-backend/internal/models"
	"github.com/promptmint/promptmint-backend/internal/utils"
)

// OrderService converts a buyer's cart into a persisted order plus line
// items, each bound to a version snapshot.
type OrderService struct {
	db             *gorm.DB
	versionService *VersionService
}

type CreateOrderRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,max=50"`
}

type CreateOrderResult struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
}

const orderNumberAttempts = 3

func NewOrderService(db *gorm.DB, versionService *VersionService) *OrderService {
	return &OrderService{
		db:             db,
		versionService: versionService,
	}
}

// CreateOrder persists a pending order from the buyer's cart. The cart is
// left untouched so a failed or abandoned checkout does not destroy the
// buyer's selections; it is cleared only once payment later succeeds.
func (s *OrderService) CreateOrder(buyerID uuid.UUID, req *CreateOrderRequest) (*CreateOrderResult, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var cart models.Cart
	err := s.db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("cart_items.created_at ASC")
	}).Where("buyer_id = ?", buyerID).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	// Resolve every snapshot before opening the order transaction.
	// Snapshots are immutable shared rows, so one left behind by a failed
	// checkout is harmless, and resolving first keeps the duplicate-key
	// retry out of the surrounding transaction.
	snapshots := make(map[uuid.UUID]uuid.UUID, len(cart.Items))
	for _, item := range cart.Items {
		snapshot, err := s.versionService.Resolve(item.PromptID)
		if err != nil {
			return nil, fmt.Errorf("%w: prompt %s: %w", ErrOrderCreationFailed, item.PromptID, err)
		}
		snapshots[item.PromptID] = snapshot.ID
	}

	var total int64
	for _, item := range cart.Items {
		total += item.SubtotalJPY()
	}

	var order models.Order
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number, err := generateOrderNumber()
		if err != nil {
			return nil, fmt.Errorf("failed to generate order number: %w", err)
		}

		order = models.Order{
			OrderNumber:    number,
			BuyerID:        buyerID,
			TotalAmountJPY: total,
			Currency:       "JPY",
			Status:         models.OrderStatusPending,
			PaymentMethod:  req.PaymentMethod,
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&order).Error; err != nil {
				return err
			}

			for _, item := range cart.Items {
				orderItem := models.OrderItem{
					OrderID:         order.ID,
					PromptID:        item.PromptID,
					PromptVersionID: snapshots[item.PromptID],
					UnitPriceJPY:    item.UnitPriceJPY,
					Quantity:        item.Quantity,
				}
				if err := tx.Create(&orderItem).Error; err != nil {
					return fmt.Errorf("failed to create order item: %w", err)
				}
			}

			return nil
		})

		if err == nil {
			break
		}
		if database.IsUniqueViolation(err) && attempt < orderNumberAttempts-1 {
			// Order number collision: regenerate and retry. The whole
			// transaction rolled back, so no partial order is visible.
			logrus.WithField("order_number", number).Warn("Order number collision, retrying")
			order.ID = uuid.Nil
			continue
		}
		return nil, fmt.Errorf("%w: %w", ErrOrderCreationFailed, err)
	}

	logrus.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"buyer_id":     buyerID,
		"total_jpy":    total,
		"items":        len(cart.Items),
	}).Info("Order created")

	return &CreateOrderResult{OrderID: order.ID, OrderNumber: order.OrderNumber}, nil
}

// generateOrderNumber derives a human-readable, practically unique number
// from the current time plus a random suffix. Uniqueness is ultimately
// enforced by the database index; CreateOrder retries on collision.
func generateOrderNumber() (string, error) {
	suffix, err := utils.GenerateRandomString(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PM-%s-%s", time.Now().UTC().Format("20060102150405"), suffix), nil
}

func (s *OrderService) GetOrder(orderID, buyerID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.Preload("Items").Preload("Items.Prompt").Preload("Items.PromptVersion").
		Where("id = ? AND buyer_id = ?", orderID, buyerID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

func (s *OrderService) GetBuyerOrders(buyerID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	query := s.db.Model(&models.Order{}).Where("buyer_id = ?", buyerID).
		Preload("Items").Preload("Items.PromptVersion")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	allowedSortFields := []string{"created_at", "total_amount_jpy", "status", "paid_at"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch orders: %w", err)
	}

	return orders, total, nil
}

// GetOrders lists orders across buyers for the admin screens.
func (s *OrderService) GetOrders(status *models.OrderStatus, params utils.PaginationParams) ([]models.Order, int64, error) {
	query := s.db.Model(&models.Order{}).Preload("Buyer").Preload("Items")

	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	allowedSortFields := []string{"created_at", "total_amount_jpy", "status", "paid_at"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch orders: %w", err)
	}

	return orders, total, nil
}
