// internal/services/cart_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/promptmint/promptmint-backend/internal/models"
	"github.com/promptmint/promptmint-backend/internal/utils"
)

type CartService struct {
	db *gorm.DB
}

type AddCartItemRequest struct {
	PromptID uuid.UUID `json:"prompt_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,min=1,max=99"`
}

func NewCartService(db *gorm.DB) *CartService {
	return &CartService{db: db}
}

// GetCart returns the buyer's cart, creating an empty one on first use.
func (s *CartService) GetCart(buyerID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("cart_items.created_at ASC")
	}).Preload("Items.Prompt").
		Where("buyer_id = ?", buyerID).
		First(&cart).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		cart = models.Cart{BuyerID: buyerID}
		if err := s.db.Create(&cart).Error; err != nil {
			return nil, fmt.Errorf("failed to create cart: %w", err)
		}
		return &cart, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	return &cart, nil
}

// AddItem puts a published prompt into the cart, capturing the unit price
// at add-time. Adding the same prompt again replaces the quantity.
func (s *CartService) AddItem(buyerID uuid.UUID, req *AddCartItemRequest) (*models.CartItem, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var prompt models.Prompt
	if err := s.db.First(&prompt, "id = ?", req.PromptID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("failed to load prompt: %w", err)
	}

	if prompt.Status != models.PromptStatusPublished {
		return nil, ErrPromptNotPublished
	}

	cart, err := s.GetCart(buyerID)
	if err != nil {
		return nil, err
	}

	var item models.CartItem
	err = s.db.Where("cart_id = ? AND prompt_id = ?", cart.ID, prompt.ID).First(&item).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		item = models.CartItem{
			CartID:       cart.ID,
			PromptID:     prompt.ID,
			Quantity:     req.Quantity,
			UnitPriceJPY: prompt.PriceJPY,
		}
		if err := s.db.Create(&item).Error; err != nil {
			return nil, fmt.Errorf("failed to add cart item: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load cart item: %w", err)
	default:
		item.Quantity = req.Quantity
		if err := s.db.Save(&item).Error; err != nil {
			return nil, fmt.Errorf("failed to update cart item: %w", err)
		}
	}

	return &item, nil
}

func (s *CartService) RemoveItem(buyerID, promptID uuid.UUID) error {
	cart, err := s.GetCart(buyerID)
	if err != nil {
		return err
	}

	result := s.db.Where("cart_id = ? AND prompt_id = ?", cart.ID, promptID).
		Delete(&models.CartItem{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove cart item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPromptNotFound
	}

	return nil
}

// ClearPurchased removes the order's line items from the buyer's cart after
// a successful payment. Items added after checkout are kept.
func (s *CartService) ClearPurchased(db *gorm.DB, buyerID uuid.UUID, promptIDs []uuid.UUID) error {
	if len(promptIDs) == 0 {
		return nil
	}

	var cart models.Cart
	err := db.Where("buyer_id = ?", buyerID).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load cart: %w", err)
	}

	if err := db.Where("cart_id = ? AND prompt_id IN ?", cart.ID, promptIDs).
		Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear purchased items: %w", err)
	}

	return nil
}
