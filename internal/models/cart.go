// internal/models/cart.go
package models

import (
	"github.com/google/uuid"
)

type Cart struct {
	BaseModel
	BuyerID uuid.UUID `json:"buyer_id" gorm:"type:uuid;not null;uniqueIndex"`

	// Relationships
	Buyer User       `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
	Items []CartItem `json:"items,omitempty" gorm:"foreignKey:CartID"`
}

// CartItem captures the unit price at add-time so a later price change on
// the prompt does not alter what the buyer agreed to pay.
type CartItem struct {
	BaseModel
	CartID       uuid.UUID `json:"cart_id" gorm:"type:uuid;not null;uniqueIndex:idx_cart_items_cart_prompt"`
	PromptID     uuid.UUID `json:"prompt_id" gorm:"type:uuid;not null;uniqueIndex:idx_cart_items_cart_prompt"`
	Quantity     int       `json:"quantity" gorm:"not null;default:1"`
	UnitPriceJPY int64     `json:"unit_price_jpy" gorm:"not null"`

	// Relationships
	Cart   Cart   `json:"cart,omitempty" gorm:"foreignKey:CartID"`
	Prompt Prompt `json:"prompt,omitempty" gorm:"foreignKey:PromptID"`
}

func (i *CartItem) SubtotalJPY() int64 {
	return i.UnitPriceJPY * int64(i.Quantity)
}
