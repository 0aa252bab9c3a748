// internal/models/order.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Order is immutable once created except for status and payment linkage.
type Order struct {
	BaseModel
	OrderNumber      string      `json:"order_number" gorm:"uniqueIndex;size:32;not null"`
	BuyerID          uuid.UUID   `json:"buyer_id" gorm:"type:uuid;not null;index"`
	TotalAmountJPY   int64       `json:"total_amount_jpy" gorm:"not null"`
	Currency         string      `json:"currency" gorm:"size:3;default:'JPY'"`
	Status           OrderStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	PaymentMethod    string      `json:"payment_method" gorm:"size:50"`
	PaymentReference string      `json:"payment_reference" gorm:"size:255"`
	PaidAt           *time.Time  `json:"paid_at"`

	// Relationships
	Buyer User        `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

// OrderItem binds a purchase line to a specific version snapshot, never to
// the live prompt row.
type OrderItem struct {
	BaseModel
	OrderID         uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`
	PromptID        uuid.UUID `json:"prompt_id" gorm:"type:uuid;not null;index"`
	PromptVersionID uuid.UUID `json:"prompt_version_id" gorm:"type:uuid;not null;index"`
	UnitPriceJPY    int64     `json:"unit_price_jpy" gorm:"not null"`
	Quantity        int       `json:"quantity" gorm:"not null;default:1"`

	// Relationships
	Order         Order         `json:"order,omitempty" gorm:"foreignKey:OrderID"`
	Prompt        Prompt        `json:"prompt,omitempty" gorm:"foreignKey:PromptID"`
	PromptVersion PromptVersion `json:"prompt_version,omitempty" gorm:"foreignKey:PromptVersionID"`
}

func (i *OrderItem) SubtotalJPY() int64 {
	return i.UnitPriceJPY * int64(i.Quantity)
}
