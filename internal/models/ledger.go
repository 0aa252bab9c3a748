// internal/models/ledger.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEntry is append-only. For any paid order the signed sum of all
// entries tied to it is exactly zero; the ledger service enforces that, the
// storage layer does not.
type LedgerEntry struct {
	BaseModel
	EntryType   LedgerEntryType `json:"entry_type" gorm:"type:varchar(20);not null;index"`
	SellerID    *uuid.UUID      `json:"seller_id" gorm:"type:uuid;index"`
	OrderID     *uuid.UUID      `json:"order_id" gorm:"type:uuid;index"`
	OrderItemID *uuid.UUID      `json:"order_item_id" gorm:"type:uuid"`
	AmountJPY   int64           `json:"amount_jpy" gorm:"not null"`
	Note        string          `json:"note" gorm:"size:255"`
	AvailableAt *time.Time      `json:"available_at"`
	Matured     bool            `json:"matured" gorm:"default:false;index"`

	// Relationships
	Seller *User  `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
	Order  *Order `json:"order,omitempty" gorm:"foreignKey:OrderID"`
}

// SellerBalance is derived state maintained by ledger postings and payout
// debits. Both columns stay non-negative.
type SellerBalance struct {
	BaseModel
	SellerID     uuid.UUID `json:"seller_id" gorm:"type:uuid;not null;uniqueIndex"`
	AvailableJPY int64     `json:"available_jpy" gorm:"not null;default:0"`
	PendingJPY   int64     `json:"pending_jpy" gorm:"not null;default:0"`

	// Relationships
	Seller User `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
}

type Payout struct {
	BaseModel
	SellerID      uuid.UUID    `json:"seller_id" gorm:"type:uuid;not null;index"`
	AmountJPY     int64        `json:"amount_jpy" gorm:"not null"`
	Status        PayoutStatus `json:"status" gorm:"type:varchar(20);default:'requested';index"`
	FailureReason string       `json:"failure_reason,omitempty" gorm:"size:255"`
	RequestedAt   time.Time    `json:"requested_at"`
	ProcessedAt   *time.Time   `json:"processed_at"`

	// Relationships
	Seller User `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
}
