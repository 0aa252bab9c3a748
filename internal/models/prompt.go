// internal/models/prompt.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Prompt struct {
	BaseModel
	SellerID    uuid.UUID      `json:"seller_id" gorm:"type:uuid;not null;index"`
	Title       string         `json:"title" gorm:"size:255;not null"`
	Description string         `json:"description" gorm:"type:text"`
	Content     string         `json:"content" gorm:"type:text"`
	Category    string         `json:"category" gorm:"size:100;index"`
	PriceJPY    int64          `json:"price_jpy" gorm:"not null"`
	Tags        pq.StringArray `json:"tags" gorm:"type:text[]"`
	Status      PromptStatus   `json:"status" gorm:"type:varchar(20);default:'draft';index"`
	SalesCount  int64          `json:"sales_count" gorm:"default:0"`

	// Relationships
	Seller   User            `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
	Versions []PromptVersion `json:"versions,omitempty" gorm:"foreignKey:PromptID"`
}

// PromptVersion is an immutable snapshot of a prompt's sellable content,
// numbered per prompt starting at 1. Order items reference a version, never
// the live prompt, so past purchases stay reproducible after edits.
type PromptVersion struct {
	BaseModel
	PromptID    uuid.UUID `json:"prompt_id" gorm:"type:uuid;not null;uniqueIndex:idx_prompt_versions_prompt_version"`
	Version     int       `json:"version" gorm:"not null;uniqueIndex:idx_prompt_versions_prompt_version"`
	Title       string    `json:"title" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"type:text"`
	Content     string    `json:"content" gorm:"type:text"`
	PriceJPY    int64     `json:"price_jpy" gorm:"not null"`

	// Relationships
	Prompt Prompt `json:"prompt,omitempty" gorm:"foreignKey:PromptID"`
}
