// internal/services/testutil_test.go
package services

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/promptmint/promptmint-backend/internal/config"
	"github.com/promptmint/promptmint-backend/internal/models"
)

// newTestDB opens a per-test in-memory database. The shared-cache DSN keeps
// every pooled connection on the same database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Prompt{},
		&models.PromptVersion{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.LedgerEntry{},
		&models.SellerBalance{},
		&models.Payout{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Payment: config.PaymentConfig{
			PlatformFeeBP:    1000,
			PaymentFeeJPY:    100,
			MinimumPayoutJPY: 1000,
			PendingHoldDays:  30,
		},
	}
}

func createTestUser(t *testing.T, db *gorm.DB, username string, userType models.UserType) *models.User {
	t.Helper()

	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		UserType:     userType,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func createTestPrompt(t *testing.T, db *gorm.DB, sellerID uuid.UUID, title string, priceJPY int64) *models.Prompt {
	t.Helper()

	prompt := &models.Prompt{
		SellerID: sellerID,
		Title:    title,
		Content:  "You are a helpful assistant.",
		Category: "writing",
		PriceJPY: priceJPY,
		Status:   models.PromptStatusPublished,
	}
	if err := db.Create(prompt).Error; err != nil {
		t.Fatalf("failed to create prompt: %v", err)
	}
	return prompt
}
