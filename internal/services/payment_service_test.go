// internal/services/payment_service_test.go
package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/promptmint/promptmint-backend/internal/models"
)

type PaymentServiceTestSuite struct {
	suite.Suite
	db           *gorm.DB
	cartService  *CartService
	orderService *OrderService
	svc          *PaymentService
	buyer        *models.User
	seller       *models.User
}

func (suite *PaymentServiceTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	cfg := newTestConfig()
	suite.cartService = NewCartService(suite.db)
	suite.orderService = NewOrderService(suite.db, NewVersionService(suite.db))
	suite.svc = NewPaymentService(suite.db, cfg, NewLedgerService(suite.db, cfg), suite.cartService)
	suite.buyer = createTestUser(suite.T(), suite.db, "buyer1", models.UserTypeBuyer)
	suite.seller = createTestUser(suite.T(), suite.db, "seller1", models.UserTypeSeller)
}

func (suite *PaymentServiceTestSuite) checkout(price int64) uuid.UUID {
	prompt := createTestPrompt(suite.T(), suite.db, suite.seller.ID, "Prompt "+uuid.NewString()[:8], price)
	_, err := suite.cartService.AddItem(suite.buyer.ID, &AddCartItemRequest{PromptID: prompt.ID, Quantity: 1})
	suite.Require().NoError(err)

	result, err := suite.orderService.CreateOrder(suite.buyer.ID, &CreateOrderRequest{PaymentMethod: "card"})
	suite.Require().NoError(err)
	return result.OrderID
}

func (suite *PaymentServiceTestSuite) orderStatus(orderID uuid.UUID) models.OrderStatus {
	var order models.Order
	suite.Require().NoError(suite.db.First(&order, "id = ?", orderID).Error)
	return order.Status
}

func (suite *PaymentServiceTestSuite) entryCount(orderID uuid.UUID) int64 {
	var count int64
	suite.Require().NoError(suite.db.Model(&models.LedgerEntry{}).
		Where("order_id = ?", orderID).Count(&count).Error)
	return count
}

func (suite *PaymentServiceTestSuite) TestSuccessfulPayment() {
	orderID := suite.checkout(3500)

	err := suite.svc.HandlePaymentResult(&PaymentResult{
		OrderID:           orderID,
		Succeeded:         true,
		ProviderReference: "pi_test_123",
	})
	suite.Require().NoError(err)

	suite.Equal(models.OrderStatusPaid, suite.orderStatus(orderID))
	suite.Equal(int64(4), suite.entryCount(orderID))

	var order models.Order
	suite.Require().NoError(suite.db.First(&order, "id = ?", orderID).Error)
	suite.Equal("pi_test_123", order.PaymentReference)
	suite.NotNil(order.PaidAt)

	// The purchased item is gone from the cart.
	cart, err := suite.cartService.GetCart(suite.buyer.ID)
	suite.Require().NoError(err)
	suite.Empty(cart.Items)

	// Sales count moved with the capture.
	var prompt models.Prompt
	suite.Require().NoError(suite.db.Where("seller_id = ?", suite.seller.ID).First(&prompt).Error)
	suite.Equal(int64(1), prompt.SalesCount)
}

func (suite *PaymentServiceTestSuite) TestRedeliveredSuccessIsNoOp() {
	orderID := suite.checkout(3500)

	result := &PaymentResult{OrderID: orderID, Succeeded: true, ProviderReference: "pi_test_123"}
	suite.Require().NoError(suite.svc.HandlePaymentResult(result))
	suite.Require().NoError(suite.svc.HandlePaymentResult(result))

	suite.Equal(int64(4), suite.entryCount(orderID))

	var balance models.SellerBalance
	suite.Require().NoError(suite.db.Where("seller_id = ?", suite.seller.ID).First(&balance).Error)
	suite.Equal(int64(3050), balance.PendingJPY)
}

func (suite *PaymentServiceTestSuite) TestFailedPayment() {
	orderID := suite.checkout(3500)

	err := suite.svc.HandlePaymentResult(&PaymentResult{
		OrderID:   orderID,
		Succeeded: false,
	})
	suite.Require().NoError(err)

	suite.Equal(models.OrderStatusFailed, suite.orderStatus(orderID))
	suite.Zero(suite.entryCount(orderID))

	// The cart survives a failed payment for another attempt.
	cart, err := suite.cartService.GetCart(suite.buyer.ID)
	suite.Require().NoError(err)
	suite.Len(cart.Items, 1)
}

func (suite *PaymentServiceTestSuite) TestUnknownOrder() {
	err := suite.svc.HandlePaymentResult(&PaymentResult{
		OrderID:   uuid.New(),
		Succeeded: true,
	})
	suite.ErrorIs(err, ErrOrderNotFound)
}

func TestPaymentServiceSuite(t *testing.T) {
	suite.Run(t, new(PaymentServiceTestSuite))
}
