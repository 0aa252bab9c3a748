// internal/services/ledger_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/promptmint/promptmint-backend/internal/models"
)

func TestSplitTotal(t *testing.T) {
	svc := NewLedgerService(nil, newTestConfig())

	tests := []struct {
		name        string
		gross       int64
		paymentFee  int64
		platformFee int64
		sellerNet   int64
	}{
		{"typical order", 3500, 100, 350, 3050},
		{"no remainder loss", 999, 100, 99, 800},
		{"gross below flat fee", 50, 50, 0, 0},
		{"gross equals flat fee", 100, 100, 0, 0},
		{"single yen", 1, 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split := svc.SplitTotal(tt.gross)
			assert.Equal(t, tt.paymentFee, split.PaymentFeeJPY)
			assert.Equal(t, tt.platformFee, split.PlatformFeeJPY)
			assert.Equal(t, tt.sellerNet, split.SellerNetJPY)
			assert.Zero(t, split.GrossJPY-split.PaymentFeeJPY-split.PlatformFeeJPY-split.SellerNetJPY)
		})
	}
}

func TestAllocateSellerNet(t *testing.T) {
	t.Run("no items yields no shares", func(t *testing.T) {
		// A positive total with no item rows is corrupt data; the allocator
		// must bail out instead of looping over an empty share list.
		assert.Nil(t, allocateSellerNet(nil, 3050, 3500))
	})

	t.Run("zero net yields no shares", func(t *testing.T) {
		items := []models.OrderItem{{
			Prompt:       models.Prompt{SellerID: uuid.New()},
			UnitPriceJPY: 100,
			Quantity:     1,
		}}
		assert.Nil(t, allocateSellerNet(items, 0, 100))
	})

	t.Run("leftover yen stay with the order net", func(t *testing.T) {
		a, b, c := uuid.New(), uuid.New(), uuid.New()
		items := []models.OrderItem{
			{Prompt: models.Prompt{SellerID: a}, UnitPriceJPY: 1000, Quantity: 1},
			{Prompt: models.Prompt{SellerID: b}, UnitPriceJPY: 1000, Quantity: 1},
			{Prompt: models.Prompt{SellerID: c}, UnitPriceJPY: 1000, Quantity: 1},
		}

		// 2900 does not divide evenly by three; floored shares of 966 leave
		// two leftover yen to distribute.
		shares := allocateSellerNet(items, 2900, 3000)
		var sum int64
		for _, share := range shares {
			sum += share.AmountJPY
			assert.GreaterOrEqual(t, share.AmountJPY, int64(966))
		}
		assert.Equal(t, int64(2900), sum)
	})
}

type LedgerServiceTestSuite struct {
	suite.Suite
	db     *gorm.DB
	svc    *LedgerService
	buyer  *models.User
	seller *models.User
}

func (suite *LedgerServiceTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	suite.svc = NewLedgerService(suite.db, newTestConfig())
	suite.buyer = createTestUser(suite.T(), suite.db, "buyer1", models.UserTypeBuyer)
	suite.seller = createTestUser(suite.T(), suite.db, "seller1", models.UserTypeSeller)
}

// createPaidOrder persists a paid order with one line per (seller, price)
// pair, each bound to a fresh prompt and snapshot.
func (suite *LedgerServiceTestSuite) createPaidOrder(lines map[*models.User]int64) *models.Order {
	t := suite.T()

	var total int64
	paidAt := time.Now().Add(-time.Minute)
	order := &models.Order{
		OrderNumber: "PM-TEST-" + uuid.NewString()[:8],
		BuyerID:     suite.buyer.ID,
		Currency:    "JPY",
		Status:      models.OrderStatusPaid,
		PaidAt:      &paidAt,
	}
	suite.Require().NoError(suite.db.Create(order).Error)

	for seller, price := range lines {
		prompt := createTestPrompt(t, suite.db, seller.ID, "Prompt "+uuid.NewString()[:8], price)
		version := &models.PromptVersion{
			PromptID: prompt.ID,
			Version:  1,
			Title:    prompt.Title,
			Content:  prompt.Content,
			PriceJPY: price,
		}
		suite.Require().NoError(suite.db.Create(version).Error)

		item := &models.OrderItem{
			OrderID:         order.ID,
			PromptID:        prompt.ID,
			PromptVersionID: version.ID,
			UnitPriceJPY:    price,
			Quantity:        1,
		}
		suite.Require().NoError(suite.db.Create(item).Error)
		total += price
	}

	suite.Require().NoError(suite.db.Model(order).Update("total_amount_jpy", total).Error)
	order.TotalAmountJPY = total
	return order
}

func (suite *LedgerServiceTestSuite) entriesFor(orderID uuid.UUID) []models.LedgerEntry {
	var entries []models.LedgerEntry
	suite.Require().NoError(suite.db.Where("order_id = ?", orderID).Find(&entries).Error)
	return entries
}

func (suite *LedgerServiceTestSuite) balanceOf(sellerID uuid.UUID) *models.SellerBalance {
	balance, err := suite.svc.GetBalance(sellerID)
	suite.Require().NoError(err)
	return balance
}

func (suite *LedgerServiceTestSuite) TestPostSaleEntriesZeroSum() {
	order := suite.createPaidOrder(map[*models.User]int64{suite.seller: 3500})

	suite.Require().NoError(suite.svc.PostSaleEntries(order.ID))

	entries := suite.entriesFor(order.ID)
	suite.Len(entries, 4)

	var sum int64
	amounts := map[models.LedgerEntryType]int64{}
	for _, e := range entries {
		sum += e.AmountJPY
		amounts[e.EntryType] = e.AmountJPY
	}
	suite.Zero(sum)
	suite.Equal(int64(3500), amounts[models.EntryTypeSaleGross])
	suite.Equal(int64(-100), amounts[models.EntryTypePaymentFee])
	suite.Equal(int64(-350), amounts[models.EntryTypePlatformFee])
	suite.Equal(int64(3050), amounts[models.EntryTypeSellerNet])

	balance := suite.balanceOf(suite.seller.ID)
	suite.Equal(int64(3050), balance.PendingJPY)
	suite.Equal(int64(0), balance.AvailableJPY)
}

func (suite *LedgerServiceTestSuite) TestPostSaleEntriesIdempotent() {
	order := suite.createPaidOrder(map[*models.User]int64{suite.seller: 3500})

	suite.Require().NoError(suite.svc.PostSaleEntries(order.ID))
	suite.ErrorIs(suite.svc.PostSaleEntries(order.ID), ErrDuplicatePosting)

	suite.Len(suite.entriesFor(order.ID), 4)
	suite.Equal(int64(3050), suite.balanceOf(suite.seller.ID).PendingJPY)
}

func (suite *LedgerServiceTestSuite) TestPostSaleEntriesRejectsUnpaidOrder() {
	order := suite.createPaidOrder(map[*models.User]int64{suite.seller: 3500})
	suite.Require().NoError(suite.db.Model(order).Update("status", models.OrderStatusPending).Error)

	suite.Error(suite.svc.PostSaleEntries(order.ID))
	suite.Empty(suite.entriesFor(order.ID))
}

func (suite *LedgerServiceTestSuite) TestMultiSellerAllocationSumsToNet() {
	other := createTestUser(suite.T(), suite.db, "seller2", models.UserTypeSeller)
	order := suite.createPaidOrder(map[*models.User]int64{
		suite.seller: 1000,
		other:        2500,
	})

	suite.Require().NoError(suite.svc.PostSaleEntries(order.ID))

	var netEntries []models.LedgerEntry
	suite.Require().NoError(suite.db.
		Where("order_id = ? AND entry_type = ?", order.ID, models.EntryTypeSellerNet).
		Find(&netEntries).Error)
	suite.Len(netEntries, 2)

	var netSum int64
	for _, e := range netEntries {
		netSum += e.AmountJPY
		suite.Positive(e.AmountJPY)
	}
	suite.Equal(int64(3050), netSum)

	// Larger subtotal takes the larger share.
	suite.Greater(suite.balanceOf(other.ID).PendingJPY, suite.balanceOf(suite.seller.ID).PendingJPY)
}

func (suite *LedgerServiceTestSuite) TestMaturePendingBalances() {
	order := suite.createPaidOrder(map[*models.User]int64{suite.seller: 3500})
	suite.Require().NoError(suite.svc.PostSaleEntries(order.ID))

	// Inside the hold window nothing moves.
	matured, err := suite.svc.MaturePendingBalances(time.Now())
	suite.Require().NoError(err)
	suite.Zero(matured)

	matured, err = suite.svc.MaturePendingBalances(time.Now().AddDate(0, 0, 31))
	suite.Require().NoError(err)
	suite.Equal(1, matured)

	balance := suite.balanceOf(suite.seller.ID)
	suite.Equal(int64(0), balance.PendingJPY)
	suite.Equal(int64(3050), balance.AvailableJPY)

	// A second run finds nothing left to promote.
	matured, err = suite.svc.MaturePendingBalances(time.Now().AddDate(0, 0, 31))
	suite.Require().NoError(err)
	suite.Zero(matured)
}

func (suite *LedgerServiceTestSuite) TestRefundReversesSaleAndBalance() {
	order := suite.createPaidOrder(map[*models.User]int64{suite.seller: 3500})
	suite.Require().NoError(suite.svc.PostSaleEntries(order.ID))

	suite.Require().NoError(suite.svc.PostRefundEntries(order.ID, "buyer complaint"))

	entries := suite.entriesFor(order.ID)
	suite.Len(entries, 8)

	var sum int64
	for _, e := range entries {
		sum += e.AmountJPY
	}
	suite.Zero(sum)

	balance := suite.balanceOf(suite.seller.ID)
	suite.Equal(int64(0), balance.PendingJPY)
	suite.Equal(int64(0), balance.AvailableJPY)

	var refreshed models.Order
	suite.Require().NoError(suite.db.First(&refreshed, "id = ?", order.ID).Error)
	suite.Equal(models.OrderStatusRefunded, refreshed.Status)

	// Refunding twice is a no-op.
	suite.ErrorIs(suite.svc.PostRefundEntries(order.ID, "again"), ErrDuplicatePosting)
	suite.Len(suite.entriesFor(order.ID), 8)
}

func (suite *LedgerServiceTestSuite) TestRefundWithoutSaleEntries() {
	order := suite.createPaidOrder(map[*models.User]int64{suite.seller: 3500})
	suite.ErrorIs(suite.svc.PostRefundEntries(order.ID, "nothing posted"), ErrNoSaleEntries)
}

func (suite *LedgerServiceTestSuite) TestAdjustments() {
	sellerID := suite.seller.ID

	entry, err := suite.svc.PostAdjustment(&sellerID, 500, "goodwill credit")
	suite.Require().NoError(err)
	suite.Equal(models.EntryTypeAdjustment, entry.EntryType)
	suite.Equal(int64(500), suite.balanceOf(sellerID).AvailableJPY)

	_, err = suite.svc.PostAdjustment(&sellerID, -200, "correction")
	suite.Require().NoError(err)
	suite.Equal(int64(300), suite.balanceOf(sellerID).AvailableJPY)

	// A debit beyond the balance is refused and changes nothing.
	_, err = suite.svc.PostAdjustment(&sellerID, -10000, "too much")
	suite.ErrorIs(err, ErrInsufficientBalance)
	suite.Equal(int64(300), suite.balanceOf(sellerID).AvailableJPY)

	_, err = suite.svc.PostAdjustment(nil, 0, "empty")
	suite.Error(err)
}

func (suite *LedgerServiceTestSuite) TestExportCSV() {
	order := suite.createPaidOrder(map[*models.User]int64{suite.seller: 3500})
	suite.Require().NoError(suite.svc.PostSaleEntries(order.ID))

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	data, err := suite.svc.ExportCSV(start, end)
	suite.Require().NoError(err)

	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	// Header plus four entries.
	suite.Equal(5, lines)
}

func TestLedgerServiceSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceTestSuite))
}
