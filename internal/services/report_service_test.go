// internal/services/report_service_test.go
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

func TestGrowthRate(t *testing.T) {
	assert.Equal(t, float64(50), growthRate(150, 100))
	assert.Equal(t, float64(-50), growthRate(50, 100))
	// No previous activity: 100 when something happened now, 0 otherwise.
	assert.Equal(t, float64(100), growthRate(500, 0))
	assert.Equal(t, float64(0), growthRate(0, 0))
}

func TestReportWindows(t *testing.T) {
	svc := NewReportService(nil)
	fixed := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	start, end, prevStart, prevEnd := svc.Window(Period7Days)
	assert.Equal(t, fixed, end)
	assert.Equal(t, fixed.AddDate(0, 0, -7), start)
	assert.Equal(t, start, prevEnd)
	assert.Equal(t, end.Sub(start), prevEnd.Sub(prevStart))

	start, end, _, _ = svc.Window(PeriodMonth)
	assert.Equal(t, time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, fixed, end)

	start, _, _, _ = svc.Window(PeriodYear)
	assert.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), start)

	// Unknown periods fall back to the 30-day window.
	start, end, _, _ = svc.Window("bogus")
	assert.Equal(t, fixed.AddDate(0, 0, -30), start)
}

type ReportServiceTestSuite struct {
	suite.Suite
	db            *gorm.DB
	ledgerService *LedgerService
	svc           *ReportService
	buyer         *models.User
	seller        *models.User
}

func (suite *ReportServiceTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	suite.ledgerService = NewLedgerService(suite.db, newTestConfig())
	suite.svc = NewReportService(suite.db)
	suite.buyer = createTestUser(suite.T(), suite.db, "buyer1", models.UserTypeBuyer)
	suite.seller = createTestUser(suite.T(), suite.db, "seller1", models.UserTypeSeller)
}

// seedPaidSale persists a paid single-item order and posts its ledger
// entries.
func (suite *ReportServiceTestSuite) seedPaidSale(seller *models.User, price int64, paidAt time.Time) {
	prompt := createTestPrompt(suite.T(), suite.db, seller.ID, "Prompt "+uuid.NewString()[:8], price)
	version := &models.PromptVersion{
		PromptID: prompt.ID,
		Version:  1,
		Title:    prompt.Title,
		Content:  prompt.Content,
		PriceJPY: price,
	}
	suite.Require().NoError(suite.db.Create(version).Error)

	order := &models.Order{
		OrderNumber:    "PM-TEST-" + uuid.NewString()[:8],
		BuyerID:        suite.buyer.ID,
		TotalAmountJPY: price,
		Currency:       "JPY",
		Status:         models.OrderStatusPaid,
		PaidAt:         &paidAt,
	}
	suite.Require().NoError(suite.db.Create(order).Error)
	suite.Require().NoError(suite.db.Create(&models.OrderItem{
		OrderID:         order.ID,
		PromptID:        prompt.ID,
		PromptVersionID: version.ID,
		UnitPriceJPY:    price,
		Quantity:        1,
	}).Error)

	suite.Require().NoError(suite.ledgerService.PostSaleEntries(order.ID))
}

func (suite *ReportServiceTestSuite) TestEmptyReport() {
	report, err := suite.svc.BuildReport(Period7Days, nil)
	suite.Require().NoError(err)

	suite.Equal(Period7Days, report.Period)
	suite.Zero(report.Summary.TotalRevenueJPY)
	suite.Zero(report.Summary.OrderCount)
	suite.Zero(report.Summary.AvgOrderValueJPY)
	suite.Zero(report.Growth.Revenue)
	suite.Empty(report.SellerSales)
	suite.Empty(report.PromptSales)
	suite.Empty(report.Trends)
}

func (suite *ReportServiceTestSuite) TestReportAggregatesPaidOrders() {
	yesterday := time.Now().AddDate(0, 0, -1)
	suite.seedPaidSale(suite.seller, 3500, yesterday)
	suite.seedPaidSale(suite.seller, 1000, yesterday)

	report, err := suite.svc.BuildReport(Period7Days, nil)
	suite.Require().NoError(err)

	suite.Equal(int64(4500), report.Summary.TotalRevenueJPY)
	suite.Equal(int64(2), report.Summary.OrderCount)
	suite.Equal(int64(2250), report.Summary.AvgOrderValueJPY)
	// 10% of 3500 plus 10% of 1000, reported as magnitudes.
	suite.Equal(int64(450), report.Summary.PlatformFeeJPY)
	suite.Equal(int64(200), report.Summary.PaymentFeeJPY)
	suite.Equal(int64(3850), report.Summary.SellerNetJPY)

	// First activity ever: growth pins at 100.
	suite.Equal(float64(100), report.Growth.Revenue)
	suite.Equal(float64(100), report.Growth.OrderCount)

	suite.Require().Len(report.SellerSales, 1)
	suite.Equal(1, report.SellerSales[0].Rank)
	suite.Equal(suite.seller.ID, report.SellerSales[0].SellerID)
	suite.Equal(int64(3850), report.SellerSales[0].TotalNetJPY)

	suite.Require().Len(report.PromptSales, 2)
	suite.Equal(1, report.PromptSales[0].Rank)
	suite.Equal(int64(3500), report.PromptSales[0].TotalRevenueJPY)

	suite.Require().Len(report.Trends, 1)
	suite.Equal(int64(4500), report.Trends[0].RevenueJPY)
	suite.Equal(int64(2), report.Trends[0].OrderCount)
}

func (suite *ReportServiceTestSuite) TestReportExcludesUnpaidOrders() {
	yesterday := time.Now().AddDate(0, 0, -1)
	suite.seedPaidSale(suite.seller, 3500, yesterday)

	pending := &models.Order{
		OrderNumber:    "PM-TEST-" + uuid.NewString()[:8],
		BuyerID:        suite.buyer.ID,
		TotalAmountJPY: 8000,
		Currency:       "JPY",
		Status:         models.OrderStatusPending,
	}
	suite.Require().NoError(suite.db.Create(pending).Error)

	report, err := suite.svc.BuildReport(Period7Days, nil)
	suite.Require().NoError(err)
	suite.Equal(int64(3500), report.Summary.TotalRevenueJPY)
	suite.Equal(int64(1), report.Summary.OrderCount)
}

func (suite *ReportServiceTestSuite) TestSellerFilterScopesReport() {
	other := createTestUser(suite.T(), suite.db, "seller2", models.UserTypeSeller)
	yesterday := time.Now().AddDate(0, 0, -1)
	suite.seedPaidSale(suite.seller, 3500, yesterday)
	suite.seedPaidSale(other, 1000, yesterday)

	report, err := suite.svc.BuildReport(Period7Days, &other.ID)
	suite.Require().NoError(err)

	suite.Equal(int64(1000), report.Summary.TotalRevenueJPY)
	suite.Equal(int64(1), report.Summary.OrderCount)
	suite.Require().Len(report.SellerSales, 1)
	suite.Equal(other.ID, report.SellerSales[0].SellerID)
	suite.Require().Len(report.PromptSales, 1)
	suite.Equal(int64(1000), report.PromptSales[0].TotalRevenueJPY)
}

func (suite *ReportServiceTestSuite) TestUnknownSellerYieldsEmptyReport() {
	suite.seedPaidSale(suite.seller, 3500, time.Now().AddDate(0, 0, -1))

	unknown := uuid.New()
	report, err := suite.svc.BuildReport(Period7Days, &unknown)
	suite.Require().NoError(err)
	suite.Zero(report.Summary.TotalRevenueJPY)
	suite.Empty(report.SellerSales)
	suite.Empty(report.Trends)
}

func (suite *ReportServiceTestSuite) TestDenseSellerRanking() {
	a := suite.seller
	b := createTestUser(suite.T(), suite.db, "seller2", models.UserTypeSeller)
	c := createTestUser(suite.T(), suite.db, "seller3", models.UserTypeSeller)

	for _, seed := range []struct {
		seller *models.User
		net    int64
	}{
		{a, 2000},
		{b, 2000},
		{c, 500},
	} {
		sellerID := seed.seller.ID
		suite.Require().NoError(suite.db.Create(&models.LedgerEntry{
			EntryType: models.EntryTypeSellerNet,
			SellerID:  &sellerID,
			AmountJPY: seed.net,
			Matured:   true,
		}).Error)
	}

	report, err := suite.svc.BuildReport(Period7Days, nil)
	suite.Require().NoError(err)

	suite.Require().Len(report.SellerSales, 3)
	// Ties share a rank; the next distinct total takes the following one.
	suite.Equal(1, report.SellerSales[0].Rank)
	suite.Equal(1, report.SellerSales[1].Rank)
	suite.Equal(2, report.SellerSales[2].Rank)
	suite.Equal(int64(500), report.SellerSales[2].TotalNetJPY)
}

func TestReportServiceSuite(t *testing.T) {
	suite.Run(t, new(ReportServiceTestSuite))
}
