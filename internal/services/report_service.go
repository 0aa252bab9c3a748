// internal/services/report_service.go
package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/promptmint/promptmint-backend/internal/models"
)

// ReportService is the read-only reporting layer behind the admin sales
// dashboard. It never mutates order or ledger state, and an unknown seller
// filter simply yields empty result sets.
type ReportService struct {
	db  *gorm.DB
	now func() time.Time
}

const (
	Period7Days  = "7days"
	Period30Days = "30days"
	PeriodMonth  = "month"
	PeriodYear   = "year"
)

// maxPromptRows is kept internally; the admin screen shows the top 20.
const maxPromptRows = 50

type SalesReport struct {
	Period    string    `json:"period"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	Summary  ReportSummary `json:"summary"`
	Previous ReportSummary `json:"previous"`
	Growth   ReportGrowth  `json:"growth"`

	SellerSales []SellerSalesRow `json:"seller_sales"`
	PromptSales []PromptSalesRow `json:"prompt_sales"`
	Trends      []TrendPoint     `json:"trends"`
}

type ReportSummary struct {
	TotalRevenueJPY  int64 `json:"total_revenue_jpy"`
	OrderCount       int64 `json:"order_count"`
	AvgOrderValueJPY int64 `json:"avg_order_value_jpy"`
	PlatformFeeJPY   int64 `json:"platform_fee_jpy"`
	PaymentFeeJPY    int64 `json:"payment_fee_jpy"`
	SellerNetJPY     int64 `json:"seller_net_jpy"`
}

type ReportGrowth struct {
	Revenue       float64 `json:"revenue"`
	OrderCount    float64 `json:"order_count"`
	AvgOrderValue float64 `json:"avg_order_value"`
	PlatformFee   float64 `json:"platform_fee"`
	PaymentFee    float64 `json:"payment_fee"`
	SellerNet     float64 `json:"seller_net"`
}

type SellerSalesRow struct {
	Rank        int       `json:"rank"`
	SellerID    uuid.UUID `json:"seller_id"`
	Username    string    `json:"username"`
	TotalNetJPY int64     `json:"total_net_jpy"`
	SaleCount   int64     `json:"sale_count"`
}

type PromptSalesRow struct {
	Rank            int       `json:"rank"`
	PromptID        uuid.UUID `json:"prompt_id"`
	Title           string    `json:"title"`
	TotalRevenueJPY int64     `json:"total_revenue_jpy"`
	UnitsSold       int64     `json:"units_sold"`
	AvgPriceJPY     int64     `json:"avg_price_jpy"`
}

type TrendPoint struct {
	Bucket     string `json:"bucket"`
	Label      string `json:"label"`
	RevenueJPY int64  `json:"revenue_jpy"`
	OrderCount int64  `json:"order_count"`
}

func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{
		db:  db,
		now: time.Now,
	}
}

// Window computes the [start, end) range for a period and the equal-length
// immediately-preceding range used for growth comparison.
func (s *ReportService) Window(period string) (start, end, prevStart, prevEnd time.Time) {
	now := s.now()

	switch period {
	case Period7Days:
		end = now
		start = end.AddDate(0, 0, -7)
	case PeriodMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = now
	case PeriodYear:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		end = now
	default: // Period30Days
		end = now
		start = end.AddDate(0, 0, -30)
	}

	length := end.Sub(start)
	prevEnd = start
	prevStart = start.Add(-length)
	return
}

func (s *ReportService) BuildReport(period string, sellerID *uuid.UUID) (*SalesReport, error) {
	start, end, prevStart, prevEnd := s.Window(period)

	summary, err := s.summarize(start, end, sellerID)
	if err != nil {
		return nil, err
	}
	previous, err := s.summarize(prevStart, prevEnd, sellerID)
	if err != nil {
		return nil, err
	}

	sellerSales, err := s.sellerSales(start, end, sellerID)
	if err != nil {
		return nil, err
	}
	promptSales, err := s.promptSales(start, end, sellerID)
	if err != nil {
		return nil, err
	}
	trends, err := s.trends(period, start, end, sellerID)
	if err != nil {
		return nil, err
	}

	return &SalesReport{
		Period:    period,
		StartDate: start,
		EndDate:   end,
		Summary:   summary,
		Previous:  previous,
		Growth: ReportGrowth{
			Revenue:       growthRate(summary.TotalRevenueJPY, previous.TotalRevenueJPY),
			OrderCount:    growthRate(summary.OrderCount, previous.OrderCount),
			AvgOrderValue: growthRate(summary.AvgOrderValueJPY, previous.AvgOrderValueJPY),
			PlatformFee:   growthRate(summary.PlatformFeeJPY, previous.PlatformFeeJPY),
			PaymentFee:    growthRate(summary.PaymentFeeJPY, previous.PaymentFeeJPY),
			SellerNet:     growthRate(summary.SellerNetJPY, previous.SellerNetJPY),
		},
		SellerSales: sellerSales,
		PromptSales: promptSales,
		Trends:      trends,
	}, nil
}

// growthRate follows the dashboard convention: a zero previous value yields
// 100 when there is new activity and 0 otherwise, avoiding a divide by
// zero while still signaling growth.
func growthRate(current, previous int64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return float64(current-previous) / float64(previous) * 100
}

func (s *ReportService) summarize(start, end time.Time, sellerID *uuid.UUID) (ReportSummary, error) {
	var summary ReportSummary

	if sellerID == nil {
		var row struct {
			Total int64
			Count int64
		}
		err := s.db.Model(&models.Order{}).
			Where("status = ? AND paid_at >= ? AND paid_at < ?", models.OrderStatusPaid, start, end).
			Select("COALESCE(SUM(total_amount_jpy), 0) AS total, COUNT(*) AS count").
			Scan(&row).Error
		if err != nil {
			return summary, fmt.Errorf("failed to aggregate orders: %w", err)
		}
		summary.TotalRevenueJPY = row.Total
		summary.OrderCount = row.Count
	} else {
		var revenue int64
		err := s.db.Model(&models.OrderItem{}).
			Joins("JOIN orders ON orders.id = order_items.order_id").
			Joins("JOIN prompts ON prompts.id = order_items.prompt_id").
			Where("orders.status = ? AND orders.paid_at >= ? AND orders.paid_at < ? AND prompts.seller_id = ?",
				models.OrderStatusPaid, start, end, *sellerID).
			Select("COALESCE(SUM(order_items.unit_price_jpy * order_items.quantity), 0)").
			Scan(&revenue).Error
		if err != nil {
			return summary, fmt.Errorf("failed to aggregate seller revenue: %w", err)
		}

		var count int64
		err = s.db.Model(&models.OrderItem{}).
			Joins("JOIN orders ON orders.id = order_items.order_id").
			Joins("JOIN prompts ON prompts.id = order_items.prompt_id").
			Where("orders.status = ? AND orders.paid_at >= ? AND orders.paid_at < ? AND prompts.seller_id = ?",
				models.OrderStatusPaid, start, end, *sellerID).
			Select("COUNT(DISTINCT orders.id)").
			Scan(&count).Error
		if err != nil {
			return summary, fmt.Errorf("failed to count seller orders: %w", err)
		}
		summary.TotalRevenueJPY = revenue
		summary.OrderCount = count
	}

	if summary.OrderCount > 0 {
		// Rounded half up.
		summary.AvgOrderValueJPY = (summary.TotalRevenueJPY + summary.OrderCount/2) / summary.OrderCount
	}

	platformFee, err := s.sumEntries(models.EntryTypePlatformFee, start, end, sellerID)
	if err != nil {
		return summary, err
	}
	paymentFee, err := s.sumEntries(models.EntryTypePaymentFee, start, end, sellerID)
	if err != nil {
		return summary, err
	}
	sellerNet, err := s.sumEntries(models.EntryTypeSellerNet, start, end, sellerID)
	if err != nil {
		return summary, err
	}

	// Fee entries are negative in the ledger; the report shows magnitudes.
	summary.PlatformFeeJPY = -platformFee
	summary.PaymentFeeJPY = -paymentFee
	summary.SellerNetJPY = sellerNet

	return summary, nil
}

func (s *ReportService) sumEntries(entryType models.LedgerEntryType, start, end time.Time, sellerID *uuid.UUID) (int64, error) {
	query := s.db.Model(&models.LedgerEntry{}).
		Where("entry_type = ? AND created_at >= ? AND created_at < ?", entryType, start, end)

	if sellerID != nil {
		if entryType == models.EntryTypeSellerNet {
			query = query.Where("seller_id = ?", *sellerID)
		} else {
			// Platform-scoped fees: restrict to orders containing the
			// seller's items.
			sub := s.db.Model(&models.OrderItem{}).
				Joins("JOIN prompts ON prompts.id = order_items.prompt_id").
				Where("prompts.seller_id = ?", *sellerID).
				Select("order_items.order_id")
			query = query.Where("order_id IN (?)", sub)
		}
	}

	var total int64
	if err := query.Select("COALESCE(SUM(amount_jpy), 0)").Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to sum %s entries: %w", entryType, err)
	}
	return total, nil
}

func (s *ReportService) sellerSales(start, end time.Time, sellerID *uuid.UUID) ([]SellerSalesRow, error) {
	type row struct {
		SellerID uuid.UUID
		Username string
		Total    int64
		Count    int64
	}

	query := s.db.Model(&models.LedgerEntry{}).
		Joins("JOIN users ON users.id = ledger_entries.seller_id").
		Where("ledger_entries.entry_type = ? AND ledger_entries.created_at >= ? AND ledger_entries.created_at < ?",
			models.EntryTypeSellerNet, start, end).
		Group("ledger_entries.seller_id, users.username").
		Select("ledger_entries.seller_id AS seller_id, users.username AS username, SUM(ledger_entries.amount_jpy) AS total, COUNT(*) AS count")

	if sellerID != nil {
		query = query.Where("ledger_entries.seller_id = ?", *sellerID)
	}

	var rows []row
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate seller sales: %w", err)
	}

	// Deterministic order: total descending, seller id as tie-break.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].SellerID.String() < rows[j].SellerID.String()
	})

	result := make([]SellerSalesRow, 0, len(rows))
	rank := 0
	var prevTotal int64
	for i, r := range rows {
		// Dense rank: equal totals share a rank, the next distinct total
		// takes the following rank.
		if i == 0 || r.Total != prevTotal {
			rank++
		}
		prevTotal = r.Total

		result = append(result, SellerSalesRow{
			Rank:        rank,
			SellerID:    r.SellerID,
			Username:    r.Username,
			TotalNetJPY: r.Total,
			SaleCount:   r.Count,
		})
	}

	return result, nil
}

func (s *ReportService) promptSales(start, end time.Time, sellerID *uuid.UUID) ([]PromptSalesRow, error) {
	type row struct {
		PromptID uuid.UUID
		Title    string
		Total    int64
		Units    int64
	}

	query := s.db.Model(&models.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Joins("JOIN prompts ON prompts.id = order_items.prompt_id").
		Where("orders.status = ? AND orders.paid_at >= ? AND orders.paid_at < ?",
			models.OrderStatusPaid, start, end).
		Group("order_items.prompt_id, prompts.title").
		Select("order_items.prompt_id AS prompt_id, prompts.title AS title, " +
			"SUM(order_items.unit_price_jpy * order_items.quantity) AS total, " +
			"SUM(order_items.quantity) AS units")

	if sellerID != nil {
		query = query.Where("prompts.seller_id = ?", *sellerID)
	}

	var rows []row
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate prompt sales: %w", err)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].PromptID.String() < rows[j].PromptID.String()
	})

	if len(rows) > maxPromptRows {
		rows = rows[:maxPromptRows]
	}

	result := make([]PromptSalesRow, 0, len(rows))
	for i, r := range rows {
		avg := int64(0)
		if r.Units > 0 {
			avg = (r.Total + r.Units/2) / r.Units
		}
		result = append(result, PromptSalesRow{
			Rank:            i + 1,
			PromptID:        r.PromptID,
			Title:           r.Title,
			TotalRevenueJPY: r.Total,
			UnitsSold:       r.Units,
			AvgPriceJPY:     avg,
		})
	}

	return result, nil
}

// trends groups paid-order revenue into calendar buckets whose granularity
// depends on the period: daily for the 7/30-day windows, weekly for month,
// monthly for year. Points are sorted by bucket key, not display label.
func (s *ReportService) trends(period string, start, end time.Time, sellerID *uuid.UUID) ([]TrendPoint, error) {
	type row struct {
		PaidAt time.Time
		Amount int64
	}

	var rows []row
	if sellerID == nil {
		err := s.db.Model(&models.Order{}).
			Where("status = ? AND paid_at >= ? AND paid_at < ?", models.OrderStatusPaid, start, end).
			Select("paid_at AS paid_at, total_amount_jpy AS amount").
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to fetch paid orders: %w", err)
		}
	} else {
		err := s.db.Model(&models.OrderItem{}).
			Joins("JOIN orders ON orders.id = order_items.order_id").
			Joins("JOIN prompts ON prompts.id = order_items.prompt_id").
			Where("orders.status = ? AND orders.paid_at >= ? AND orders.paid_at < ? AND prompts.seller_id = ?",
				models.OrderStatusPaid, start, end, *sellerID).
			Group("orders.id, orders.paid_at").
			Select("orders.paid_at AS paid_at, SUM(order_items.unit_price_jpy * order_items.quantity) AS amount").
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to fetch seller orders: %w", err)
		}
	}

	type bucket struct {
		label   string
		revenue int64
		orders  int64
	}
	buckets := make(map[string]*bucket)

	for _, r := range rows {
		key, label := bucketKey(period, r.PaidAt)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{label: label}
			buckets[key] = b
		}
		b.revenue += r.Amount
		b.orders++
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	points := make([]TrendPoint, 0, len(keys))
	for _, key := range keys {
		b := buckets[key]
		points = append(points, TrendPoint{
			Bucket:     key,
			Label:      b.label,
			RevenueJPY: b.revenue,
			OrderCount: b.orders,
		})
	}

	return points, nil
}

// bucketKey yields a chronologically sortable key plus a display label.
func bucketKey(period string, t time.Time) (key, label string) {
	switch period {
	case PeriodMonth:
		// Weekly buckets anchored on Monday.
		weekStart := t.AddDate(0, 0, -((int(t.Weekday()) + 6) % 7))
		key = weekStart.Format("2006-01-02")
		return key, "Week of " + key
	case PeriodYear:
		key = t.Format("2006-01")
		return key, key
	default:
		key = t.Format("2006-01-02")
		return key, key
	}
}
