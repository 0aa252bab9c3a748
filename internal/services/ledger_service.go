// internal/services/ledger_service.go
package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/promptmint/promptmint-backend/internal/config"
	"github.com/promptmint/promptmint-backend/internal/models"
	"github.com/promptmint/promptmint-backend/internal/utils"
)

// LedgerService posts typed financial entries per order/seller and derives
// seller balances from them. For every paid order the four sale entries sum
// to exactly zero: fees are floored and the seller net takes the remainder.
type LedgerService struct {
	db     *gorm.DB
	config *config.Config
}

type FeeSplit struct {
	GrossJPY       int64 `json:"gross_jpy"`
	PaymentFeeJPY  int64 `json:"payment_fee_jpy"`
	PlatformFeeJPY int64 `json:"platform_fee_jpy"`
	SellerNetJPY   int64 `json:"seller_net_jpy"`
}

func NewLedgerService(db *gorm.DB, config *config.Config) *LedgerService {
	return &LedgerService{
		db:     db,
		config: config,
	}
}

// SplitTotal applies the fixed rounding rules: the flat payment fee is
// clamped to the gross, the platform commission is floored basis-point
// math, and the seller net is the exact remainder. The three deductions
// plus the gross always sum to zero.
func (s *LedgerService) SplitTotal(gross int64) FeeSplit {
	paymentFee := s.config.Payment.PaymentFeeJPY
	if paymentFee > gross {
		paymentFee = gross
	}

	platformFee := gross * s.config.Payment.PlatformFeeBP / 10000
	if paymentFee+platformFee > gross {
		platformFee = gross - paymentFee
	}

	return FeeSplit{
		GrossJPY:       gross,
		PaymentFeeJPY:  paymentFee,
		PlatformFeeJPY: platformFee,
		SellerNetJPY:   gross - paymentFee - platformFee,
	}
}

// PostSaleEntries posts the sale_gross / payment_fee / platform_fee /
// seller_net entry set for a paid order and credits the sellers' pending
// balances. Posting is idempotent per order: a second call returns
// ErrDuplicatePosting and changes nothing, so at-least-once delivery from
// the payment gateway cannot double-credit sellers.
func (s *LedgerService) PostSaleEntries(orderID uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.LedgerEntry{}).
			Where("order_id = ? AND entry_type = ?", orderID, models.EntryTypeSaleGross).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check existing entries: %w", err)
		}
		if count > 0 {
			return ErrDuplicatePosting
		}

		var order models.Order
		if err := tx.Preload("Items").Preload("Items.Prompt").
			First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		if order.Status != models.OrderStatusPaid {
			return fmt.Errorf("order %s is not paid", order.OrderNumber)
		}

		split := s.SplitTotal(order.TotalAmountJPY)

		paidAt := time.Now()
		if order.PaidAt != nil {
			paidAt = *order.PaidAt
		}
		availableAt := paidAt.AddDate(0, 0, s.config.Payment.PendingHoldDays)

		oid := order.ID
		entries := []models.LedgerEntry{
			{
				EntryType: models.EntryTypeSaleGross,
				OrderID:   &oid,
				AmountJPY: split.GrossJPY,
				Note:      "sale " + order.OrderNumber,
				Matured:   true,
			},
			{
				EntryType: models.EntryTypePaymentFee,
				OrderID:   &oid,
				AmountJPY: -split.PaymentFeeJPY,
				Note:      "payment processor fee",
				Matured:   true,
			},
			{
				EntryType: models.EntryTypePlatformFee,
				OrderID:   &oid,
				AmountJPY: -split.PlatformFeeJPY,
				Note:      "platform commission",
				Matured:   true,
			},
		}

		for _, share := range allocateSellerNet(order.Items, split.SellerNetJPY, order.TotalAmountJPY) {
			sellerID := share.SellerID
			at := availableAt
			entries = append(entries, models.LedgerEntry{
				EntryType:   models.EntryTypeSellerNet,
				SellerID:    &sellerID,
				OrderID:     &oid,
				AmountJPY:   share.AmountJPY,
				Note:        "seller net " + order.OrderNumber,
				AvailableAt: &at,
				Matured:     false,
			})

			if err := s.creditBalance(tx, sellerID, "pending_jpy", share.AmountJPY); err != nil {
				return err
			}
		}

		if err := tx.Create(&entries).Error; err != nil {
			return fmt.Errorf("failed to create ledger entries: %w", err)
		}

		logrus.WithFields(logrus.Fields{
			"order_id":     order.ID,
			"gross_jpy":    split.GrossJPY,
			"platform_fee": split.PlatformFeeJPY,
			"payment_fee":  split.PaymentFeeJPY,
			"seller_net":   split.SellerNetJPY,
		}).Info("Sale entries posted")

		return nil
	})
}

type sellerShare struct {
	SellerID  uuid.UUID
	AmountJPY int64
}

// allocateSellerNet splits the order's net across its sellers in proportion
// to their item subtotals. Each share is floored; the leftover yen are
// handed out one at a time in a deterministic order (largest subtotal
// first, seller id as tie-break) so the shares always sum to the net.
func allocateSellerNet(items []models.OrderItem, net, gross int64) []sellerShare {
	if gross <= 0 || net <= 0 {
		return nil
	}

	subtotals := make(map[uuid.UUID]int64)
	for _, item := range items {
		subtotals[item.Prompt.SellerID] += item.SubtotalJPY()
	}

	shares := make([]sellerShare, 0, len(subtotals))
	var allocated int64
	for sellerID, subtotal := range subtotals {
		amount := net * subtotal / gross
		allocated += amount
		shares = append(shares, sellerShare{SellerID: sellerID, AmountJPY: amount})
	}
	if len(shares) == 0 {
		return nil
	}

	sort.Slice(shares, func(i, j int) bool {
		si, sj := subtotals[shares[i].SellerID], subtotals[shares[j].SellerID]
		if si != sj {
			return si > sj
		}
		return shares[i].SellerID.String() < shares[j].SellerID.String()
	})

	for i := 0; allocated < net; i = (i + 1) % len(shares) {
		shares[i].AmountJPY++
		allocated++
	}

	return shares
}

// MaturePendingBalances promotes seller_net entries whose hold window has
// elapsed from pending to available. Each entry is claimed with a
// conditional update first, so concurrent runs never promote twice.
func (s *LedgerService) MaturePendingBalances(now time.Time) (int, error) {
	var due []models.LedgerEntry
	if err := s.db.Where("entry_type = ? AND matured = ? AND available_at <= ?",
		models.EntryTypeSellerNet, false, now).Find(&due).Error; err != nil {
		return 0, fmt.Errorf("failed to query maturing entries: %w", err)
	}

	matured := 0
	for _, entry := range due {
		err := s.db.Transaction(func(tx *gorm.DB) error {
			claim := tx.Model(&models.LedgerEntry{}).
				Where("id = ? AND matured = ?", entry.ID, false).
				Update("matured", true)
			if claim.Error != nil {
				return fmt.Errorf("failed to claim entry: %w", claim.Error)
			}
			if claim.RowsAffected == 0 {
				return nil
			}

			move := tx.Model(&models.SellerBalance{}).
				Where("seller_id = ? AND pending_jpy >= ?", entry.SellerID, entry.AmountJPY).
				Updates(map[string]interface{}{
					"pending_jpy":   gorm.Expr("pending_jpy - ?", entry.AmountJPY),
					"available_jpy": gorm.Expr("available_jpy + ?", entry.AmountJPY),
				})
			if move.Error != nil {
				return fmt.Errorf("failed to move balance: %w", move.Error)
			}
			if move.RowsAffected == 0 {
				// Rolls back the claim; the entry is retried on a later run.
				return fmt.Errorf("pending balance below entry amount for seller %s", entry.SellerID)
			}

			matured++
			return nil
		})
		if err != nil {
			logrus.WithError(err).WithField("entry_id", entry.ID).Warn("Failed to mature ledger entry")
		}
	}

	return matured, nil
}

// PostRefundEntries posts a mirrored refund entry set reversing a prior
// sale and marks the order refunded. Idempotent per order.
func (s *LedgerService) PostRefundEntries(orderID uuid.UUID, note string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.LedgerEntry{}).
			Where("order_id = ? AND entry_type = ?", orderID, models.EntryTypeRefund).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check existing refund: %w", err)
		}
		if count > 0 {
			return ErrDuplicatePosting
		}

		var originals []models.LedgerEntry
		if err := tx.Where("order_id = ? AND entry_type IN ?", orderID, []models.LedgerEntryType{
			models.EntryTypeSaleGross,
			models.EntryTypePaymentFee,
			models.EntryTypePlatformFee,
			models.EntryTypeSellerNet,
		}).Find(&originals).Error; err != nil {
			return fmt.Errorf("failed to load sale entries: %w", err)
		}
		if len(originals) == 0 {
			return ErrNoSaleEntries
		}

		for _, original := range originals {
			reversal := models.LedgerEntry{
				EntryType: models.EntryTypeRefund,
				SellerID:  original.SellerID,
				OrderID:   original.OrderID,
				AmountJPY: -original.AmountJPY,
				Note:      fmt.Sprintf("refund reversal of %s: %s", original.EntryType, note),
				Matured:   true,
			}
			if err := tx.Create(&reversal).Error; err != nil {
				return fmt.Errorf("failed to create refund entry: %w", err)
			}

			if original.EntryType == models.EntryTypeSellerNet && original.SellerID != nil {
				if err := s.reverseSellerNet(tx, original); err != nil {
					return err
				}
			}
		}

		if err := tx.Model(&models.Order{}).Where("id = ?", orderID).
			Update("status", models.OrderStatusRefunded).Error; err != nil {
			return fmt.Errorf("failed to mark order refunded: %w", err)
		}

		return nil
	})
}

// reverseSellerNet takes a refunded seller_net amount back out of the
// seller's balances, preferring the bucket it currently sits in.
func (s *LedgerService) reverseSellerNet(tx *gorm.DB, original models.LedgerEntry) error {
	sellerID := *original.SellerID
	amount := original.AmountJPY

	if !original.Matured {
		// Stop the maturation job from promoting an amount that is being
		// clawed back.
		claim := tx.Model(&models.LedgerEntry{}).
			Where("id = ? AND matured = ?", original.ID, false).
			Update("matured", true)
		if claim.Error != nil {
			return fmt.Errorf("failed to claim seller_net entry: %w", claim.Error)
		}
		if claim.RowsAffected > 0 {
			if ok, err := s.debitBalance(tx, sellerID, "pending_jpy", amount); err != nil || ok {
				return err
			}
		}
	}

	if ok, err := s.debitBalance(tx, sellerID, "available_jpy", amount); err != nil || ok {
		return err
	}
	if ok, err := s.debitBalance(tx, sellerID, "pending_jpy", amount); err != nil || ok {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"seller_id":  sellerID,
		"amount_jpy": amount,
	}).Warn("Seller balance below refund reversal; entry recorded without balance debit")
	return nil
}

// PostAdjustment records a manual corrective entry from operator tooling
// and applies it to the seller's available balance when seller-scoped.
func (s *LedgerService) PostAdjustment(sellerID *uuid.UUID, amountJPY int64, note string) (*models.LedgerEntry, error) {
	if amountJPY == 0 {
		return nil, errors.New("adjustment amount must be non-zero")
	}

	var entry models.LedgerEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if sellerID != nil {
			if amountJPY > 0 {
				if err := s.creditBalance(tx, *sellerID, "available_jpy", amountJPY); err != nil {
					return err
				}
			} else {
				ok, err := s.debitBalance(tx, *sellerID, "available_jpy", -amountJPY)
				if err != nil {
					return err
				}
				if !ok {
					return ErrInsufficientBalance
				}
			}
		}

		entry = models.LedgerEntry{
			EntryType: models.EntryTypeAdjustment,
			SellerID:  sellerID,
			AmountJPY: amountJPY,
			Note:      note,
			Matured:   true,
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// PostPayoutEntry records the disbursement of a paid payout.
func (s *LedgerService) PostPayoutEntry(tx *gorm.DB, sellerID uuid.UUID, amountJPY int64, note string) error {
	entry := models.LedgerEntry{
		EntryType: models.EntryTypePayout,
		SellerID:  &sellerID,
		AmountJPY: -amountJPY,
		Note:      note,
		Matured:   true,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to create payout entry: %w", err)
	}
	return nil
}

func (s *LedgerService) creditBalance(tx *gorm.DB, sellerID uuid.UUID, column string, amount int64) error {
	result := tx.Model(&models.SellerBalance{}).
		Where("seller_id = ?", sellerID).
		UpdateColumn(column, gorm.Expr(column+" + ?", amount))
	if result.Error != nil {
		return fmt.Errorf("failed to credit balance: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	balance := models.SellerBalance{SellerID: sellerID}
	if column == "pending_jpy" {
		balance.PendingJPY = amount
	} else {
		balance.AvailableJPY = amount
	}
	if err := tx.Create(&balance).Error; err != nil {
		return fmt.Errorf("failed to create balance row: %w", err)
	}
	return nil
}

// debitBalance decrements only if the column covers the amount, closing the
// read-then-write race. Returns false when the balance was insufficient.
func (s *LedgerService) debitBalance(tx *gorm.DB, sellerID uuid.UUID, column string, amount int64) (bool, error) {
	result := tx.Model(&models.SellerBalance{}).
		Where("seller_id = ? AND "+column+" >= ?", sellerID, amount).
		UpdateColumn(column, gorm.Expr(column+" - ?", amount))
	if result.Error != nil {
		return false, fmt.Errorf("failed to debit balance: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetBalance returns the seller's balance, creating the zero row on first
// read so dashboards never distinguish "no row" from "no earnings".
func (s *LedgerService) GetBalance(sellerID uuid.UUID) (*models.SellerBalance, error) {
	var balance models.SellerBalance
	err := s.db.Where("seller_id = ?", sellerID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		balance = models.SellerBalance{SellerID: sellerID}
		if err := s.db.Create(&balance).Error; err != nil {
			return nil, fmt.Errorf("failed to create balance row: %w", err)
		}
		return &balance, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	return &balance, nil
}

func (s *LedgerService) GetSellerEntries(sellerID uuid.UUID, params utils.PaginationParams) ([]models.LedgerEntry, int64, error) {
	query := s.db.Model(&models.LedgerEntry{}).Where("seller_id = ?", sellerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	allowedSortFields := []string{"created_at", "amount_jpy", "entry_type"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var entries []models.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch ledger entries: %w", err)
	}

	return entries, total, nil
}

type LedgerEntryFilter struct {
	utils.PaginationParams
	EntryType *models.LedgerEntryType `json:"entry_type,omitempty"`
	SellerID  *uuid.UUID              `json:"seller_id,omitempty"`
	OrderID   *uuid.UUID              `json:"order_id,omitempty"`
}

func (s *LedgerService) GetEntries(filter LedgerEntryFilter) ([]models.LedgerEntry, int64, error) {
	query := s.db.Model(&models.LedgerEntry{})

	if filter.EntryType != nil {
		query = query.Where("entry_type = ?", *filter.EntryType)
	}
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	allowedSortFields := []string{"created_at", "amount_jpy", "entry_type"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var entries []models.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch ledger entries: %w", err)
	}

	return entries, total, nil
}

// ExportCSV renders every ledger entry in [start, end) as CSV for the
// accounting export.
func (s *LedgerService) ExportCSV(start, end time.Time) ([]byte, error) {
	var entries []models.LedgerEntry
	if err := s.db.Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch ledger entries: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"id", "created_at", "entry_type", "seller_id", "order_id", "amount_jpy", "note"}); err != nil {
		return nil, err
	}

	for _, e := range entries {
		sellerID, orderID := "", ""
		if e.SellerID != nil {
			sellerID = e.SellerID.String()
		}
		if e.OrderID != nil {
			orderID = e.OrderID.String()
		}
		record := []string{
			e.ID.String(),
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.EntryType),
			sellerID,
			orderID,
			strconv.FormatInt(e.AmountJPY, 10),
			e.Note,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
