// internal/services/payout_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/promptmint/promptmint-backend/internal/config"
	"github.com/promptmint/promptmint-backend/internal/models"
	"github.com/promptmint/promptmint-backend/internal/utils"
)

// PayoutService drives the payout request state machine:
// requested → processing → {paid, failed}. The requested amount is
// reserved out of the available balance up front so concurrent requests
// cannot double-spend it.
type PayoutService struct {
	db            *gorm.DB
	config        *config.Config
	ledgerService *LedgerService
}

type RequestPayoutRequest struct {
	AmountJPY int64 `json:"amount_jpy" validate:"required,min=1"`
}

func NewPayoutService(db *gorm.DB, config *config.Config, ledgerService *LedgerService) *PayoutService {
	return &PayoutService{
		db:            db,
		config:        config,
		ledgerService: ledgerService,
	}
}

// RequestPayout atomically checks and reserves the amount against the
// seller's available balance. The check-and-reserve is a single conditional
// update, so two simultaneous requests whose sum exceeds the balance can
// never both succeed.
func (s *PayoutService) RequestPayout(sellerID uuid.UUID, req *RequestPayoutRequest) (*models.Payout, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if req.AmountJPY < s.config.Payment.MinimumPayoutJPY {
		return nil, ErrBelowMinimumPayout
	}

	// Make sure the balance row exists so the conditional update below can
	// distinguish "insufficient" from "never earned".
	if _, err := s.ledgerService.GetBalance(sellerID); err != nil {
		return nil, err
	}

	var payout models.Payout
	err := s.db.Transaction(func(tx *gorm.DB) error {
		reserve := tx.Model(&models.SellerBalance{}).
			Where("seller_id = ? AND available_jpy >= ?", sellerID, req.AmountJPY).
			UpdateColumn("available_jpy", gorm.Expr("available_jpy - ?", req.AmountJPY))
		if reserve.Error != nil {
			return fmt.Errorf("failed to reserve balance: %w", reserve.Error)
		}
		if reserve.RowsAffected == 0 {
			return ErrInsufficientBalance
		}

		payout = models.Payout{
			SellerID:    sellerID,
			AmountJPY:   req.AmountJPY,
			Status:      models.PayoutStatusRequested,
			RequestedAt: time.Now(),
		}
		if err := tx.Create(&payout).Error; err != nil {
			return fmt.Errorf("failed to create payout: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"payout_id":  payout.ID,
		"seller_id":  sellerID,
		"amount_jpy": req.AmountJPY,
	}).Info("Payout requested")

	return &payout, nil
}

// MarkProcessing moves a requested payout into processing. Used by the
// operator or automated disbursement process.
func (s *PayoutService) MarkProcessing(payoutID uuid.UUID) (*models.Payout, error) {
	return s.transition(payoutID, func(tx *gorm.DB, payout *models.Payout) error {
		if payout.Status != models.PayoutStatusRequested {
			return ErrInvalidPayoutState
		}
		payout.Status = models.PayoutStatusProcessing
		return nil
	})
}

// MarkPaid completes a processing payout and posts the payout ledger entry.
func (s *PayoutService) MarkPaid(payoutID uuid.UUID) (*models.Payout, error) {
	return s.transition(payoutID, func(tx *gorm.DB, payout *models.Payout) error {
		if payout.Status != models.PayoutStatusProcessing {
			return ErrInvalidPayoutState
		}

		now := time.Now()
		payout.Status = models.PayoutStatusPaid
		payout.ProcessedAt = &now

		return s.ledgerService.PostPayoutEntry(tx, payout.SellerID, payout.AmountJPY,
			"payout "+payout.ID.String())
	})
}

// MarkFailed terminates a requested or processing payout and restores the
// reserved amount back to the seller's available balance.
func (s *PayoutService) MarkFailed(payoutID uuid.UUID, reason string) (*models.Payout, error) {
	return s.transition(payoutID, func(tx *gorm.DB, payout *models.Payout) error {
		if payout.Status != models.PayoutStatusRequested && payout.Status != models.PayoutStatusProcessing {
			return ErrInvalidPayoutState
		}

		now := time.Now()
		payout.Status = models.PayoutStatusFailed
		payout.FailureReason = reason
		payout.ProcessedAt = &now

		restore := tx.Model(&models.SellerBalance{}).
			Where("seller_id = ?", payout.SellerID).
			UpdateColumn("available_jpy", gorm.Expr("available_jpy + ?", payout.AmountJPY))
		if restore.Error != nil {
			return fmt.Errorf("failed to restore balance: %w", restore.Error)
		}
		if restore.RowsAffected == 0 {
			return fmt.Errorf("balance row missing for seller %s", payout.SellerID)
		}

		return nil
	})
}

// transition loads the payout with a row lock, applies the state change,
// and saves it, all inside one transaction. Locking serializes concurrent
// operator actions on the same payout.
func (s *PayoutService) transition(payoutID uuid.UUID, apply func(*gorm.DB, *models.Payout) error) (*models.Payout, error) {
	var payout models.Payout
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Set("gorm:query_option", "FOR UPDATE").
			First(&payout, "id = ?", payoutID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPayoutNotFound
			}
			return fmt.Errorf("failed to load payout: %w", err)
		}

		if err := apply(tx, &payout); err != nil {
			return err
		}

		if err := tx.Save(&payout).Error; err != nil {
			return fmt.Errorf("failed to update payout: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"payout_id": payout.ID,
		"status":    payout.Status,
	}).Info("Payout transitioned")

	return &payout, nil
}

func (s *PayoutService) GetSellerPayouts(sellerID uuid.UUID, params utils.PaginationParams) ([]models.Payout, int64, error) {
	query := s.db.Model(&models.Payout{}).Where("seller_id = ?", sellerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payouts: %w", err)
	}

	allowedSortFields := []string{"created_at", "requested_at", "amount_jpy", "status"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var payouts []models.Payout
	if err := query.Find(&payouts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch payouts: %w", err)
	}

	return payouts, total, nil
}

// GetPayouts lists payouts across sellers for the admin processing screen.
func (s *PayoutService) GetPayouts(status *models.PayoutStatus, params utils.PaginationParams) ([]models.Payout, int64, error) {
	query := s.db.Model(&models.Payout{}).Preload("Seller")

	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payouts: %w", err)
	}

	allowedSortFields := []string{"created_at", "requested_at", "amount_jpy", "status"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var payouts []models.Payout
	if err := query.Find(&payouts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch payouts: %w", err)
	}

	return payouts, total, nil
}
