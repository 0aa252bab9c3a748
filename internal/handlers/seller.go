// internal/handlers/seller.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/promptmint/promptmint-backend/internal/services"
	"github.com/promptmint/promptmint-backend/internal/utils"
)

// SellerHandler serves the seller dashboard: balances, ledger history and
// payout requests.
type SellerHandler struct {
	ledgerService *services.LedgerService
	payoutService *services.PayoutService
	reportService *services.ReportService
}

func NewSellerHandler(ledgerService *services.LedgerService, payoutService *services.PayoutService, reportService *services.ReportService) *SellerHandler {
	return &SellerHandler{
		ledgerService: ledgerService,
		payoutService: payoutService,
		reportService: reportService,
	}
}

// GET /seller/balance
func (h *SellerHandler) GetBalance(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}

	balance, err := h.ledgerService.GetBalance(sellerID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, balance)
}

// GET /seller/ledger
func (h *SellerHandler) GetLedgerEntries(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)

	entries, total, err := h.ledgerService.GetSellerEntries(sellerID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(entries, total, params)
	utils.PaginatedResponse(c, result)
}

// POST /seller/payouts
func (h *SellerHandler) RequestPayout(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.RequestPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	payout, err := h.payoutService.RequestPayout(sellerID, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrBelowMinimumPayout):
			utils.BadRequestResponse(c, "Amount is below the minimum payout", nil)
		case errors.Is(err, services.ErrInsufficientBalance):
			utils.BadRequestResponse(c, "Insufficient available balance", nil)
		default:
			utils.InternalErrorResponse(c, err.Error())
		}
		return
	}

	utils.CreatedResponse(c, payout)
}

// GET /seller/payouts
func (h *SellerHandler) GetPayouts(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)

	payouts, total, err := h.payoutService.GetSellerPayouts(sellerID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(payouts, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /seller/reports/sales?period=30days
func (h *SellerHandler) GetSalesReport(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}

	period := c.DefaultQuery("period", services.Period30Days)

	report, err := h.reportService.BuildReport(period, &sellerID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, report)
}
