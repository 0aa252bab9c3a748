// internal/handlers/admin.go
package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/promptmint/promptmint-backend/internal/models"
	"github.com/promptmint/promptmint-backend/internal/services"
	"github.com/promptmint/promptmint-backend/internal/utils"
)

// displayedPromptRows caps the prompt ranking shown on the admin dashboard.
const displayedPromptRows = 20

type AdminHandler struct {
	orderService   *services.OrderService
	ledgerService  *services.LedgerService
	payoutService  *services.PayoutService
	reportService  *services.ReportService
	storageService *services.StorageService
}

func NewAdminHandler(orderService *services.OrderService, ledgerService *services.LedgerService, payoutService *services.PayoutService, reportService *services.ReportService, storageService *services.StorageService) *AdminHandler {
	return &AdminHandler{
		orderService:   orderService,
		ledgerService:  ledgerService,
		payoutService:  payoutService,
		reportService:  reportService,
		storageService: storageService,
	}
}

// GET /admin/reports/sales?period=30days&seller_id=...
func (h *AdminHandler) GetSalesReport(c *gin.Context) {
	period := c.DefaultQuery("period", services.Period30Days)

	var sellerID *uuid.UUID
	if raw := c.Query("seller_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid seller ID", nil)
			return
		}
		sellerID = &id
	}

	report, err := h.reportService.BuildReport(period, sellerID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	if len(report.PromptSales) > displayedPromptRows {
		report.PromptSales = report.PromptSales[:displayedPromptRows]
	}

	utils.SuccessResponse(c, report)
}

// GET /admin/orders?status=paid
func (h *AdminHandler) GetOrders(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	var status *models.OrderStatus
	if raw := c.Query("status"); raw != "" {
		s := models.OrderStatus(raw)
		status = &s
	}

	orders, total, err := h.orderService.GetOrders(status, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(orders, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /admin/ledger?entry_type=seller_net&seller_id=...&order_id=...
func (h *AdminHandler) GetLedgerEntries(c *gin.Context) {
	filter := services.LedgerEntryFilter{
		PaginationParams: utils.GetPaginationParams(c),
	}

	if raw := c.Query("entry_type"); raw != "" {
		entryType := models.LedgerEntryType(raw)
		filter.EntryType = &entryType
	}
	if raw := c.Query("seller_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid seller ID", nil)
			return
		}
		filter.SellerID = &id
	}
	if raw := c.Query("order_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid order ID", nil)
			return
		}
		filter.OrderID = &id
	}

	entries, total, err := h.ledgerService.GetEntries(filter)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(entries, total, filter.PaginationParams)
	utils.PaginatedResponse(c, result)
}

type postAdjustmentRequest struct {
	SellerID  *uuid.UUID `json:"seller_id"`
	AmountJPY int64      `json:"amount_jpy" validate:"required"`
	Note      string     `json:"note" validate:"required,max=500"`
}

// POST /admin/ledger/adjustments
func (h *AdminHandler) PostAdjustment(c *gin.Context) {
	var req postAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	entry, err := h.ledgerService.PostAdjustment(req.SellerID, req.AmountJPY, req.Note)
	if err != nil {
		if errors.Is(err, services.ErrInsufficientBalance) {
			utils.BadRequestResponse(c, "Seller balance does not cover the adjustment", nil)
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.CreatedResponse(c, entry)
}

type refundOrderRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// POST /admin/orders/:id/refund
func (h *AdminHandler) RefundOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid order ID", nil)
		return
	}

	var req refundOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	if err := h.ledgerService.PostRefundEntries(orderID, req.Note); err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicatePosting):
			utils.ConflictResponse(c, "Order is already refunded")
		case errors.Is(err, services.ErrNoSaleEntries):
			utils.BadRequestResponse(c, "Order has no posted sale to reverse", nil)
		default:
			utils.InternalErrorResponse(c, err.Error())
		}
		return
	}

	utils.SuccessResponse(c, gin.H{"order_id": orderID, "status": models.OrderStatusRefunded})
}

// GET /admin/payouts?status=requested
func (h *AdminHandler) GetPayouts(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	var status *models.PayoutStatus
	if raw := c.Query("status"); raw != "" {
		s := models.PayoutStatus(raw)
		status = &s
	}

	payouts, total, err := h.payoutService.GetPayouts(status, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(payouts, total, params)
	utils.PaginatedResponse(c, result)
}

// POST /admin/payouts/:id/processing
func (h *AdminHandler) MarkPayoutProcessing(c *gin.Context) {
	h.transitionPayout(c, func(payoutID uuid.UUID) (*models.Payout, error) {
		return h.payoutService.MarkProcessing(payoutID)
	})
}

// POST /admin/payouts/:id/paid
func (h *AdminHandler) MarkPayoutPaid(c *gin.Context) {
	h.transitionPayout(c, func(payoutID uuid.UUID) (*models.Payout, error) {
		return h.payoutService.MarkPaid(payoutID)
	})
}

type failPayoutRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// POST /admin/payouts/:id/failed
func (h *AdminHandler) MarkPayoutFailed(c *gin.Context) {
	var req failPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	h.transitionPayout(c, func(payoutID uuid.UUID) (*models.Payout, error) {
		return h.payoutService.MarkFailed(payoutID, req.Reason)
	})
}

func (h *AdminHandler) transitionPayout(c *gin.Context, apply func(uuid.UUID) (*models.Payout, error)) {
	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid payout ID", nil)
		return
	}

	payout, err := apply(payoutID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPayoutNotFound):
			utils.NotFoundResponse(c, "Payout")
		case errors.Is(err, services.ErrInvalidPayoutState):
			utils.ConflictResponse(c, "Payout is not in a state that allows this transition")
		default:
			utils.InternalErrorResponse(c, err.Error())
		}
		return
	}

	utils.SuccessResponse(c, payout)
}

// POST /admin/ledger/mature
//
// Normally driven by the scheduler; exposed for operator-triggered runs.
func (h *AdminHandler) MaturePendingBalances(c *gin.Context) {
	matured, err := h.ledgerService.MaturePendingBalances(time.Now())
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"matured": matured})
}

// POST /admin/ledger/export?start=2026-01-01&end=2026-02-01
func (h *AdminHandler) ExportLedger(c *gin.Context) {
	start, err := time.Parse("2006-01-02", c.Query("start"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid start date, expected YYYY-MM-DD", nil)
		return
	}
	end, err := time.Parse("2006-01-02", c.Query("end"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid end date, expected YYYY-MM-DD", nil)
		return
	}
	if !end.After(start) {
		utils.BadRequestResponse(c, "End date must be after start date", nil)
		return
	}

	data, err := h.ledgerService.ExportCSV(start, end)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result, err := h.storageService.UploadLedgerExport("ledger", data)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, result)
}
