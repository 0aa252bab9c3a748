// internal/handlers/cart.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/promptmint/promptmint-backend/internal/services"
	"github.com/promptmint/promptmint-backend/internal/utils"
)

type CartHandler struct {
	cartService *services.CartService
}

func NewCartHandler(cartService *services.CartService) *CartHandler {
	return &CartHandler{
		cartService: cartService,
	}
}

// GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}

	cart, err := h.cartService.GetCart(buyerID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, cart)
}

// POST /cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	item, err := h.cartService.AddItem(buyerID, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPromptNotFound):
			utils.NotFoundResponse(c, "Prompt")
		case errors.Is(err, services.ErrPromptNotPublished):
			utils.BadRequestResponse(c, "Prompt is not available for purchase", nil)
		default:
			utils.InternalErrorResponse(c, err.Error())
		}
		return
	}

	utils.CreatedResponse(c, item)
}

// DELETE /cart/items/:promptId
func (h *CartHandler) RemoveItem(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}

	promptID, err := uuid.Parse(c.Param("promptId"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid prompt ID", nil)
		return
	}

	if err := h.cartService.RemoveItem(buyerID, promptID); err != nil {
		if errors.Is(err, services.ErrPromptNotFound) {
			utils.NotFoundResponse(c, "Cart item")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"removed": promptID})
}

// currentUserID pulls the authenticated user's id out of the gin context
// and writes the error response itself when it is missing or malformed.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return uuid.Nil, false
	}

	return userID, true
}
