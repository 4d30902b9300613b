package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"logistics-service/internal/carriers"
	"logistics-service/internal/models"
)

// CourierAccountManager is the account service the handler drives
type CourierAccountManager interface {
	Get(ctx context.Context, tenantID string) (*models.CourierAccount, error)
	Upsert(ctx context.Context, tenantID string, req models.UpsertCourierAccountRequest) (*models.CourierAccount, error)
	Test(ctx context.Context, tenantID string) error
}

// CourierAccountHandler handles tenant courier account requests
type CourierAccountHandler struct {
	accounts CourierAccountManager
}

// NewCourierAccountHandler creates a new courier account handler
func NewCourierAccountHandler(accounts CourierAccountManager) *CourierAccountHandler {
	return &CourierAccountHandler{accounts: accounts}
}

// GetAccount handles GET /api/courier-account
func (h *CourierAccountHandler) GetAccount(c *gin.Context) {
	tenantID := getTenantID(c)

	account, err := h.accounts.Get(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err, "Courier account not found")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    account.ToResponse(),
	})
}

// UpsertAccount handles PUT /api/courier-account
func (h *CourierAccountHandler) UpsertAccount(c *gin.Context) {
	tenantID := getTenantID(c)

	var request models.UpsertCourierAccountRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	account, err := h.accounts.Upsert(c.Request.Context(), tenantID, request)
	if err != nil {
		respondError(c, err, "Failed to save courier account")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    account.ToResponse(),
		Message: stringPtr(carriers.GetCarrierDisplayName(account.Partner) + " account saved"),
	})
}

// TestConnection handles POST /api/courier-account/test
func (h *CourierAccountHandler) TestConnection(c *gin.Context) {
	tenantID := getTenantID(c)

	if err := h.accounts.Test(c.Request.Context(), tenantID); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "Connection failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Connection successful",
	})
}
