package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"logistics-service/internal/carriers"
	"logistics-service/internal/models"
	"logistics-service/internal/services"
)

const msgNoRates = "no rates available"

// ConnectionChecker reports the state of an optional dependency
type ConnectionChecker interface {
	IsConnected() bool
}

// ShippingHandler handles HTTP requests for courier operations on orders
type ShippingHandler struct {
	shippingService services.ShippingService
	eventBus        ConnectionChecker
}

// NewShippingHandler creates a new shipping handler
func NewShippingHandler(shippingService services.ShippingService) *ShippingHandler {
	return &ShippingHandler{
		shippingService: shippingService,
	}
}

// WithEventBus reports the event bus connection on /health
func (h *ShippingHandler) WithEventBus(bus ConnectionChecker) *ShippingHandler {
	h.eventBus = bus
	return h
}

// GetRates handles POST /api/rates
func (h *ShippingHandler) GetRates(c *gin.Context) {
	tenantID := getTenantID(c)

	var request models.RateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	rates, err := h.shippingService.GetRates(c.Request.Context(), tenantID, request)
	if err != nil {
		if errors.Is(err, carriers.ErrNotConfigured) {
			respondError(c, err, "Failed to get shipping rates")
			return
		}
		c.JSON(http.StatusBadGateway, models.GetRatesResponse{
			Success: false,
			Rates:   []models.RateQuote{},
			Message: msgNoRates,
		})
		return
	}

	response := models.GetRatesResponse{
		Success: true,
		Rates:   rates,
	}
	if len(rates) == 0 {
		response.Message = msgNoRates
	}
	c.JSON(http.StatusOK, response)
}

// ListCouriers handles GET /api/couriers
func (h *ShippingHandler) ListCouriers(c *gin.Context) {
	tenantID := getTenantID(c)

	couriers, err := h.shippingService.ListCouriers(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err, "Failed to list couriers")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    couriers,
	})
}

// BookShipment handles POST /api/orders/:id/shipment
func (h *ShippingHandler) BookShipment(c *gin.Context) {
	tenantID := getTenantID(c)

	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	var request models.BookShipmentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	result, err := h.shippingService.BookShipment(c.Request.Context(), tenantID, orderID, request)
	if err != nil {
		respondError(c, err, "Failed to create shipment")
		return
	}

	c.JSON(http.StatusCreated, models.SuccessResponse{
		Success: true,
		Data:    result,
		Message: stringPtr("Shipment created successfully"),
	})
}

// CreateManifest handles POST /api/manifests
func (h *ShippingHandler) CreateManifest(c *gin.Context) {
	tenantID := getTenantID(c)

	var request models.CreateManifestRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	result, err := h.shippingService.CreateManifest(c.Request.Context(), tenantID, request.OrderIDs)
	if err != nil {
		respondError(c, err, "Failed to create manifest")
		return
	}

	c.JSON(http.StatusCreated, models.SuccessResponse{
		Success: true,
		Data:    result,
		Message: stringPtr("Pickup requested successfully"),
	})
}

// CancelShipment handles POST /api/orders/:id/cancel
func (h *ShippingHandler) CancelShipment(c *gin.Context) {
	tenantID := getTenantID(c)

	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	result, err := h.shippingService.CancelShipment(c.Request.Context(), tenantID, orderID)
	if err != nil {
		respondError(c, err, "Failed to cancel shipment")
		return
	}

	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, models.CancelResult{
			Success: false,
			Message: "cancellation failed: " + result.Message,
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// TrackShipment handles GET /api/track/:awb
func (h *ShippingHandler) TrackShipment(c *gin.Context) {
	tenantID := getTenantID(c)

	awbNumber := c.Param("awb")
	if awbNumber == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid AWB number",
			Message: "AWB number is required",
		})
		return
	}

	snapshot, err := h.shippingService.TrackAWB(c.Request.Context(), tenantID, awbNumber)
	if err != nil {
		respondError(c, err, "Failed to track shipment")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    snapshot,
	})
}

// RefreshTracking handles POST /api/orders/:id/track
func (h *ShippingHandler) RefreshTracking(c *gin.Context) {
	tenantID := getTenantID(c)

	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	snapshot, err := h.shippingService.RefreshTracking(c.Request.Context(), tenantID, orderID)
	if err != nil {
		respondError(c, err, "Failed to track shipment")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    snapshot,
	})
}

// HealthCheck handles GET /health
func (h *ShippingHandler) HealthCheck(c *gin.Context) {
	// A lost event bus is reported but never fails the check
	eventsState := "disabled"
	if h.eventBus != nil {
		eventsState = "connected"
		if !h.eventBus.IsConnected() {
			eventsState = "disconnected"
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "logistics-service",
		"events":  eventsState,
	})
}

// respondError maps service and courier errors to HTTP responses
func respondError(c *gin.Context, err error, title string) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyShipped):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrNoAWB),
		errors.Is(err, services.ErrMissingWarehouse), errors.Is(err, services.ErrPasswordRequired):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, carriers.ErrNotConfigured):
		status = http.StatusServiceUnavailable
	case errors.Is(err, carriers.ErrNoTrackingData):
		status = http.StatusNotFound
	case errors.Is(err, carriers.ErrNoToken), errors.Is(err, carriers.ErrUnauthorized):
		status = http.StatusBadGateway
	case errors.Is(err, carriers.ErrPartnerRejected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, carriers.ErrInvalidResponse):
		status = http.StatusBadGateway
	}

	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error:   title,
		Message: message,
	})
}

func parseOrderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid order ID",
			Message: "Order ID must be a valid UUID",
		})
		return uuid.Nil, false
	}
	return id, true
}

// getTenantID extracts tenant ID from context
func getTenantID(c *gin.Context) string {
	// Set by IstioAuth middleware from x-jwt-claim-tenant-id, or by TenantMiddleware
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		tenantID = c.GetHeader("X-Tenant-ID")
	}
	return tenantID
}

// stringPtr returns a pointer to a string
func stringPtr(s string) *string {
	return &s
}
