package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"logistics-service/internal/carriers"
	"logistics-service/internal/models"
	"logistics-service/internal/services"
)

// MockShippingService is a mock implementation of ShippingService
type MockShippingService struct {
	mock.Mock
}

var _ services.ShippingService = (*MockShippingService)(nil)

func (m *MockShippingService) GetRates(ctx context.Context, tenantID string, request models.RateRequest) ([]models.RateQuote, error) {
	args := m.Called(ctx, tenantID, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RateQuote), args.Error(1)
}

func (m *MockShippingService) ListCouriers(ctx context.Context, tenantID string) ([]models.CourierInfo, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CourierInfo), args.Error(1)
}

func (m *MockShippingService) BookShipment(ctx context.Context, tenantID string, orderID uuid.UUID, request models.BookShipmentRequest) (*models.ShipmentResult, error) {
	args := m.Called(ctx, tenantID, orderID, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShipmentResult), args.Error(1)
}

func (m *MockShippingService) CreateManifest(ctx context.Context, tenantID string, orderIDs []uuid.UUID) (*models.ManifestResult, error) {
	args := m.Called(ctx, tenantID, orderIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ManifestResult), args.Error(1)
}

func (m *MockShippingService) CancelShipment(ctx context.Context, tenantID string, orderID uuid.UUID) (models.CancelResult, error) {
	args := m.Called(ctx, tenantID, orderID)
	return args.Get(0).(models.CancelResult), args.Error(1)
}

func (m *MockShippingService) TrackAWB(ctx context.Context, tenantID, awbNumber string) (*models.TrackingSnapshot, error) {
	args := m.Called(ctx, tenantID, awbNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TrackingSnapshot), args.Error(1)
}

func (m *MockShippingService) RefreshTracking(ctx context.Context, tenantID string, orderID uuid.UUID) (*models.TrackingSnapshot, error) {
	args := m.Called(ctx, tenantID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TrackingSnapshot), args.Error(1)
}

func (m *MockShippingService) ApplySnapshot(ctx context.Context, order *models.Order, snapshot *models.TrackingSnapshot) error {
	args := m.Called(ctx, order, snapshot)
	return args.Error(0)
}

const testTenant = "tenant-123"

// Helper to setup test router with tenant context
func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("tenant_id", testTenant)
		c.Next()
	})
	return r
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func validRateBody() map[string]interface{} {
	return map[string]interface{}{
		"originPincode":      "110001",
		"destinationPincode": "400001",
		"paymentMode":        "cod",
		"declaredValue":      "500",
		"weight":             0.5,
		"length":             10,
		"width":              10,
		"height":             10,
	}
}

func TestGetRates_Handler_Success(t *testing.T) {
	svc := new(MockShippingService)
	handler := NewShippingHandler(svc)
	router := setupTestRouter()
	router.POST("/api/rates", handler.GetRates)

	svc.On("GetRates", mock.Anything, testTenant, mock.AnythingOfType("models.RateRequest")).Return([]models.RateQuote{
		{CourierID: "1", CourierName: "Surface", TotalPrice: decimal.RequireFromString("120.5")},
	}, nil)

	w := performRequest(router, http.MethodPost, "/api/rates", validRateBody())
	assert.Equal(t, http.StatusOK, w.Code)

	response := decodeBody(t, w)
	assert.Equal(t, true, response["success"])
	assert.Len(t, response["rates"], 1)
	svc.AssertExpectations(t)
}

func TestGetRates_Handler_EmptyRates(t *testing.T) {
	svc := new(MockShippingService)
	router := setupTestRouter()
	router.POST("/api/rates", NewShippingHandler(svc).GetRates)

	svc.On("GetRates", mock.Anything, testTenant, mock.Anything).Return([]models.RateQuote{}, nil)

	w := performRequest(router, http.MethodPost, "/api/rates", validRateBody())
	assert.Equal(t, http.StatusOK, w.Code)

	response := decodeBody(t, w)
	assert.Equal(t, "no rates available", response["message"])
	assert.Empty(t, response["rates"])
}

func TestGetRates_Handler_PartnerFailure(t *testing.T) {
	svc := new(MockShippingService)
	router := setupTestRouter()
	router.POST("/api/rates", NewShippingHandler(svc).GetRates)

	svc.On("GetRates", mock.Anything, testTenant, mock.Anything).Return(nil, fmt.Errorf("failed to get rates: %w", carriers.ErrNoToken))

	w := performRequest(router, http.MethodPost, "/api/rates", validRateBody())
	assert.Equal(t, http.StatusBadGateway, w.Code)

	response := decodeBody(t, w)
	assert.Equal(t, false, response["success"])
	assert.Equal(t, "no rates available", response["message"])
	assert.NotNil(t, response["rates"])
}

func TestGetRates_Handler_NotConfigured(t *testing.T) {
	svc := new(MockShippingService)
	router := setupTestRouter()
	router.POST("/api/rates", NewShippingHandler(svc).GetRates)

	svc.On("GetRates", mock.Anything, testTenant, mock.Anything).Return(nil, carriers.ErrNotConfigured)

	w := performRequest(router, http.MethodPost, "/api/rates", validRateBody())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetRates_Handler_InvalidBody(t *testing.T) {
	svc := new(MockShippingService)
	router := setupTestRouter()
	router.POST("/api/rates", NewShippingHandler(svc).GetRates)

	body := validRateBody()
	body["paymentMode"] = "barter"

	w := performRequest(router, http.MethodPost, "/api/rates", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "GetRates", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookShipment_Handler(t *testing.T) {
	orderID := uuid.New()

	tests := []struct {
		name       string
		result     *models.ShipmentResult
		err        error
		wantStatus int
	}{
		{"created", &models.ShipmentResult{AWBNumber: "XB123"}, nil, http.StatusCreated},
		{"already shipped", nil, services.ErrAlreadyShipped, http.StatusConflict},
		{"order not found", nil, services.ErrOrderNotFound, http.StatusNotFound},
		{"partner rejected", nil, fmt.Errorf("failed to create shipment: %w", carriers.ErrPartnerRejected), http.StatusUnprocessableEntity},
		{"not configured", nil, carriers.ErrNotConfigured, http.StatusServiceUnavailable},
		{"unexpected", nil, errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockShippingService)
			router := setupTestRouter()
			router.POST("/api/orders/:id/shipment", NewShippingHandler(svc).BookShipment)

			request := models.BookShipmentRequest{ServiceType: "Surface"}
			if tt.result != nil {
				svc.On("BookShipment", mock.Anything, testTenant, orderID, mock.AnythingOfType("models.BookShipmentRequest")).Return(tt.result, nil)
			} else {
				svc.On("BookShipment", mock.Anything, testTenant, orderID, mock.AnythingOfType("models.BookShipmentRequest")).Return(nil, tt.err)
			}

			w := performRequest(router, http.MethodPost, "/api/orders/"+orderID.String()+"/shipment", request)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestBookShipment_Handler_InvalidOrderID(t *testing.T) {
	svc := new(MockShippingService)
	router := setupTestRouter()
	router.POST("/api/orders/:id/shipment", NewShippingHandler(svc).BookShipment)

	w := performRequest(router, http.MethodPost, "/api/orders/not-a-uuid/shipment", models.BookShipmentRequest{ServiceType: "Surface"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid order ID", decodeBody(t, w)["error"])
}

func TestCreateManifest_Handler(t *testing.T) {
	svc := new(MockShippingService)
	router := setupTestRouter()
	router.POST("/api/manifests", NewShippingHandler(svc).CreateManifest)

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	svc.On("CreateManifest", mock.Anything, testTenant, ids).Return(&models.ManifestResult{ManifestURL: "https://example.com/m.pdf"}, nil)

	w := performRequest(router, http.MethodPost, "/api/manifests", models.CreateManifestRequest{OrderIDs: ids})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = performRequest(router, http.MethodPost, "/api/manifests", map[string]interface{}{"orderIds": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "CreateManifest", 1)
}

func TestCancelShipment_Handler(t *testing.T) {
	orderID := uuid.New()

	t.Run("cancelled", func(t *testing.T) {
		svc := new(MockShippingService)
		router := setupTestRouter()
		router.POST("/api/orders/:id/cancel", NewShippingHandler(svc).CancelShipment)
		svc.On("CancelShipment", mock.Anything, testTenant, orderID).Return(models.CancelResult{Success: true, Message: "Cancelled"}, nil)

		w := performRequest(router, http.MethodPost, "/api/orders/"+orderID.String()+"/cancel", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decodeBody(t, w)["success"])
	})

	t.Run("partner refused", func(t *testing.T) {
		svc := new(MockShippingService)
		router := setupTestRouter()
		router.POST("/api/orders/:id/cancel", NewShippingHandler(svc).CancelShipment)
		svc.On("CancelShipment", mock.Anything, testTenant, orderID).Return(models.CancelResult{Success: false, Message: "Already picked up"}, nil)

		w := performRequest(router, http.MethodPost, "/api/orders/"+orderID.String()+"/cancel", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "cancellation failed: Already picked up", decodeBody(t, w)["message"])
	})

	t.Run("not cancellable", func(t *testing.T) {
		svc := new(MockShippingService)
		router := setupTestRouter()
		router.POST("/api/orders/:id/cancel", NewShippingHandler(svc).CancelShipment)
		svc.On("CancelShipment", mock.Anything, testTenant, orderID).Return(models.CancelResult{}, services.ErrInvalidTransition)

		w := performRequest(router, http.MethodPost, "/api/orders/"+orderID.String()+"/cancel", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestTrackShipment_Handler(t *testing.T) {
	svc := new(MockShippingService)
	router := setupTestRouter()
	router.GET("/api/track/:awb", NewShippingHandler(svc).TrackShipment)

	svc.On("TrackAWB", mock.Anything, testTenant, "XB123").Return(&models.TrackingSnapshot{AWBNumber: "XB123", Status: "In Transit"}, nil)
	svc.On("TrackAWB", mock.Anything, testTenant, "XB404").Return(nil, carriers.ErrNoTrackingData)

	w := performRequest(router, http.MethodGet, "/api/track/XB123", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "In Transit", data["status"])

	w = performRequest(router, http.MethodGet, "/api/track/XB404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshTracking_Handler(t *testing.T) {
	svc := new(MockShippingService)
	router := setupTestRouter()
	router.POST("/api/orders/:id/track", NewShippingHandler(svc).RefreshTracking)

	orderID := uuid.New()
	svc.On("RefreshTracking", mock.Anything, testTenant, orderID).Return(nil, services.ErrNoAWB)

	w := performRequest(router, http.MethodPost, "/api/orders/"+orderID.String()+"/track", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestListCouriers_Handler(t *testing.T) {
	svc := new(MockShippingService)
	router := setupTestRouter()
	router.GET("/api/couriers", NewShippingHandler(svc).ListCouriers)

	svc.On("ListCouriers", mock.Anything, testTenant).Return([]models.CourierInfo{{ID: "1", Name: "Surface"}}, nil)

	w := performRequest(router, http.MethodGet, "/api/couriers", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["data"], 1)
}

func TestHealthCheck_Handler(t *testing.T) {
	router := setupTestRouter()
	router.GET("/health", NewShippingHandler(nil).HealthCheck)

	w := performRequest(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])
	assert.Equal(t, "disabled", decodeBody(t, w)["events"])
}

type stubBus bool

func (b stubBus) IsConnected() bool { return bool(b) }

func TestHealthCheck_ReportsEventBus(t *testing.T) {
	for _, tc := range []struct {
		connected bool
		want      string
	}{
		{true, "connected"},
		{false, "disconnected"},
	} {
		router := setupTestRouter()
		router.GET("/health", NewShippingHandler(nil).WithEventBus(stubBus(tc.connected)).HealthCheck)

		w := performRequest(router, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tc.want, decodeBody(t, w)["events"])
	}
}
