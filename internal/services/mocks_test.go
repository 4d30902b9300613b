package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"logistics-service/internal/carriers"
	"logistics-service/internal/models"
	"logistics-service/internal/repository"
)

// MockOrderRepository is a mock implementation of OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

// Ensure MockOrderRepository implements the interface
var _ repository.OrderRepository = (*MockOrderRepository)(nil)

func (m *MockOrderRepository) GetOrder(ctx context.Context, tenantID string, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) GetOrders(ctx context.Context, tenantID string, ids []uuid.UUID) ([]models.Order, error) {
	args := m.Called(ctx, tenantID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockOrderRepository) GetOrderByAWB(ctx context.Context, tenantID, awbNumber string) (*models.Order, error) {
	args := m.Called(ctx, tenantID, awbNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) AttachShipment(ctx context.Context, tenantID string, id uuid.UUID, result *models.ShipmentResult, serviceType string, charge decimal.Decimal) error {
	args := m.Called(ctx, tenantID, id, result, serviceType, charge)
	return args.Error(0)
}

func (m *MockOrderRepository) MarkManifested(ctx context.Context, tenantID string, ids []uuid.UUID, manifestURL string) error {
	args := m.Called(ctx, tenantID, ids, manifestURL)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, from, to models.ShipmentStatus) error {
	args := m.Called(ctx, tenantID, id, from, to)
	return args.Error(0)
}

func (m *MockOrderRepository) ApplyTracking(ctx context.Context, order *models.Order, snapshot *models.TrackingSnapshot, next models.ShipmentStatus) error {
	args := m.Called(ctx, order, snapshot, next)
	return args.Error(0)
}

func (m *MockOrderRepository) ListTrackable(ctx context.Context, limit int) ([]models.Order, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

// MockCourier is a mock implementation of carriers.Courier
type MockCourier struct {
	mock.Mock
}

var _ carriers.Courier = (*MockCourier)(nil)

func (m *MockCourier) Partner() models.CourierPartner {
	return models.PartnerXpressbees
}

func (m *MockCourier) TestConnection(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCourier) GetRates(ctx context.Context, request models.RateRequest) ([]models.RateQuote, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RateQuote), args.Error(1)
}

func (m *MockCourier) ListCouriers(ctx context.Context) ([]models.CourierInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CourierInfo), args.Error(1)
}

func (m *MockCourier) GenerateAWB(ctx context.Context, request models.ShipmentRequest, serviceType string) (*models.ShipmentResult, error) {
	args := m.Called(ctx, request, serviceType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShipmentResult), args.Error(1)
}

func (m *MockCourier) CreateManifest(ctx context.Context, awbNumbers []string) (*models.ManifestResult, error) {
	args := m.Called(ctx, awbNumbers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ManifestResult), args.Error(1)
}

func (m *MockCourier) CancelShipment(ctx context.Context, awbNumber string) models.CancelResult {
	args := m.Called(ctx, awbNumber)
	return args.Get(0).(models.CancelResult)
}

func (m *MockCourier) TrackShipment(ctx context.Context, awbNumber string) (*models.TrackingSnapshot, error) {
	args := m.Called(ctx, awbNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TrackingSnapshot), args.Error(1)
}

// MockCourierProvider resolves every tenant to the configured courier
type MockCourierProvider struct {
	mock.Mock
}

func (m *MockCourierProvider) ForTenant(ctx context.Context, tenantID string) (carriers.Courier, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(carriers.Courier), args.Error(1)
}

// MockAccountCouriers adds the account hooks of the courier factory
type MockAccountCouriers struct {
	MockCourierProvider
}

var _ AccountCouriers = (*MockAccountCouriers)(nil)

func (m *MockAccountCouriers) NewForAccount(account *models.CourierAccount) carriers.Courier {
	args := m.Called(account)
	return args.Get(0).(carriers.Courier)
}

func (m *MockAccountCouriers) InvalidateTenantCache(tenantID string) {
	m.Called(tenantID)
}

// MockPublisher captures published event types
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishShipmentEvent(ctx context.Context, eventType string, order *models.Order, previous models.ShipmentStatus) error {
	args := m.Called(ctx, eventType, order, previous)
	return args.Error(0)
}

// MockAccountRepository is a mock implementation of AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

var _ AccountRepository = (*MockAccountRepository)(nil)

func (m *MockAccountRepository) GetCourierAccount(ctx context.Context, tenantID string, partner models.CourierPartner) (*models.CourierAccount, error) {
	args := m.Called(ctx, tenantID, partner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CourierAccount), args.Error(1)
}

func (m *MockAccountRepository) UpsertCourierAccount(ctx context.Context, account *models.CourierAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) MarkVerified(ctx context.Context, tenantID string, partner models.CourierPartner, at time.Time) error {
	args := m.Called(ctx, tenantID, partner, at)
	return args.Error(0)
}

// memorySnapshotCache is an in-process SnapshotCache
type memorySnapshotCache struct {
	entries map[string]*models.TrackingSnapshot
}

func newMemorySnapshotCache() *memorySnapshotCache {
	return &memorySnapshotCache{entries: make(map[string]*models.TrackingSnapshot)}
}

func (c *memorySnapshotCache) Get(ctx context.Context, tenantID, awbNumber string) (*models.TrackingSnapshot, bool) {
	s, ok := c.entries[snapshotKey(tenantID, awbNumber)]
	return s, ok
}

func (c *memorySnapshotCache) Set(ctx context.Context, tenantID, awbNumber string, snapshot *models.TrackingSnapshot) {
	c.entries[snapshotKey(tenantID, awbNumber)] = snapshot
}
