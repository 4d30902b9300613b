package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"logistics-service/internal/carriers"
	"logistics-service/internal/events"
	"logistics-service/internal/models"
	"logistics-service/internal/repository"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrAlreadyShipped    = errors.New("order already has a shipment")
	ErrInvalidTransition = errors.New("invalid shipment status transition")
	ErrNoAWB             = errors.New("order has no AWB")
	ErrMissingWarehouse  = errors.New("order has no pickup warehouse")
)

// CourierProvider resolves the courier client serving a tenant
type CourierProvider interface {
	ForTenant(ctx context.Context, tenantID string) (carriers.Courier, error)
}

// ShippingService handles the courier lifecycle of orders
type ShippingService interface {
	GetRates(ctx context.Context, tenantID string, request models.RateRequest) ([]models.RateQuote, error)
	ListCouriers(ctx context.Context, tenantID string) ([]models.CourierInfo, error)
	BookShipment(ctx context.Context, tenantID string, orderID uuid.UUID, request models.BookShipmentRequest) (*models.ShipmentResult, error)
	CreateManifest(ctx context.Context, tenantID string, orderIDs []uuid.UUID) (*models.ManifestResult, error)
	CancelShipment(ctx context.Context, tenantID string, orderID uuid.UUID) (models.CancelResult, error)
	TrackAWB(ctx context.Context, tenantID, awbNumber string) (*models.TrackingSnapshot, error)
	RefreshTracking(ctx context.Context, tenantID string, orderID uuid.UUID) (*models.TrackingSnapshot, error)
	ApplySnapshot(ctx context.Context, order *models.Order, snapshot *models.TrackingSnapshot) error
}

type shippingService struct {
	couriers   CourierProvider
	orderRepo  repository.OrderRepository
	publisher  events.EventPublisher
	cache      SnapshotCache
	vocabulary carriers.Vocabulary
	logger     *logrus.Entry
}

// NewShippingService creates a new shipping service
func NewShippingService(
	couriers CourierProvider,
	orderRepo repository.OrderRepository,
	publisher events.EventPublisher,
	cache SnapshotCache,
	logger *logrus.Entry,
) ShippingService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if cache == nil {
		cache = noopSnapshotCache{}
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &shippingService{
		couriers:   couriers,
		orderRepo:  orderRepo,
		publisher:  publisher,
		cache:      cache,
		vocabulary: carriers.XpressbeesVocabulary,
		logger:     logger.WithField("component", "shipping_service"),
	}
}

// GetRates quotes a package on the tenant's courier account
func (s *shippingService) GetRates(ctx context.Context, tenantID string, request models.RateRequest) ([]models.RateQuote, error) {
	courier, err := s.couriers.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	rates, err := courier.GetRates(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to get rates: %w", err)
	}

	// Cheapest first
	sort.SliceStable(rates, func(i, j int) bool {
		return rates[i].TotalPrice.LessThan(rates[j].TotalPrice)
	})

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"rates":     len(rates),
	}).Debug("Retrieved shipping rates")
	return rates, nil
}

// ListCouriers returns the courier services on the tenant's account
func (s *shippingService) ListCouriers(ctx context.Context, tenantID string) ([]models.CourierInfo, error) {
	courier, err := s.couriers.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return courier.ListCouriers(ctx)
}

// BookShipment generates an AWB for an unshipped order and stores it on the order
func (s *shippingService) BookShipment(ctx context.Context, tenantID string, orderID uuid.UUID, request models.BookShipmentRequest) (*models.ShipmentResult, error) {
	order, err := s.getOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if order.HasShipment() {
		return nil, ErrAlreadyShipped
	}
	if !order.ShipmentStatus.CanTransition(models.ShipmentStatusShipped) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.ShipmentStatus, models.ShipmentStatusShipped)
	}

	shipmentRequest, err := BuildShipmentRequest(order, request.ConsigneeGSTIN)
	if err != nil {
		return nil, err
	}

	courier, err := s.couriers.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result, err := courier.GenerateAWB(ctx, shipmentRequest, request.ServiceType)
	if err != nil {
		return nil, fmt.Errorf("failed to create shipment: %w", err)
	}

	if err := s.orderRepo.AttachShipment(ctx, tenantID, order.ID, result, request.ServiceType, request.QuotedPrice); err != nil {
		if errors.Is(err, repository.ErrShipmentAttached) {
			// The partner booked a second waybill; it has to be cancelled by hand
			s.logger.WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"order_id":  order.ID,
				"awb":       result.AWBNumber,
			}).Error("Order gained an AWB while booking; new AWB left unattached")
			return nil, ErrAlreadyShipped
		}
		return nil, fmt.Errorf("failed to save shipment: %w", err)
	}

	previous := order.ShipmentStatus
	order.AWBNumber = result.AWBNumber
	order.ShippingReferenceID = result.ShippingReferenceID
	order.LabelURL = result.LabelURL
	order.CourierService = request.ServiceType
	order.ShipmentStatus = models.ShipmentStatusShipped
	s.publish(ctx, events.ShipmentBooked, order, previous)

	s.logger.WithFields(logrus.Fields{
		"tenant_id":    tenantID,
		"order_number": order.OrderNumber,
		"awb":          result.AWBNumber,
	}).Info("Shipment booked")
	return result, nil
}

// BuildShipmentRequest snapshots an order and its warehouse into a booking request
func BuildShipmentRequest(order *models.Order, consigneeGSTIN string) (models.ShipmentRequest, error) {
	if order.Warehouse == nil {
		return models.ShipmentRequest{}, ErrMissingWarehouse
	}
	w := order.Warehouse

	items := make([]models.ShipmentItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.ShipmentItem{
			Name:          item.Name,
			SKU:           item.SKU,
			Quantity:      item.Quantity,
			DeclaredValue: item.UnitPrice,
			HSNCode:       item.HSNCode,
		})
	}

	collectable := decimal.Zero
	if order.PaymentMode.IsCOD() {
		collectable = order.CollectableAmount
		if collectable.IsZero() {
			collectable = order.TotalAmount
		}
	}

	return models.ShipmentRequest{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Consignor: models.Party{
			Name:     w.ContactName,
			Company:  w.Name,
			Phone:    w.Phone,
			Email:    w.Email,
			Address:  w.Address,
			Address2: w.Address2,
			City:     w.City,
			State:    w.State,
			Pincode:  w.Pincode,
			GSTIN:    w.GSTIN,
		},
		Consignee: models.Party{
			Name:     order.CustomerName,
			Phone:    order.CustomerPhone,
			Email:    order.CustomerEmail,
			Address:  order.Address,
			Address2: order.Address2,
			City:     order.City,
			State:    order.State,
			Pincode:  order.Pincode,
			GSTIN:    consigneeGSTIN,
		},
		Items:             items,
		PaymentMode:       order.PaymentMode,
		CollectableAmount: collectable,
		OrderAmount:       order.TotalAmount,
		Weight:            order.Weight,
		Length:            order.Length,
		Width:             order.Width,
		Height:            order.Height,
	}, nil
}

// CreateManifest requests one pickup for a batch of shipped orders
func (s *shippingService) CreateManifest(ctx context.Context, tenantID string, orderIDs []uuid.UUID) (*models.ManifestResult, error) {
	orders, err := s.orderRepo.GetOrders(ctx, tenantID, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}

	byID := make(map[uuid.UUID]*models.Order, len(orders))
	for i := range orders {
		byID[orders[i].ID] = &orders[i]
	}

	awbs := make([]string, 0, len(orderIDs))
	batch := make([]*models.Order, 0, len(orderIDs))
	seen := make(map[uuid.UUID]bool, len(orderIDs))
	for _, id := range orderIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		order, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		if !order.HasShipment() {
			return nil, fmt.Errorf("%w: order %s", ErrNoAWB, order.OrderNumber)
		}
		if order.ShipmentStatus != models.ShipmentStatusShipped {
			return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.OrderNumber, order.ShipmentStatus)
		}
		awbs = append(awbs, order.AWBNumber)
		batch = append(batch, order)
	}

	courier, err := s.couriers.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result, err := courier.CreateManifest(ctx, awbs)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(batch))
	for _, order := range batch {
		ids = append(ids, order.ID)
	}
	if err := s.orderRepo.MarkManifested(ctx, tenantID, ids, result.ManifestURL); err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}

	for _, order := range batch {
		order.ManifestURL = result.ManifestURL
		order.ShipmentStatus = models.ShipmentStatusManifested
		s.publish(ctx, events.ShipmentManifested, order, models.ShipmentStatusShipped)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"awbs":      len(awbs),
	}).Info("Manifest created")
	return result, nil
}

// CancelShipment cancels the order's AWB with the partner. Partner refusals come
// back as an unsuccessful result; errors are for orders that cannot be cancelled.
func (s *shippingService) CancelShipment(ctx context.Context, tenantID string, orderID uuid.UUID) (models.CancelResult, error) {
	order, err := s.getOrder(ctx, tenantID, orderID)
	if err != nil {
		return models.CancelResult{}, err
	}
	if !order.HasShipment() {
		return models.CancelResult{}, ErrNoAWB
	}
	if !order.ShipmentStatus.IsCancellable() {
		return models.CancelResult{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.ShipmentStatus, models.ShipmentStatusCancelled)
	}

	courier, err := s.couriers.ForTenant(ctx, tenantID)
	if err != nil {
		return models.CancelResult{}, err
	}

	result := courier.CancelShipment(ctx, order.AWBNumber)
	if !result.Success {
		s.logger.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"awb":       order.AWBNumber,
			"message":   result.Message,
		}).Warn("Courier refused cancellation")
		return result, nil
	}

	previous := order.ShipmentStatus
	if err := s.orderRepo.UpdateStatus(ctx, tenantID, order.ID, previous, models.ShipmentStatusCancelled); err != nil {
		return result, fmt.Errorf("shipment cancelled with courier but order update failed: %w", err)
	}

	order.ShipmentStatus = models.ShipmentStatusCancelled
	s.publish(ctx, events.ShipmentCancelled, order, previous)
	return result, nil
}

// TrackAWB returns the current snapshot of a tenant's AWB, served from cache when fresh
func (s *shippingService) TrackAWB(ctx context.Context, tenantID, awbNumber string) (*models.TrackingSnapshot, error) {
	if _, err := s.orderRepo.GetOrderByAWB(ctx, tenantID, awbNumber); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if snapshot, ok := s.cache.Get(ctx, tenantID, awbNumber); ok {
		return snapshot, nil
	}

	courier, err := s.couriers.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	snapshot, err := courier.TrackShipment(ctx, awbNumber)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, tenantID, awbNumber, snapshot)
	return snapshot, nil
}

// RefreshTracking re-tracks an order now and applies the result
func (s *shippingService) RefreshTracking(ctx context.Context, tenantID string, orderID uuid.UUID) (*models.TrackingSnapshot, error) {
	order, err := s.getOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if !order.HasShipment() {
		return nil, ErrNoAWB
	}

	courier, err := s.couriers.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	snapshot, err := courier.TrackShipment(ctx, order.AWBNumber)
	if err != nil {
		return nil, err
	}
	if err := s.ApplySnapshot(ctx, order, snapshot); err != nil {
		return nil, err
	}
	s.cache.Set(ctx, tenantID, order.AWBNumber, snapshot)
	return snapshot, nil
}

// ApplySnapshot writes a snapshot to the order and advances its status when the
// snapshot maps to a reachable status
func (s *shippingService) ApplySnapshot(ctx context.Context, order *models.Order, snapshot *models.TrackingSnapshot) error {
	previous := order.ShipmentStatus

	var next models.ShipmentStatus
	if status, ok := s.vocabulary.Classify(snapshot); ok && status != previous && previous.CanTransition(status) {
		next = status
	}

	if err := s.orderRepo.ApplyTracking(ctx, order, snapshot, next); err != nil {
		return fmt.Errorf("failed to apply tracking: %w", err)
	}

	order.DeliveryAttempts = snapshot.DeliveryAttempts
	order.LastTrackingStatus = snapshot.Status
	order.LastTrackingLocation = snapshot.Location
	if next == "" {
		return nil
	}

	order.ShipmentStatus = next
	s.publish(ctx, events.ShipmentStatusChanged, order, previous)
	if next == models.ShipmentStatusDelivered {
		s.publish(ctx, events.ShipmentDelivered, order, previous)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": order.TenantID,
		"awb":       order.AWBNumber,
		"from":      previous,
		"to":        next,
	}).Info("Shipment status changed")
	return nil
}

func (s *shippingService) getOrder(ctx context.Context, tenantID string, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orderRepo.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil
}

// publish is best effort; a lost event never fails the operation
func (s *shippingService) publish(ctx context.Context, eventType string, order *models.Order, previous models.ShipmentStatus) {
	if err := s.publisher.PublishShipmentEvent(ctx, eventType, order, previous); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event":    eventType,
			"order_id": order.ID,
		}).Warn("Failed to publish shipping event")
	}
}
