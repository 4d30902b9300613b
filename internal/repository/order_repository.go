package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"logistics-service/internal/models"
)

var (
	// ErrShipmentAttached means the order already carries an AWB
	ErrShipmentAttached = errors.New("order already has a shipment")

	// ErrStatusChanged means the order left the expected status before the update
	ErrStatusChanged = errors.New("order status changed concurrently")
)

// OrderRepository handles the shipment columns of orders
type OrderRepository interface {
	GetOrder(ctx context.Context, tenantID string, id uuid.UUID) (*models.Order, error)
	GetOrders(ctx context.Context, tenantID string, ids []uuid.UUID) ([]models.Order, error)
	GetOrderByAWB(ctx context.Context, tenantID, awbNumber string) (*models.Order, error)
	AttachShipment(ctx context.Context, tenantID string, id uuid.UUID, result *models.ShipmentResult, serviceType string, charge decimal.Decimal) error
	MarkManifested(ctx context.Context, tenantID string, ids []uuid.UUID, manifestURL string) error
	UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, from, to models.ShipmentStatus) error
	ApplyTracking(ctx context.Context, order *models.Order, snapshot *models.TrackingSnapshot, next models.ShipmentStatus) error
	ListTrackable(ctx context.Context, limit int) ([]models.Order, error)
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// GetOrder retrieves an order with its warehouse and items
func (r *orderRepository) GetOrder(ctx context.Context, tenantID string, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Preload("Warehouse").
		Preload("Items").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrders retrieves several orders of one tenant
func (r *orderRepository) GetOrders(ctx context.Context, tenantID string, ids []uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrderByAWB retrieves an order by its waybill
func (r *orderRepository) GetOrderByAWB(ctx context.Context, tenantID, awbNumber string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("awb_number = ? AND tenant_id = ?", awbNumber, tenantID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// AttachShipment writes the booking result. An AWB already on the order is never overwritten.
func (r *orderRepository) AttachShipment(ctx context.Context, tenantID string, id uuid.UUID, result *models.ShipmentResult, serviceType string, charge decimal.Decimal) error {
	updates := map[string]interface{}{
		"awb_number":            result.AWBNumber,
		"shipping_reference_id": result.ShippingReferenceID,
		"label_url":             result.LabelURL,
		"courier_service":       serviceType,
		"shipping_charge":       charge,
		"shipment_status":       models.ShipmentStatusShipped,
		"updated_at":            time.Now(),
	}

	tx := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND tenant_id = ? AND (awb_number = '' OR awb_number IS NULL)", id, tenantID).
		Updates(updates)
	if tx.Error != nil {
		return fmt.Errorf("failed to attach shipment: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrShipmentAttached
	}
	return nil
}

// MarkManifested records the manifest on every order still in the shipped state
func (r *orderRepository) MarkManifested(ctx context.Context, tenantID string, ids []uuid.UUID, manifestURL string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("tenant_id = ? AND id IN ? AND shipment_status = ?", tenantID, ids, models.ShipmentStatusShipped).
		Updates(map[string]interface{}{
			"manifest_url":    manifestURL,
			"shipment_status": models.ShipmentStatusManifested,
			"updated_at":      time.Now(),
		}).Error
}

// UpdateStatus moves an order between statuses, failing if it is no longer in from
func (r *orderRepository) UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, from, to models.ShipmentStatus) error {
	now := time.Now()
	updates := map[string]interface{}{
		"shipment_status": to,
		"updated_at":      now,
	}
	switch to {
	case models.ShipmentStatusCancelled:
		updates["cancelled_at"] = &now
	case models.ShipmentStatusDelivered:
		updates["delivered_at"] = &now
	}

	tx := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND tenant_id = ? AND shipment_status = ?", id, tenantID, from).
		Updates(updates)
	if tx.Error != nil {
		return fmt.Errorf("failed to update shipment status: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

// ApplyTracking stores a snapshot and replaces the order's tracking history with it
func (r *orderRepository) ApplyTracking(ctx context.Context, order *models.Order, snapshot *models.TrackingSnapshot, next models.ShipmentStatus) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"delivery_attempts":      snapshot.DeliveryAttempts,
			"last_tracking_status":   snapshot.Status,
			"last_tracking_location": snapshot.Location,
			"updated_at":             time.Now(),
		}
		if !snapshot.EventTimestamp.IsZero() {
			ts := snapshot.EventTimestamp
			updates["last_tracking_at"] = &ts
		}
		if next != "" && next != order.ShipmentStatus {
			updates["shipment_status"] = next
			if next == models.ShipmentStatusDelivered {
				deliveredAt := snapshot.EventTimestamp
				if deliveredAt.IsZero() {
					deliveredAt = time.Now().UTC()
				}
				updates["delivered_at"] = &deliveredAt
			}
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND tenant_id = ? AND shipment_status = ?", order.ID, order.TenantID, order.ShipmentStatus).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update tracking state: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStatusChanged
		}

		if err := tx.Where("order_id = ?", order.ID).Delete(&models.TrackingEvent{}).Error; err != nil {
			return fmt.Errorf("failed to clear tracking history: %w", err)
		}

		if len(snapshot.History) == 0 {
			return nil
		}
		rows := make([]models.TrackingEvent, 0, len(snapshot.History))
		for _, e := range snapshot.History {
			rows = append(rows, models.TrackingEvent{
				ID:          uuid.New(),
				OrderID:     order.ID,
				Status:      e.Status,
				Location:    e.Location,
				Description: e.Description,
				Timestamp:   e.Timestamp,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to store tracking history: %w", err)
		}
		return nil
	})
}

// ListTrackable returns booked orders still moving, least recently tracked first.
// Runs across tenants for the tracking poller.
func (r *orderRepository) ListTrackable(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("awb_number <> '' AND shipment_status IN ?", models.TrackableStatuses()).
		Order("last_tracking_at ASC NULLS FIRST").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
