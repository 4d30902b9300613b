package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ShipmentStatus is where an order sits in the courier lifecycle
type ShipmentStatus string

const (
	ShipmentStatusUnshipped      ShipmentStatus = "UNSHIPPED"
	ShipmentStatusShipped        ShipmentStatus = "SHIPPED"
	ShipmentStatusManifested     ShipmentStatus = "MANIFESTED"
	ShipmentStatusInTransit      ShipmentStatus = "IN_TRANSIT"
	ShipmentStatusOutForDelivery ShipmentStatus = "OUT_FOR_DELIVERY"
	ShipmentStatusDelivered      ShipmentStatus = "DELIVERED"
	ShipmentStatusRTOInitiated   ShipmentStatus = "RTO_INITIATED"
	ShipmentStatusRTODelivered   ShipmentStatus = "RTO_DELIVERED"
	ShipmentStatusLost           ShipmentStatus = "LOST"
	ShipmentStatusCancelled      ShipmentStatus = "CANCELLED"
)

// transitions lists the statuses reachable from each status
var transitions = map[ShipmentStatus][]ShipmentStatus{
	ShipmentStatusUnshipped:      {ShipmentStatusShipped},
	ShipmentStatusShipped:        {ShipmentStatusManifested, ShipmentStatusInTransit, ShipmentStatusOutForDelivery, ShipmentStatusDelivered, ShipmentStatusRTOInitiated, ShipmentStatusLost, ShipmentStatusCancelled},
	ShipmentStatusManifested:     {ShipmentStatusInTransit, ShipmentStatusOutForDelivery, ShipmentStatusDelivered, ShipmentStatusRTOInitiated, ShipmentStatusLost, ShipmentStatusCancelled},
	ShipmentStatusInTransit:      {ShipmentStatusOutForDelivery, ShipmentStatusDelivered, ShipmentStatusRTOInitiated, ShipmentStatusLost, ShipmentStatusCancelled},
	ShipmentStatusOutForDelivery: {ShipmentStatusInTransit, ShipmentStatusDelivered, ShipmentStatusRTOInitiated, ShipmentStatusLost, ShipmentStatusCancelled},
	ShipmentStatusRTOInitiated:   {ShipmentStatusRTODelivered, ShipmentStatusLost},
}

// CanTransition reports whether an order may move from one status to another
func (s ShipmentStatus) CanTransition(to ShipmentStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsCancellable reports whether cancelShipment may be invoked in this status
func (s ShipmentStatus) IsCancellable() bool {
	return s.CanTransition(ShipmentStatusCancelled)
}

// IsTrackable reports whether the tracking poller should still follow the order
func (s ShipmentStatus) IsTrackable() bool {
	switch s {
	case ShipmentStatusShipped, ShipmentStatusManifested, ShipmentStatusInTransit,
		ShipmentStatusOutForDelivery, ShipmentStatusRTOInitiated:
		return true
	}
	return false
}

// TrackableStatuses returns every status the tracking poller follows
func TrackableStatuses() []ShipmentStatus {
	return []ShipmentStatus{
		ShipmentStatusShipped,
		ShipmentStatusManifested,
		ShipmentStatusInTransit,
		ShipmentStatusOutForDelivery,
		ShipmentStatusRTOInitiated,
	}
}

// Warehouse is a tenant pickup location, the consignor of its orders
type Warehouse struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID    string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null"`
	ContactName string    `json:"contactName" gorm:"type:varchar(255)"`
	Phone       string    `json:"phone" gorm:"type:varchar(50)"`
	Email       string    `json:"email" gorm:"type:varchar(255)"`
	Address     string    `json:"address" gorm:"type:varchar(500)"`
	Address2    string    `json:"address2" gorm:"type:varchar(500)"`
	City        string    `json:"city" gorm:"type:varchar(100)"`
	State       string    `json:"state" gorm:"type:varchar(100)"`
	Pincode     string    `json:"pincode" gorm:"type:varchar(20)"`
	GSTIN       string    `json:"gstin" gorm:"type:varchar(20)"`
	CreatedAt   time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// Order is the order-management record the courier core books against
type Order struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID    string     `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	OrderNumber string     `json:"orderNumber" gorm:"type:varchar(100);not null;index"`
	WarehouseID uuid.UUID  `json:"warehouseId" gorm:"type:uuid;not null"`
	Warehouse   *Warehouse `json:"warehouse,omitempty" gorm:"foreignKey:WarehouseID"`

	// Consignee
	CustomerName  string `json:"customerName" gorm:"type:varchar(255)"`
	CustomerPhone string `json:"customerPhone" gorm:"type:varchar(50)"`
	CustomerEmail string `json:"customerEmail" gorm:"type:varchar(255)"`
	Address       string `json:"address" gorm:"type:varchar(500)"`
	Address2      string `json:"address2" gorm:"type:varchar(500)"`
	City          string `json:"city" gorm:"type:varchar(100)"`
	State         string `json:"state" gorm:"type:varchar(100)"`
	Pincode       string `json:"pincode" gorm:"type:varchar(20)"`

	// Package
	Weight float64 `json:"weight" gorm:"type:decimal(10,3)"` // in kg
	Length float64 `json:"length" gorm:"type:decimal(10,2)"` // in cm
	Width  float64 `json:"width" gorm:"type:decimal(10,2)"`  // in cm
	Height float64 `json:"height" gorm:"type:decimal(10,2)"` // in cm

	// Payment
	PaymentMode       PaymentMode     `json:"paymentMode" gorm:"type:varchar(20);not null;default:'prepaid'"`
	TotalAmount       decimal.Decimal `json:"totalAmount" gorm:"type:decimal(12,2)"`
	CollectableAmount decimal.Decimal `json:"collectableAmount" gorm:"type:decimal(12,2)"`

	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`

	// Shipment, written once per booking
	AWBNumber           string          `json:"awbNumber" gorm:"type:varchar(100);index"`
	ShippingReferenceID string          `json:"shippingReferenceId" gorm:"type:varchar(100)"`
	LabelURL            string          `json:"labelUrl" gorm:"type:varchar(500)"`
	CourierService      string          `json:"courierService" gorm:"type:varchar(100)"`
	ShippingCharge      decimal.Decimal `json:"shippingCharge" gorm:"type:decimal(12,2)"`
	ManifestURL         string          `json:"manifestUrl" gorm:"type:varchar(500)"`
	ShipmentStatus      ShipmentStatus  `json:"shipmentStatus" gorm:"type:varchar(50);not null;default:'UNSHIPPED';index"`

	// Last applied tracking snapshot
	DeliveryAttempts     int        `json:"deliveryAttempts"`
	LastTrackingStatus   string     `json:"lastTrackingStatus" gorm:"type:varchar(255)"`
	LastTrackingLocation string     `json:"lastTrackingLocation" gorm:"type:varchar(255)"`
	LastTrackingAt       *time.Time `json:"lastTrackingAt"`
	DeliveredAt          *time.Time `json:"deliveredAt"`
	CancelledAt          *time.Time `json:"cancelledAt"`

	TrackingEvents []TrackingEvent `json:"trackingEvents,omitempty" gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// HasShipment reports whether an AWB is already attached to the order
func (o *Order) HasShipment() bool {
	return o.AWBNumber != ""
}

// OrderItem is a product line of an order
type OrderItem struct {
	ID        uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrderID   uuid.UUID       `json:"orderId" gorm:"type:uuid;not null;index"`
	Name      string          `json:"name" gorm:"type:varchar(255);not null"`
	SKU       string          `json:"sku" gorm:"type:varchar(100)"`
	Quantity  int             `json:"quantity" gorm:"not null"`
	UnitPrice decimal.Decimal `json:"unitPrice" gorm:"type:decimal(12,2)"`
	HSNCode   string          `json:"hsnCode" gorm:"type:varchar(20)"`
}

// TrackingEvent is one row of an order's rebuilt tracking history
type TrackingEvent struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrderID     uuid.UUID `json:"orderId" gorm:"type:uuid;not null;index"`
	Status      string    `json:"status" gorm:"type:varchar(255);not null"`
	Location    string    `json:"location" gorm:"type:varchar(255)"`
	Description string    `json:"description" gorm:"type:text"`
	Timestamp   time.Time `json:"timestamp" gorm:"not null"`
	CreatedAt   time.Time `json:"createdAt" gorm:"autoCreateTime"`
}
