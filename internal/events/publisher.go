package events

import (
	"context"
	"time"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/sirupsen/logrus"

	"logistics-service/internal/models"
)

// Shipping event types
const (
	ShipmentBooked        = "shipping.shipment_booked"
	ShipmentManifested    = "shipping.manifested"
	ShipmentCancelled     = "shipping.cancelled"
	ShipmentStatusChanged = "shipping.status_changed"
	ShipmentDelivered     = "shipping.delivered"
)

const streamName = "SHIPPING_EVENTS"

// ShippingEvent represents a shipment lifecycle event of an order
type ShippingEvent struct {
	events.BaseEvent
	OrderID          string                 `json:"orderId"`
	OrderNumber      string                 `json:"orderNumber,omitempty"`
	AWBNumber        string                 `json:"awbNumber,omitempty"`
	Courier          string                 `json:"courier,omitempty"`
	CourierService   string                 `json:"courierService,omitempty"`
	Status           string                 `json:"status,omitempty"`
	PreviousStatus   string                 `json:"previousStatus,omitempty"`
	Location         string                 `json:"location,omitempty"`
	DeliveryAttempts int                    `json:"deliveryAttempts,omitempty"`
	CustomerEmail    string                 `json:"customerEmail,omitempty"`
	CustomerName     string                 `json:"customerName,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

func (e *ShippingEvent) GetSubject() string {
	return e.EventType
}

func (e *ShippingEvent) GetStream() string {
	return streamName
}

// NewShippingEvent builds an event from the current state of an order
func NewShippingEvent(eventType string, order *models.Order, previous models.ShipmentStatus) *ShippingEvent {
	return &ShippingEvent{
		BaseEvent: events.BaseEvent{
			EventType: eventType,
			TenantID:  order.TenantID,
			Timestamp: time.Now().UTC(),
		},
		OrderID:          order.ID.String(),
		OrderNumber:      order.OrderNumber,
		AWBNumber:        order.AWBNumber,
		Courier:          string(models.PartnerXpressbees),
		CourierService:   order.CourierService,
		Status:           string(order.ShipmentStatus),
		PreviousStatus:   string(previous),
		Location:         order.LastTrackingLocation,
		DeliveryAttempts: order.DeliveryAttempts,
		CustomerEmail:    order.CustomerEmail,
		CustomerName:     order.CustomerName,
		Metadata:         shipmentMetadata(order),
	}
}

// shipmentMetadata carries the document links of the order, omitted when none exist yet
func shipmentMetadata(order *models.Order) map[string]interface{} {
	metadata := make(map[string]interface{})
	if order.ShippingReferenceID != "" {
		metadata["shippingReferenceId"] = order.ShippingReferenceID
	}
	if order.LabelURL != "" {
		metadata["labelUrl"] = order.LabelURL
	}
	if order.ManifestURL != "" {
		metadata["manifestUrl"] = order.ManifestURL
	}
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

// EventPublisher is what the shipping service needs from the event bus
type EventPublisher interface {
	PublishShipmentEvent(ctx context.Context, eventType string, order *models.Order, previous models.ShipmentStatus) error
}

// Publisher wraps the shared events publisher for shipping-specific events
type Publisher struct {
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewPublisher creates a new shipping events publisher
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "logistics-service"

	publisher, err := events.NewPublisher(config, logger)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := publisher.EnsureStream(ctx, streamName, []string{"shipping.>"}); err != nil {
		logger.WithError(err).Warn("Failed to ensure SHIPPING_EVENTS stream")
	}

	return &Publisher{
		publisher: publisher,
		logger:    logger.WithField("component", "events.publisher"),
	}, nil
}

// PublishShipmentEvent publishes a lifecycle event for an order
func (p *Publisher) PublishShipmentEvent(ctx context.Context, eventType string, order *models.Order, previous models.ShipmentStatus) error {
	return p.publisher.Publish(ctx, NewShippingEvent(eventType, order, previous))
}

// IsConnected returns true if connected to NATS
func (p *Publisher) IsConnected() bool {
	return p.publisher.IsConnected()
}

// Close closes the publisher connection
func (p *Publisher) Close() {
	p.publisher.Close()
}

// NoopPublisher drops events when NATS is not configured
type NoopPublisher struct{}

// IsConnected is always false; there is no bus
func (NoopPublisher) IsConnected() bool {
	return false
}

func (NoopPublisher) PublishShipmentEvent(context.Context, string, *models.Order, models.ShipmentStatus) error {
	return nil
}
