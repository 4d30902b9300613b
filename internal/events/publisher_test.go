package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"logistics-service/internal/models"
)

func TestNewShippingEvent(t *testing.T) {
	order := &models.Order{
		ID:                  uuid.New(),
		TenantID:            "tenant-1",
		OrderNumber:         "ORD-1",
		AWBNumber:           "XB123",
		ShipmentStatus:      models.ShipmentStatusManifested,
		ShippingReferenceID: "98765",
		LabelURL:            "https://example.com/label.pdf",
	}

	event := NewShippingEvent(ShipmentManifested, order, models.ShipmentStatusShipped)

	assert.Equal(t, ShipmentManifested, event.GetSubject())
	assert.Equal(t, "SHIPPING_EVENTS", event.GetStream())
	assert.Equal(t, "tenant-1", event.TenantID)
	assert.Equal(t, string(models.ShipmentStatusShipped), event.PreviousStatus)
	assert.Equal(t, map[string]interface{}{
		"shippingReferenceId": "98765",
		"labelUrl":            "https://example.com/label.pdf",
	}, event.Metadata)
}

func TestNewShippingEvent_NoDocuments(t *testing.T) {
	order := &models.Order{ID: uuid.New(), TenantID: "tenant-1", ShipmentStatus: models.ShipmentStatusCancelled}

	event := NewShippingEvent(ShipmentCancelled, order, models.ShipmentStatusShipped)
	assert.Nil(t, event.Metadata)
}

func TestNoopPublisher(t *testing.T) {
	var publisher NoopPublisher
	assert.False(t, publisher.IsConnected())
	assert.NoError(t, publisher.PublishShipmentEvent(context.Background(), ShipmentBooked, &models.Order{}, ""))
}
