package carriers

import (
	"strings"

	"logistics-service/internal/models"
)

// StatusRule maps free-text courier statuses containing any keyword to an order status
type StatusRule struct {
	Keywords []string
	Status   models.ShipmentStatus
}

// Vocabulary is the keyword table a courier partner uses in its tracking texts.
// Rules are evaluated in order; the first match wins.
type Vocabulary struct {
	AttemptKeywords   []string
	DeliveredStatuses []string
	StatusRules       []StatusRule
}

// XpressbeesVocabulary is the keyword table for Xpressbees tracking events
var XpressbeesVocabulary = Vocabulary{
	AttemptKeywords:   []string{"undelivered", "failed delivery"},
	DeliveredStatuses: []string{"delivered"},
	StatusRules: []StatusRule{
		{Keywords: []string{"rto delivered", "rto-delivered", "returned to origin", "returned to shipper"}, Status: models.ShipmentStatusRTODelivered},
		{Keywords: []string{"rto", "return to origin"}, Status: models.ShipmentStatusRTOInitiated},
		{Keywords: []string{"lost", "damaged", "destroyed"}, Status: models.ShipmentStatusLost},
		{Keywords: []string{"undelivered", "failed delivery"}, Status: models.ShipmentStatusInTransit},
		{Keywords: []string{"out for delivery", "ofd"}, Status: models.ShipmentStatusOutForDelivery},
		{Keywords: []string{"delivered"}, Status: models.ShipmentStatusDelivered},
		{Keywords: []string{"in transit", "intransit", "picked up", "pickup done", "reached", "dispatched", "shipped", "in-transit"}, Status: models.ShipmentStatusInTransit},
	},
}

// IsDeliveryAttempt reports whether an event status records a failed delivery attempt
func (v Vocabulary) IsDeliveryAttempt(status string) bool {
	return containsAny(status, v.AttemptKeywords)
}

// CountDeliveryAttempts counts failed attempts across every event, not just the latest
func (v Vocabulary) CountDeliveryAttempts(events []models.TrackingEventView) int {
	attempts := 0
	for _, e := range events {
		if v.IsDeliveryAttempt(e.Status) {
			attempts++
		}
	}
	return attempts
}

// IsDelivered reports whether a shipment-level status means delivered
func (v Vocabulary) IsDelivered(shipmentStatus string) bool {
	s := strings.TrimSpace(shipmentStatus)
	for _, d := range v.DeliveredStatuses {
		if strings.EqualFold(s, d) {
			return true
		}
	}
	return false
}

// Classify maps a snapshot to an order shipment status.
// It returns false when nothing in the vocabulary matches.
func (v Vocabulary) Classify(snapshot *models.TrackingSnapshot) (models.ShipmentStatus, bool) {
	if snapshot == nil {
		return "", false
	}
	status, ok := v.classifyText(snapshot.Status)
	if snapshot.IsDelivered {
		// The shipment-level flag wins unless the event text says the parcel went back
		if ok && (status == models.ShipmentStatusRTODelivered || status == models.ShipmentStatusRTOInitiated) {
			return models.ShipmentStatusRTODelivered, true
		}
		return models.ShipmentStatusDelivered, true
	}
	if ok && status == models.ShipmentStatusDelivered {
		// Event text alone is not proof of delivery; wait for the shipment-level flag
		return "", false
	}
	return status, ok
}

func (v Vocabulary) classifyText(text string) (models.ShipmentStatus, bool) {
	for _, rule := range v.StatusRules {
		if containsAny(text, rule.Keywords) {
			return rule.Status, true
		}
	}
	return "", false
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
