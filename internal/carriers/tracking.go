package carriers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"logistics-service/internal/models"
)

// rawTrackingEvent is one upstream event. Field names drift between legs,
// so the alternatives are all decoded and the first non-empty one is used.
type rawTrackingEvent struct {
	Status         flexString `json:"status"`
	StatusCode     flexString `json:"status_code"`
	Message        flexString `json:"message"`
	Description    flexString `json:"description"`
	Remarks        flexString `json:"remarks"`
	Location       flexString `json:"location"`
	City           flexString `json:"city"`
	EventTime      flexString `json:"event_time"`
	ShipmentStatus flexString `json:"shipment_status"`
}

type normalizedEvent struct {
	view           models.TrackingEventView
	shipmentStatus string
	seconds        int64
}

// NormalizeTracking flattens every leg of a tracking payload and rebuilds the
// snapshot from scratch. Malformed payloads and empty event sets both yield ErrNoTrackingData.
func NormalizeTracking(awbNumber string, trackingData json.RawMessage, vocab Vocabulary) (*models.TrackingSnapshot, error) {
	rawEvents, err := flattenLegs(trackingData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTrackingData, err)
	}

	events := make([]normalizedEvent, 0, len(rawEvents))
	for _, raw := range rawEvents {
		var e rawTrackingEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		events = append(events, normalizeEvent(e))
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: no events for AWB %s", ErrNoTrackingData, awbNumber)
	}

	// Upstream order is not guaranteed; newest first
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].seconds > events[j].seconds
	})

	history := make([]models.TrackingEventView, len(events))
	for i, e := range events {
		history[i] = e.view
	}

	latest := events[0]
	return &models.TrackingSnapshot{
		AWBNumber:        awbNumber,
		Status:           latest.view.Status,
		Description:      latest.view.Description,
		Location:         latest.view.Location,
		EventTimestamp:   latest.view.Timestamp,
		IsDelivered:      vocab.IsDelivered(latest.shipmentStatus),
		DeliveryAttempts: vocab.CountDeliveryAttempts(history),
		History:          history,
	}, nil
}

// flattenLegs accepts {"leg": [events]}, {"leg": event} or a bare [events]
func flattenLegs(data json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("tracking_data missing")
	}

	switch trimmed[0] {
	case '[':
		var events []json.RawMessage
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, err
		}
		return objectsOnly(events), nil
	case '{':
		var legs map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &legs); err != nil {
			return nil, err
		}
		// Map iteration order is random; sort leg keys so ties keep a stable order
		keys := make([]string, 0, len(legs))
		for k := range legs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var events []json.RawMessage
		for _, k := range keys {
			leg := bytes.TrimSpace(legs[k])
			if len(leg) == 0 {
				continue
			}
			switch leg[0] {
			case '[':
				var legEvents []json.RawMessage
				if err := json.Unmarshal(leg, &legEvents); err != nil {
					continue
				}
				events = append(events, objectsOnly(legEvents)...)
			case '{':
				events = append(events, leg)
			}
		}
		return events, nil
	default:
		return nil, fmt.Errorf("unexpected tracking_data shape")
	}
}

func objectsOnly(raw []json.RawMessage) []json.RawMessage {
	out := raw[:0]
	for _, r := range raw {
		r = bytes.TrimSpace(r)
		if len(r) > 0 && r[0] == '{' {
			out = append(out, r)
		}
	}
	return out
}

func normalizeEvent(e rawTrackingEvent) normalizedEvent {
	seconds, _ := e.EventTime.Int64()
	// Some legs report milliseconds
	if seconds > 1e12 {
		seconds /= 1000
	}

	var ts time.Time
	if seconds > 0 {
		ts = time.Unix(seconds, 0).UTC()
	}

	return normalizedEvent{
		view: models.TrackingEventView{
			Status:      firstNonEmpty(e.Status, e.StatusCode),
			Description: firstNonEmpty(e.Message, e.Description, e.Remarks),
			Location:    firstNonEmpty(e.Location, e.City),
			Timestamp:   ts,
		},
		shipmentStatus: e.ShipmentStatus.String(),
		seconds:        seconds,
	}
}

func firstNonEmpty(values ...flexString) string {
	for _, v := range values {
		if v != "" {
			return v.String()
		}
	}
	return ""
}
