package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CourierPartner identifies an aggregator account type
type CourierPartner string

const (
	PartnerXpressbees CourierPartner = "XPRESSBEES"
)

// PaymentMode is how the consignee pays for the order
type PaymentMode string

const (
	PaymentPrepaid PaymentMode = "prepaid"
	PaymentCOD     PaymentMode = "cod"
)

// IsCOD reports whether the courier has to collect cash on delivery
func (p PaymentMode) IsCOD() bool {
	return p == PaymentCOD
}

// RateRequest holds the physical attributes and route of a shipment to quote
type RateRequest struct {
	OriginPincode      string          `json:"originPincode" binding:"required"`
	DestinationPincode string          `json:"destinationPincode" binding:"required"`
	PaymentMode        PaymentMode     `json:"paymentMode" binding:"required,oneof=prepaid cod"`
	DeclaredValue      decimal.Decimal `json:"declaredValue"`
	Weight             float64         `json:"weight" binding:"required,gt=0"` // in kg
	Length             float64         `json:"length" binding:"required,gt=0"` // in cm
	Width              float64         `json:"width" binding:"required,gt=0"`  // in cm
	Height             float64         `json:"height" binding:"required,gt=0"` // in cm
}

// RateQuote is one normalized price option for a courier service tier
type RateQuote struct {
	CourierID        string          `json:"courierId"`
	CourierName      string          `json:"courierName"`
	ServiceType      string          `json:"serviceType"`
	ChargeableWeight float64         `json:"chargeableWeight"` // in grams
	BaseCharge       decimal.Decimal `json:"baseCharge"`
	CODSurcharge     decimal.Decimal `json:"codSurcharge"`
	TotalPrice       decimal.Decimal `json:"totalPrice"`
}

// Party is a consignor or consignee on the waybill
type Party struct {
	Name     string `json:"name"`
	Company  string `json:"company,omitempty"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
	GSTIN    string `json:"gstin,omitempty"`
}

// ShipmentItem represents a line on the shipment invoice
type ShipmentItem struct {
	Name          string          `json:"name"`
	SKU           string          `json:"sku,omitempty"`
	Quantity      int             `json:"quantity"`
	DeclaredValue decimal.Decimal `json:"declaredValue"` // per unit
	HSNCode       string          `json:"hsnCode,omitempty"`
}

// ShipmentRequest is the snapshot of an order at booking time
type ShipmentRequest struct {
	OrderID           uuid.UUID       `json:"orderId"`
	OrderNumber       string          `json:"orderNumber"`
	Consignor         Party           `json:"consignor"`
	Consignee         Party           `json:"consignee"`
	Items             []ShipmentItem  `json:"items"`
	PaymentMode       PaymentMode     `json:"paymentMode"`
	CollectableAmount decimal.Decimal `json:"collectableAmount"`
	OrderAmount       decimal.Decimal `json:"orderAmount"`
	Weight            float64         `json:"weight"` // in kg
	Length            float64         `json:"length"`
	Width             float64         `json:"width"`
	Height            float64         `json:"height"`
}

// ShipmentResult is what the partner hands back for a booked shipment
type ShipmentResult struct {
	AWBNumber           string `json:"awbNumber"`
	ShippingReferenceID string `json:"shippingReferenceId"`
	LabelURL            string `json:"labelUrl"`
	CourierID           string `json:"courierId,omitempty"`
}

// ManifestResult is the outcome of a pickup request
type ManifestResult struct {
	ManifestURL string   `json:"manifestUrl"`
	AWBNumbers  []string `json:"awbNumbers"`
}

// CancelResult always carries a message the caller can show
type CancelResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CourierInfo is an entry of the partner's courier list
type CourierInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TrackingEventView is a single normalized event in a snapshot history
type TrackingEventView struct {
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Timestamp   time.Time `json:"timestamp"`
}

// TrackingSnapshot is the current state of an AWB, rebuilt from every event
type TrackingSnapshot struct {
	AWBNumber        string              `json:"awbNumber"`
	Status           string              `json:"status"`
	Description      string              `json:"description"`
	Location         string              `json:"location"`
	EventTimestamp   time.Time           `json:"eventTimestamp"`
	IsDelivered      bool                `json:"isDelivered"`
	DeliveryAttempts int                 `json:"deliveryAttempts"`
	History          []TrackingEventView `json:"history"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message *string     `json:"message,omitempty"`
}

// GetRatesResponse represents shipping rates response
type GetRatesResponse struct {
	Success bool        `json:"success"`
	Rates   []RateQuote `json:"rates"`
	Message string      `json:"message,omitempty"`
}

// BookShipmentRequest is the body of POST /api/orders/:id/shipment
type BookShipmentRequest struct {
	ServiceType    string          `json:"serviceType" binding:"required"`
	ConsigneeGSTIN string          `json:"consigneeGstin"`
	QuotedPrice    decimal.Decimal `json:"quotedPrice"` // total of the rate the user picked
}

// CreateManifestRequest is the body of POST /api/manifests
type CreateManifestRequest struct {
	OrderIDs []uuid.UUID `json:"orderIds" binding:"required,min=1"`
}
