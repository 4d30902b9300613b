package carriers

import (
	"context"
	"time"

	"logistics-service/internal/models"
)

// Courier defines the interface that every courier partner client implements.
// Expected failures come back as errors wrapping the sentinels in errors.go;
// CancelShipment always resolves to a result.
type Courier interface {
	// Partner returns the courier partner type
	Partner() models.CourierPartner

	// TestConnection forces a fresh login with the configured credentials
	TestConnection(ctx context.Context) error

	// GetRates requests quotes and normalizes them. An empty slice means no rates.
	GetRates(ctx context.Context, request models.RateRequest) ([]models.RateQuote, error)

	// ListCouriers returns the courier services available on the account
	ListCouriers(ctx context.Context) ([]models.CourierInfo, error)

	// GenerateAWB books the shipment and returns its waybill
	GenerateAWB(ctx context.Context, request models.ShipmentRequest, serviceType string) (*models.ShipmentResult, error)

	// CreateManifest requests a single pickup for all given AWBs
	CreateManifest(ctx context.Context, awbNumbers []string) (*models.ManifestResult, error)

	// CancelShipment cancels an AWB
	CancelShipment(ctx context.Context, awbNumber string) models.CancelResult

	// TrackShipment fetches and normalizes the tracking history of an AWB
	TrackShipment(ctx context.Context, awbNumber string) (*models.TrackingSnapshot, error)
}

// XpressbeesConfig holds the endpoints and credentials of one Xpressbees account
type XpressbeesConfig struct {
	Email    string
	Password string

	LoginURL       string
	RatesURL       string
	CourierListURL string
	AWBURL         string
	ManifestURL    string
	CancelURL      string
	TrackingURL    string

	// DefaultCourierID is used when the selected service type matches no courier
	DefaultCourierID string

	// TokenLifetime is assumed when the login response carries no expiry
	TokenLifetime time.Duration
	// TokenBuffer is how long before expiry a token is refreshed
	TokenBuffer time.Duration

	RequestTimeout    time.Duration
	RequestsPerSecond float64
}

// WithCredentials returns a copy of the config that logs in as another account
func (c XpressbeesConfig) WithCredentials(email, password string) XpressbeesConfig {
	c.Email = email
	c.Password = password
	return c
}

// HasCredentials reports whether a login can be attempted
func (c XpressbeesConfig) HasCredentials() bool {
	return c.LoginURL != "" && c.Email != "" && c.Password != ""
}
