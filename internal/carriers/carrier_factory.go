package carriers

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"logistics-service/internal/models"
)

// AccountStore loads a tenant's courier account. A missing account is (nil, nil).
type AccountStore interface {
	GetCourierAccount(ctx context.Context, tenantID string, partner models.CourierPartner) (*models.CourierAccount, error)
}

// BuildFunc constructs a courier client for one account configuration
type BuildFunc func(config XpressbeesConfig, logger *logrus.Entry) Courier

// CourierFactory hands out courier clients per tenant. Every tenant with its own
// account gets its own client; the rest share the platform account client, so
// one configuration always maps to one token.
type CourierFactory struct {
	platform XpressbeesConfig
	accounts AccountStore
	build    BuildFunc
	logger   *logrus.Entry

	mu       sync.RWMutex
	couriers map[string]Courier // tenant cache key -> client
	shared   Courier
}

// NewCourierFactory creates a new courier factory around the platform account
func NewCourierFactory(platform XpressbeesConfig, accounts AccountStore, logger *logrus.Entry) *CourierFactory {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CourierFactory{
		platform: platform,
		accounts: accounts,
		build: func(config XpressbeesConfig, logger *logrus.Entry) Courier {
			return NewXpressbeesCarrier(config, logger)
		},
		logger:   logger.WithField("component", "courier_factory"),
		couriers: make(map[string]Courier),
	}
}

// WithBuilder replaces the client constructor
func (f *CourierFactory) WithBuilder(build BuildFunc) *CourierFactory {
	f.build = build
	return f
}

// ForTenant returns the courier client for a tenant, creating and caching it on first use
func (f *CourierFactory) ForTenant(ctx context.Context, tenantID string) (Courier, error) {
	cacheKey := tenantCacheKey(tenantID, models.PartnerXpressbees)

	f.mu.RLock()
	if courier, exists := f.couriers[cacheKey]; exists {
		f.mu.RUnlock()
		return courier, nil
	}
	f.mu.RUnlock()

	var account *models.CourierAccount
	if f.accounts != nil {
		var err error
		account, err = f.accounts.GetCourierAccount(ctx, tenantID, models.PartnerXpressbees)
		if err != nil {
			return nil, fmt.Errorf("failed to load courier account: %w", err)
		}
	}

	if account != nil && !account.IsEnabled {
		return nil, fmt.Errorf("%w: courier account disabled for tenant", ErrNotConfigured)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Another caller may have filled the slot while the account was loading
	if courier, exists := f.couriers[cacheKey]; exists {
		return courier, nil
	}

	var courier Courier
	if account != nil && account.HasCredentials() {
		config := f.platform.WithCredentials(account.GetCredential("email"), account.GetCredential("password"))
		if account.DefaultCourierID != "" {
			config.DefaultCourierID = account.DefaultCourierID
		}
		courier = f.build(config, f.logger.WithField("tenant_id", tenantID))
		f.logger.WithField("tenant_id", tenantID).Info("Created courier client for tenant account")
	} else {
		if !f.platform.HasCredentials() {
			return nil, fmt.Errorf("%w: no courier account for tenant and no platform account", ErrNotConfigured)
		}
		if f.shared == nil {
			f.shared = f.build(f.platform, f.logger.WithField("account", "platform"))
		}
		courier = f.shared
	}

	f.couriers[cacheKey] = courier
	return courier, nil
}

// NewForAccount builds an uncached client for an unsaved account, used to verify credentials
func (f *CourierFactory) NewForAccount(account *models.CourierAccount) Courier {
	config := f.platform.WithCredentials(account.GetCredential("email"), account.GetCredential("password"))
	if account.DefaultCourierID != "" {
		config.DefaultCourierID = account.DefaultCourierID
	}
	return f.build(config, f.logger.WithField("tenant_id", account.TenantID))
}

// InvalidateTenantCache removes the tenant's couriers from the cache
func (f *CourierFactory) InvalidateTenantCache(tenantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, partner := range []models.CourierPartner{models.PartnerXpressbees} {
		delete(f.couriers, tenantCacheKey(tenantID, partner))
	}
}

func tenantCacheKey(tenantID string, partner models.CourierPartner) string {
	return fmt.Sprintf("%s_%s", tenantID, partner)
}

// GetCarrierDisplayName returns the display name for a courier partner
func GetCarrierDisplayName(partner models.CourierPartner) string {
	names := map[models.CourierPartner]string{
		models.PartnerXpressbees: "Xpressbees",
	}
	if name, ok := names[partner]; ok {
		return name
	}
	return string(partner)
}
