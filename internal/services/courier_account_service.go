package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"logistics-service/internal/carriers"
	"logistics-service/internal/models"
)

var (
	ErrAccountNotFound  = errors.New("courier account not found")
	ErrPasswordRequired = errors.New("password is required for a new courier account")
)

// AccountRepository persists tenant courier accounts
type AccountRepository interface {
	GetCourierAccount(ctx context.Context, tenantID string, partner models.CourierPartner) (*models.CourierAccount, error)
	UpsertCourierAccount(ctx context.Context, account *models.CourierAccount) error
	MarkVerified(ctx context.Context, tenantID string, partner models.CourierPartner, at time.Time) error
}

// AccountCouriers is the part of the courier factory account management drives
type AccountCouriers interface {
	CourierProvider
	NewForAccount(account *models.CourierAccount) carriers.Courier
	InvalidateTenantCache(tenantID string)
}

// CourierAccountService manages the courier credentials a tenant brings
type CourierAccountService struct {
	repo     AccountRepository
	couriers AccountCouriers
	vault    PasswordVault
	logger   *logrus.Entry
}

// NewCourierAccountService creates a new courier account service
func NewCourierAccountService(repo AccountRepository, couriers AccountCouriers, logger *logrus.Entry) *CourierAccountService {
	return &CourierAccountService{
		repo:     repo,
		couriers: couriers,
		logger:   logger.WithField("component", "courier_account_service"),
	}
}

// WithVault keeps new passwords in the secret manager instead of the database
func (s *CourierAccountService) WithVault(vault PasswordVault) *CourierAccountService {
	s.vault = vault
	return s
}

// Get returns the tenant's Xpressbees account
func (s *CourierAccountService) Get(ctx context.Context, tenantID string) (*models.CourierAccount, error) {
	account, err := s.repo.GetCourierAccount(ctx, tenantID, models.PartnerXpressbees)
	if err != nil {
		return nil, fmt.Errorf("failed to load courier account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// Upsert saves the tenant's credentials. An empty password keeps the stored one.
func (s *CourierAccountService) Upsert(ctx context.Context, tenantID string, req models.UpsertCourierAccountRequest) (*models.CourierAccount, error) {
	existing, err := s.repo.GetCourierAccount(ctx, tenantID, models.PartnerXpressbees)
	if err != nil {
		return nil, fmt.Errorf("failed to load courier account: %w", err)
	}

	account := existing
	if account == nil {
		if req.Password == "" {
			return nil, ErrPasswordRequired
		}
		account = &models.CourierAccount{
			ID:        uuid.New(),
			TenantID:  tenantID,
			Partner:   models.PartnerXpressbees,
			IsEnabled: true,
		}
	}

	// Changed credentials are unverified until tested again
	passwordChanged := req.Password != "" && req.Password != account.GetCredential(models.CredentialPassword)
	if account.GetCredential(models.CredentialEmail) != req.Email || passwordChanged {
		account.LastVerifiedAt = nil
	}

	credentials := models.JSONB{models.CredentialEmail: req.Email}
	switch {
	case req.Password != "" && s.vault != nil:
		ref, err := s.vault.StorePassword(ctx, tenantID, models.PartnerXpressbees, req.Password)
		if err != nil {
			return nil, err
		}
		credentials[models.CredentialPasswordRef] = ref
	case req.Password != "":
		credentials[models.CredentialPassword] = req.Password
	default:
		// Keep whichever form the stored password is in
		for _, key := range []string{models.CredentialPassword, models.CredentialPasswordRef} {
			if v := account.GetCredential(key); v != "" {
				credentials[key] = v
			}
		}
	}
	account.Credentials = credentials
	account.DefaultCourierID = req.DefaultCourierID
	if req.IsEnabled != nil {
		account.IsEnabled = *req.IsEnabled
	}
	account.UpdatedAt = time.Now()

	if err := s.repo.UpsertCourierAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save courier account: %w", err)
	}

	// The cached client still holds the old login and token
	s.couriers.InvalidateTenantCache(tenantID)

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"enabled":   account.IsEnabled,
	}).Info("Courier account saved")
	return account, nil
}

// Test logs in with the tenant's account, or the platform account when the tenant has none
func (s *CourierAccountService) Test(ctx context.Context, tenantID string) error {
	account, err := s.repo.GetCourierAccount(ctx, tenantID, models.PartnerXpressbees)
	if err != nil {
		return fmt.Errorf("failed to load courier account: %w", err)
	}

	var courier carriers.Courier
	if account != nil && account.HasCredentials() {
		resolved, err := resolveAccount(ctx, s.vault, account)
		if err != nil {
			return err
		}
		courier = s.couriers.NewForAccount(resolved)
	} else {
		courier, err = s.couriers.ForTenant(ctx, tenantID)
		if err != nil {
			return err
		}
	}

	if err := courier.TestConnection(ctx); err != nil {
		return err
	}

	if account != nil {
		if err := s.repo.MarkVerified(ctx, tenantID, models.PartnerXpressbees, time.Now()); err != nil {
			s.logger.WithError(err).Warn("Failed to record courier account verification")
		}
	}
	return nil
}
