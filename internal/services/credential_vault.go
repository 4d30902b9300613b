package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Tesseract-Nexus/go-shared/secrets"
	"github.com/sirupsen/logrus"

	"logistics-service/internal/carriers"
	"logistics-service/internal/models"
)

// ErrVaultUnavailable means an account references a secret but no secret manager is wired
var ErrVaultUnavailable = errors.New("courier password is held in the secret manager, which is not configured")

// PasswordVault keeps tenant courier passwords out of the database
type PasswordVault interface {
	StorePassword(ctx context.Context, tenantID string, partner models.CourierPartner, password string) (string, error)
	ResolvePassword(ctx context.Context, ref string) (string, error)
}

// SecretManager is the part of the go-shared GCP client the vault uses
type SecretManager interface {
	CreateSecret(ctx context.Context, metadata secrets.SecretMetadata, secretValue string) (*secrets.SecretMetadata, error)
	GetSecretByRef(ctx context.Context, secretRef string) (string, error)
}

var _ SecretManager = (*secrets.GCPSecretManagerClient)(nil)

// SecretManagerVault stores passwords as GCP secrets, one per tenant and partner
type SecretManagerVault struct {
	client SecretManager
	logger *logrus.Entry
}

// NewSecretManagerVault creates a vault on a secret manager client
func NewSecretManagerVault(client SecretManager, logger *logrus.Entry) *SecretManagerVault {
	return &SecretManagerVault{
		client: client,
		logger: logger.WithField("component", "credential_vault"),
	}
}

// StorePassword writes a new secret version and returns its reference.
// An existing secret for the tenant gets a new version.
func (v *SecretManagerVault) StorePassword(ctx context.Context, tenantID string, partner models.CourierPartner, password string) (string, error) {
	metadata, err := v.client.CreateSecret(ctx, secrets.SecretMetadata{
		TenantID:   tenantID,
		SecretType: secrets.SecretTypeAPIKey,
		Provider:   secrets.SecretProvider(strings.ToLower(string(partner))),
		SecretName: models.CredentialPassword,
	}, password)
	if err != nil {
		return "", fmt.Errorf("failed to store courier password: %w", err)
	}

	v.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"version":   metadata.Version,
	}).Info("Courier password stored in secret manager")
	return metadata.GCPSecretID, nil
}

// ResolvePassword reads the latest version of a stored password
func (v *SecretManagerVault) ResolvePassword(ctx context.Context, ref string) (string, error) {
	password, err := v.client.GetSecretByRef(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("failed to read courier password: %w", err)
	}
	return password, nil
}

// ResolvingAccountStore loads accounts and fills in passwords held in the vault
type ResolvingAccountStore struct {
	accounts carriers.AccountStore
	vault    PasswordVault
}

var _ carriers.AccountStore = (*ResolvingAccountStore)(nil)

// NewResolvingAccountStore wraps an account store; vault may be nil
func NewResolvingAccountStore(accounts carriers.AccountStore, vault PasswordVault) *ResolvingAccountStore {
	return &ResolvingAccountStore{accounts: accounts, vault: vault}
}

// GetCourierAccount returns the account with its password resolved; (nil, nil) when none exists
func (s *ResolvingAccountStore) GetCourierAccount(ctx context.Context, tenantID string, partner models.CourierPartner) (*models.CourierAccount, error) {
	account, err := s.accounts.GetCourierAccount(ctx, tenantID, partner)
	if err != nil || account == nil {
		return account, err
	}
	return resolveAccount(ctx, s.vault, account)
}

// resolveAccount returns a copy carrying the plain password. The stored account is not modified.
func resolveAccount(ctx context.Context, vault PasswordVault, account *models.CourierAccount) (*models.CourierAccount, error) {
	ref := account.GetCredential(models.CredentialPasswordRef)
	if ref == "" || account.GetCredential(models.CredentialPassword) != "" {
		return account, nil
	}
	if vault == nil {
		return nil, fmt.Errorf("%w: tenant %s", ErrVaultUnavailable, account.TenantID)
	}

	password, err := vault.ResolvePassword(ctx, ref)
	if err != nil {
		return nil, err
	}

	resolved := *account
	resolved.Credentials = make(models.JSONB, len(account.Credentials)+1)
	for k, v := range account.Credentials {
		resolved.Credentials[k] = v
	}
	resolved.Credentials[models.CredentialPassword] = password
	return &resolved, nil
}
