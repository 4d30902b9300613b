package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSONB custom type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Credential keys of a courier account. A password held in the secret
// manager is stored as a reference and resolved before a client is built.
const (
	CredentialEmail       = "email"
	CredentialPassword    = "password"
	CredentialPasswordRef = "password_ref"
)

// CourierAccount holds a tenant's own login for a courier partner.
// Endpoint URLs are platform configuration and never stored per tenant.
type CourierAccount struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID  string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_courier_account_tenant_partner" json:"tenantId"`
	Partner   CourierPartner `gorm:"type:varchar(50);not null;uniqueIndex:idx_courier_account_tenant_partner" json:"partner"`
	IsEnabled bool           `gorm:"default:true" json:"isEnabled"`

	// Credentials such as email/password; never exposed in JSON
	Credentials JSONB `gorm:"type:jsonb" json:"-"`

	// DefaultCourierID overrides the platform fallback courier for AWB generation
	DefaultCourierID string `gorm:"type:varchar(50)" json:"defaultCourierId,omitempty"`

	LastVerifiedAt *time.Time `json:"lastVerifiedAt,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (CourierAccount) TableName() string {
	return "courier_accounts"
}

// GetCredential returns a credential value as a string
func (c *CourierAccount) GetCredential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	if v, ok := c.Credentials[key].(string); ok {
		return v
	}
	return ""
}

// HasCredentials checks if an email and a password, inline or referenced, are present
func (c *CourierAccount) HasCredentials() bool {
	return c.GetCredential(CredentialEmail) != "" && c.HasPassword()
}

// HasPassword reports a stored password in either form
func (c *CourierAccount) HasPassword() bool {
	return c.GetCredential(CredentialPassword) != "" || c.GetCredential(CredentialPasswordRef) != ""
}

// CourierAccountResponse is the redacted API view of an account
type CourierAccountResponse struct {
	ID               uuid.UUID      `json:"id"`
	Partner          CourierPartner `json:"partner"`
	IsEnabled        bool           `json:"isEnabled"`
	Email            string         `json:"email"`
	HasPassword      bool           `json:"hasPassword"`
	DefaultCourierID string         `json:"defaultCourierId,omitempty"`
	LastVerifiedAt   *time.Time     `json:"lastVerifiedAt,omitempty"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// ToResponse converts the account to its redacted view
func (c *CourierAccount) ToResponse() CourierAccountResponse {
	return CourierAccountResponse{
		ID:               c.ID,
		Partner:          c.Partner,
		IsEnabled:        c.IsEnabled,
		Email:            c.GetCredential(CredentialEmail),
		HasPassword:      c.HasPassword(),
		DefaultCourierID: c.DefaultCourierID,
		LastVerifiedAt:   c.LastVerifiedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// UpsertCourierAccountRequest is the body of PUT /api/courier-account
type UpsertCourierAccountRequest struct {
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password"`
	DefaultCourierID string `json:"defaultCourierId"`
	IsEnabled        *bool  `json:"isEnabled"`
}
