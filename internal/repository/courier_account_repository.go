package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"logistics-service/internal/models"
)

// CourierAccountRepository handles tenant courier account database operations
type CourierAccountRepository struct {
	db *gorm.DB
}

// NewCourierAccountRepository creates a new courier account repository
func NewCourierAccountRepository(db *gorm.DB) *CourierAccountRepository {
	return &CourierAccountRepository{db: db}
}

// GetCourierAccount gets a tenant's account for a partner; (nil, nil) when none exists
func (r *CourierAccountRepository) GetCourierAccount(ctx context.Context, tenantID string, partner models.CourierPartner) (*models.CourierAccount, error) {
	var account models.CourierAccount
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND partner = ?", tenantID, partner).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// UpsertCourierAccount creates or replaces the tenant's account for its partner
func (r *CourierAccountRepository) UpsertCourierAccount(ctx context.Context, account *models.CourierAccount) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "partner"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_enabled", "credentials", "default_courier_id", "last_verified_at", "updated_at"}),
		}).
		Create(account).Error
}

// MarkVerified records a successful credential check
func (r *CourierAccountRepository) MarkVerified(ctx context.Context, tenantID string, partner models.CourierPartner, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.CourierAccount{}).
		Where("tenant_id = ? AND partner = ?", tenantID, partner).
		Update("last_verified_at", at).Error
}
