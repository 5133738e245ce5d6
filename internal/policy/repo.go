package policy

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
)

// Repository persists the per-scope policy records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, policy *models.DistributionPolicy) (*models.DistributionPolicy, error)
	FindByScope(ctx context.Context, service, city string) (*models.DistributionPolicy, error)
	SetRotationCursor(ctx context.Context, policyID uuid.UUID, cursor int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a policy repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Upsert(ctx context.Context, policy *models.DistributionPolicy) (*models.DistributionPolicy, error) {
	var existing models.DistributionPolicy
	err := r.db.WithContext(ctx).
		Where("service = ? AND city = ?", policy.Service, policy.City).
		First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"name":             policy.Name,
			"seed":             policy.Seed,
			"allow_cross_city": policy.AllowCrossCity,
		}
		// Switching algorithms restarts the rotation.
		if existing.Name != policy.Name {
			updates["rotation_cursor"] = 0
		}
		res := r.db.WithContext(ctx).
			Model(&models.DistributionPolicy{}).
			Where("id = ?", existing.ID).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		return r.FindByScope(ctx, policy.Service, policy.City)
	case err == gorm.ErrRecordNotFound:
		if policy.ID == uuid.Nil {
			policy.ID = uuid.New()
		}
		if err := r.db.WithContext(ctx).Create(policy).Error; err != nil {
			return nil, err
		}
		return policy, nil
	default:
		return nil, err
	}
}

func (r *repository) FindByScope(ctx context.Context, service, city string) (*models.DistributionPolicy, error) {
	var policy models.DistributionPolicy
	err := r.db.WithContext(ctx).
		Where("service = ? AND city = ?", service, city).
		First(&policy).Error
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

// SetRotationCursor persists the global round-robin pointer for a scope.
func (r *repository) SetRotationCursor(ctx context.Context, policyID uuid.UUID, cursor int) error {
	return r.db.WithContext(ctx).
		Model(&models.DistributionPolicy{}).
		Where("id = ?", policyID).
		Update("rotation_cursor", cursor).Error
}
