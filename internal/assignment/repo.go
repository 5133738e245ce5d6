package assignment

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
)

// Repository owns the append-only assignment audit log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.AssignmentRecord) error
	FindLatestByLead(ctx context.Context, leadID uuid.UUID) (*models.AssignmentRecord, error)
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]models.AssignmentRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an assignment record repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.AssignmentRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindLatestByLead(ctx context.Context, leadID uuid.UUID) (*models.AssignmentRecord, error) {
	var record models.AssignmentRecord
	err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]models.AssignmentRecord, error) {
	var records []models.AssignmentRecord
	err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
