package leads

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
	"github.com/vendorhub/leadrouter-backend/pkg/enums"
	"github.com/vendorhub/leadrouter-backend/pkg/pagination"
)

// ListFilters narrows lead listings.
type ListFilters struct {
	Status  *enums.LeadStatus
	City    string
	Service string
}

// Repository owns lead rows and their append-only event history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, lead *models.Lead) (*models.Lead, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Lead, *pagination.Cursor, error)
	ListAssignedByGroup(ctx context.Context, groupID uuid.UUID) ([]models.Lead, error)
	CountAssignedByGroup(ctx context.Context, groupID uuid.UUID) (int64, error)
	ListAssignedByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.Lead, error)
	TransitionStatus(ctx context.Context, leadID uuid.UUID, from, to enums.LeadStatus, groupID, vendorID *uuid.UUID) (bool, error)
	AppendEvent(ctx context.Context, event *models.LeadEvent) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a leads repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, lead *models.Lead) (*models.Lead, error) {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(lead).Error; err != nil {
		return nil, err
	}
	return lead, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.WithContext(ctx).
		Preload("Events", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ?", id).
		First(&lead).Error
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// List fetches one extra row past the page size; the buffer row signals a
// next page and the cursor points at the last row actually returned.
func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Lead, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.City != "" {
		query = query.Where("city = ?", filters.City)
	}
	if filters.Service != "" {
		query = query.Where("requested_service = ?", filters.Service)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var list []models.Lead
	if err := query.Find(&list).Error; err != nil {
		return nil, nil, err
	}
	if len(list) > normalized {
		list = list[:normalized]
		last := list[normalized-1]
		return list, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return list, nil, nil
}

func (r *repository) ListAssignedByGroup(ctx context.Context, groupID uuid.UUID) ([]models.Lead, error) {
	var list []models.Lead
	err := r.db.WithContext(ctx).
		Where("status = ? AND assigned_group_id = ?", enums.LeadStatusAssigned, groupID).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) CountAssignedByGroup(ctx context.Context, groupID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Lead{}).
		Where("status = ? AND assigned_group_id = ?", enums.LeadStatusAssigned, groupID).
		Count(&count).Error
	return count, err
}

func (r *repository) ListAssignedByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.Lead, error) {
	var list []models.Lead
	err := r.db.WithContext(ctx).
		Where("status = ? AND assigned_vendor_id = ?", enums.LeadStatusAssigned, vendorID).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// TransitionStatus applies a guarded state transition. The WHERE clause pins
// the expected current status, so concurrent coordinators cannot double-apply
// the same transition.
func (r *repository) TransitionStatus(ctx context.Context, leadID uuid.UUID, from, to enums.LeadStatus, groupID, vendorID *uuid.UUID) (bool, error) {
	updates := map[string]any{
		"status":             to,
		"assigned_group_id":  groupID,
		"assigned_vendor_id": vendorID,
	}
	res := r.db.WithContext(ctx).
		Model(&models.Lead{}).
		Where("id = ? AND status = ?", leadID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) AppendEvent(ctx context.Context, event *models.LeadEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(event).Error
}
