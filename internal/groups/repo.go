package groups

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
	"github.com/vendorhub/leadrouter-backend/pkg/pagination"
)

// Repository owns vendor groups and their ordered membership rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, group *models.VendorGroup) (*models.VendorGroup, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.VendorGroup, error)
	ActiveScopeExists(ctx context.Context, name, city, service string) (bool, error)
	List(ctx context.Context, params pagination.Params) ([]models.VendorGroup, *pagination.Cursor, error)
	ListEligible(ctx context.Context, service, city string, crossCity bool) ([]models.VendorGroup, error)
	AppendMember(ctx context.Context, groupID, vendorID uuid.UUID) (*models.GroupMember, error)
	RemoveMember(ctx context.Context, groupID, vendorID uuid.UUID) (bool, error)
	CountMembershipsByVendor(ctx context.Context, vendorID uuid.UUID) (int64, error)
	SetActive(ctx context.Context, groupID uuid.UUID, active bool) (bool, error)
	SetRotationCursor(ctx context.Context, groupID uuid.UUID, cursor int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a groups repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, group *models.VendorGroup) (*models.VendorGroup, error) {
	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(group).Error; err != nil {
		return nil, err
	}
	return group, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.VendorGroup, error) {
	var group models.VendorGroup
	err := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", id).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *repository) ActiveScopeExists(ctx context.Context, name, city, service string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VendorGroup{}).
		Where("name = ? AND city = ? AND specialty_service = ? AND active = ?", name, city, service, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// List fetches one extra row past the page size; the buffer row signals a
// next page and the cursor points at the last row actually returned.
func (r *repository) List(ctx context.Context, params pagination.Params) ([]models.VendorGroup, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("created_at ASC, id ASC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var groups []models.VendorGroup
	if err := query.Find(&groups).Error; err != nil {
		return nil, nil, err
	}
	if len(groups) > normalized {
		groups = groups[:normalized]
		last := groups[normalized-1]
		return groups, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return groups, nil, nil
}

// ListEligible returns active groups for the requested service in registration
// order. City filtering is skipped when the active policy allows cross-city
// fallback.
func (r *repository) ListEligible(ctx context.Context, service, city string, crossCity bool) ([]models.VendorGroup, error) {
	query := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("active = ? AND specialty_service = ?", true, service).
		Order("created_at ASC, id ASC")
	if !crossCity {
		query = query.Where("city = ?", city)
	}

	var groups []models.VendorGroup
	if err := query.Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *repository) AppendMember(ctx context.Context, groupID, vendorID uuid.UUID) (*models.GroupMember, error) {
	var maxPosition *int
	err := r.db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Select("MAX(position)").
		Where("group_id = ?", groupID).
		Scan(&maxPosition).Error
	if err != nil {
		return nil, err
	}

	position := 0
	if maxPosition != nil {
		position = *maxPosition + 1
	}

	member := &models.GroupMember{
		ID:       uuid.New(),
		GroupID:  groupID,
		VendorID: vendorID,
		Position: position,
	}
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		return nil, err
	}
	return member, nil
}

func (r *repository) RemoveMember(ctx context.Context, groupID, vendorID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND vendor_id = ?", groupID, vendorID).
		Delete(&models.GroupMember{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CountMembershipsByVendor(ctx context.Context, vendorID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Where("vendor_id = ?", vendorID).
		Count(&count).Error
	return count, err
}

func (r *repository) SetActive(ctx context.Context, groupID uuid.UUID, active bool) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorGroup{}).
		Where("id = ?", groupID).
		Update("active", active)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetRotationCursor persists the per-group vendor rotation pointer.
func (r *repository) SetRotationCursor(ctx context.Context, groupID uuid.UUID, cursor int) error {
	return r.db.WithContext(ctx).
		Model(&models.VendorGroup{}).
		Where("id = ?", groupID).
		Update("rotation_cursor", cursor).Error
}
