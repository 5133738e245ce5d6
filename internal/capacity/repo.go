package capacity

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
)

// Repository owns vendor package rows. Counter mutations are single-row
// guarded updates so no lock ever spans more than one vendor.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, pkg *models.VendorPackage) error
	FindByVendor(ctx context.Context, vendorID uuid.UUID) (*models.VendorPackage, error)
	SnapshotByVendors(ctx context.Context, vendorIDs []uuid.UUID) ([]models.VendorPackage, error)
	Reserve(ctx context.Context, vendorID uuid.UUID, qty int) (bool, error)
	Restore(ctx context.Context, vendorID uuid.UUID, qty int, countReturned bool) (bool, error)
	AddCapacity(ctx context.Context, vendorID uuid.UUID, qty int) (bool, error)
	SetPaused(ctx context.Context, vendorID uuid.UUID, paused bool) (bool, error)
	SetRetired(ctx context.Context, vendorID uuid.UUID, retired bool) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a capacity repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, pkg *models.VendorPackage) error {
	return r.db.WithContext(ctx).Create(pkg).Error
}

func (r *repository) FindByVendor(ctx context.Context, vendorID uuid.UUID) (*models.VendorPackage, error) {
	var pkg models.VendorPackage
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		First(&pkg).Error
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *repository) SnapshotByVendors(ctx context.Context, vendorIDs []uuid.UUID) ([]models.VendorPackage, error) {
	if len(vendorIDs) == 0 {
		return nil, nil
	}
	var pkgs []models.VendorPackage
	err := r.db.WithContext(ctx).
		Where("vendor_id IN ?", vendorIDs).
		Find(&pkgs).Error
	if err != nil {
		return nil, err
	}
	return pkgs, nil
}

// Reserve is the atomic compare-and-decrement. The WHERE clause re-validates
// remaining/paused/retired at write time, so a stale snapshot can never push
// remaining below zero.
func (r *repository) Reserve(ctx context.Context, vendorID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorPackage{}).
		Where("vendor_id = ? AND remaining >= ? AND paused = ? AND retired = ?", vendorID, qty, false, false).
		Update("remaining", gorm.Expr("remaining - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Restore gives capacity back, capped at total. countReturned distinguishes a
// customer-visible return (rejection, group teardown) from rolling back a
// reservation whose surrounding transaction failed.
func (r *repository) Restore(ctx context.Context, vendorID uuid.UUID, qty int, countReturned bool) (bool, error) {
	updates := map[string]any{
		"remaining": gorm.Expr("CASE WHEN remaining + ? > total THEN total ELSE remaining + ? END", qty, qty),
	}
	if countReturned {
		updates["returned"] = gorm.Expr("returned + ?", qty)
	}
	res := r.db.WithContext(ctx).
		Model(&models.VendorPackage{}).
		Where("vendor_id = ?", vendorID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) AddCapacity(ctx context.Context, vendorID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorPackage{}).
		Where("vendor_id = ? AND retired = ?", vendorID, false).
		Updates(map[string]any{
			"total":     gorm.Expr("total + ?", qty),
			"remaining": gorm.Expr("remaining + ?", qty),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetPaused(ctx context.Context, vendorID uuid.UUID, paused bool) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorPackage{}).
		Where("vendor_id = ?", vendorID).
		Update("paused", paused)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetRetired(ctx context.Context, vendorID uuid.UUID, retired bool) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorPackage{}).
		Where("vendor_id = ?", vendorID).
		Update("retired", retired)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
