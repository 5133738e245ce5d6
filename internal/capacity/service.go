package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
	pkgerrors "github.com/vendorhub/leadrouter-backend/pkg/errors"
)

// Ledger is the only place vendor capacity counters are mutated.
type Ledger interface {
	WithTx(tx *gorm.DB) Ledger
	EnsurePackage(ctx context.Context, vendorID uuid.UUID, total int) (*models.VendorPackage, error)
	GetPackage(ctx context.Context, vendorID uuid.UUID) (*models.VendorPackage, error)
	Snapshot(ctx context.Context, vendorIDs []uuid.UUID) (map[uuid.UUID]models.VendorPackage, error)
	Reserve(ctx context.Context, vendorID uuid.UUID, qty int) error
	Unreserve(ctx context.Context, vendorID uuid.UUID, qty int) error
	Release(ctx context.Context, vendorID uuid.UUID, qty int) error
	AddCapacity(ctx context.Context, vendorID uuid.UUID, qty int) error
	Pause(ctx context.Context, vendorID uuid.UUID) error
	Resume(ctx context.Context, vendorID uuid.UUID) error
	Retire(ctx context.Context, vendorID uuid.UUID) error
	Reactivate(ctx context.Context, vendorID uuid.UUID) error
}

type ledger struct {
	repo Repository
}

// NewLedger builds the capacity ledger service.
func NewLedger(repo Repository) (Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("capacity repository required")
	}
	return &ledger{repo: repo}, nil
}

// WithTx rebinds the ledger to a transaction so counter updates commit or
// roll back together with the caller's writes.
func (l *ledger) WithTx(tx *gorm.DB) Ledger {
	if tx == nil {
		return l
	}
	return &ledger{repo: l.repo.WithTx(tx)}
}

// EnsurePackage creates the vendor package on first membership; an existing
// package (retired included) is reactivated rather than recreated so returned
// history survives.
func (l *ledger) EnsurePackage(ctx context.Context, vendorID uuid.UUID, total int) (*models.VendorPackage, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if total <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "package total must be positive")
	}

	existing, err := l.repo.FindByVendor(ctx, vendorID)
	if err == nil {
		if existing.Retired {
			if _, rerr := l.repo.SetRetired(ctx, vendorID, false); rerr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, rerr, "reactivate package")
			}
			existing.Retired = false
		}
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load package")
	}

	pkg := &models.VendorPackage{
		VendorID:  vendorID,
		Total:     total,
		Remaining: total,
	}
	if err := l.repo.Create(ctx, pkg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create package")
	}
	return pkg, nil
}

func (l *ledger) GetPackage(ctx context.Context, vendorID uuid.UUID) (*models.VendorPackage, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	pkg, err := l.repo.FindByVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor package not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load package")
	}
	return pkg, nil
}

func (l *ledger) Snapshot(ctx context.Context, vendorIDs []uuid.UUID) (map[uuid.UUID]models.VendorPackage, error) {
	pkgs, err := l.repo.SnapshotByVendors(ctx, vendorIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "snapshot packages")
	}
	out := make(map[uuid.UUID]models.VendorPackage, len(pkgs))
	for _, pkg := range pkgs {
		out[pkg.VendorID] = pkg
	}
	return out, nil
}

func (l *ledger) Reserve(ctx context.Context, vendorID uuid.UUID, qty int) error {
	if vendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reserve qty must be positive")
	}

	ok, err := l.repo.Reserve(ctx, vendorID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve capacity")
	}
	if ok {
		return nil
	}

	// The guarded update matched nothing. Look at the row to report why.
	pkg, err := l.repo.FindByVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "vendor package not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load package")
	}
	switch {
	case pkg.Retired:
		return pkgerrors.New(pkgerrors.CodeCapacity, "vendor package retired")
	case pkg.Paused:
		return pkgerrors.New(pkgerrors.CodeCapacity, "vendor package paused")
	default:
		return pkgerrors.New(pkgerrors.CodeCapacity, "vendor capacity exhausted")
	}
}

// Unreserve rolls back a reservation whose assignment transaction failed.
// It restores remaining without touching the returned counter.
func (l *ledger) Unreserve(ctx context.Context, vendorID uuid.UUID, qty int) error {
	return l.restore(ctx, vendorID, qty, false)
}

// Release returns capacity after a rejection or group teardown and counts it
// in the returned audit counter.
func (l *ledger) Release(ctx context.Context, vendorID uuid.UUID, qty int) error {
	return l.restore(ctx, vendorID, qty, true)
}

func (l *ledger) restore(ctx context.Context, vendorID uuid.UUID, qty int, countReturned bool) error {
	if vendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "release qty must be positive")
	}
	ok, err := l.repo.Restore(ctx, vendorID, qty, countReturned)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release capacity")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "vendor package not found")
	}
	return nil
}

func (l *ledger) AddCapacity(ctx context.Context, vendorID uuid.UUID, qty int) error {
	if vendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "added qty must be positive")
	}
	ok, err := l.repo.AddCapacity(ctx, vendorID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add capacity")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "vendor package not found")
	}
	return nil
}

func (l *ledger) Pause(ctx context.Context, vendorID uuid.UUID) error {
	return l.setPaused(ctx, vendorID, true)
}

func (l *ledger) Resume(ctx context.Context, vendorID uuid.UUID) error {
	return l.setPaused(ctx, vendorID, false)
}

func (l *ledger) setPaused(ctx context.Context, vendorID uuid.UUID, paused bool) error {
	if vendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	ok, err := l.repo.SetPaused(ctx, vendorID, paused)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update paused flag")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "vendor package not found")
	}
	return nil
}

// Retire marks the package unusable for future ranking while preserving its
// counters for audit history.
func (l *ledger) Retire(ctx context.Context, vendorID uuid.UUID) error {
	return l.setRetired(ctx, vendorID, true)
}

func (l *ledger) Reactivate(ctx context.Context, vendorID uuid.UUID) error {
	return l.setRetired(ctx, vendorID, false)
}

func (l *ledger) setRetired(ctx context.Context, vendorID uuid.UUID, retired bool) error {
	if vendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	ok, err := l.repo.SetRetired(ctx, vendorID, retired)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update retired flag")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "vendor package not found")
	}
	return nil
}
