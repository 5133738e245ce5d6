package models

import (
	"time"

	"github.com/google/uuid"
)

// VendorPackage is a vendor's lead quota. Invariant: 0 <= remaining <= total.
// Retired packages are kept for audit history and excluded from eligibility.
type VendorPackage struct {
	VendorID  uuid.UUID `gorm:"column:vendor_id;type:uuid;primaryKey"`
	Total     int       `gorm:"column:total;not null;default:0"`
	Remaining int       `gorm:"column:remaining;not null;default:0"`
	Returned  int       `gorm:"column:returned;not null;default:0"`
	Paused    bool      `gorm:"column:paused;not null;default:false"`
	Retired   bool      `gorm:"column:retired;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Consumed is the number of leads delivered against the quota.
func (p VendorPackage) Consumed() int {
	return p.Total - p.Remaining
}
