package models

import (
	"time"

	"github.com/google/uuid"
)

// VendorGroup is a named pool of vendors sharing a specialty and city.
// The member list order is the round-robin basis; RotationCursor points at
// the position the next vendor pick starts from.
type VendorGroup struct {
	ID               uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name             string        `gorm:"column:name;not null"`
	City             string        `gorm:"column:city;not null;index:idx_groups_service_city"`
	SpecialtyService string        `gorm:"column:specialty_service;not null;index:idx_groups_service_city"`
	Active           bool          `gorm:"column:active;not null;default:true"`
	RotationCursor   int           `gorm:"column:rotation_cursor;not null;default:0"`
	Members          []GroupMember `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

// GroupMember pins a vendor to a group at a stable position.
type GroupMember struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID   uuid.UUID `gorm:"column:group_id;type:uuid;not null;uniqueIndex:uniq_group_vendor"`
	VendorID  uuid.UUID `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:uniq_group_vendor"`
	Position  int       `gorm:"column:position;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
