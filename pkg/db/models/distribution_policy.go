package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorhub/leadrouter-backend/pkg/enums"
)

// DistributionPolicy is the active routing algorithm for one (service, city)
// scope. RotationCursor is the persisted global round-robin pointer so
// fairness survives restarts.
type DistributionPolicy struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Service        string           `gorm:"column:service;not null;uniqueIndex:uniq_policy_scope"`
	City           string           `gorm:"column:city;not null;uniqueIndex:uniq_policy_scope"`
	Name           enums.PolicyName `gorm:"column:name;type:text;not null"`
	Seed           int64            `gorm:"column:seed;not null;default:0"`
	AllowCrossCity bool             `gorm:"column:allow_cross_city;not null;default:false"`
	RotationCursor int              `gorm:"column:rotation_cursor;not null;default:0"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
