package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorhub/leadrouter-backend/pkg/enums"
)

// AssignmentRecord is one row of the append-only distribution audit log.
// Every capacity-affecting transition writes exactly one record, so the
// system state is reconstructible from this log.
type AssignmentRecord struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LeadID    uuid.UUID               `gorm:"column:lead_id;type:uuid;not null;index"`
	GroupID   *uuid.UUID              `gorm:"column:group_id;type:uuid;index"`
	VendorID  *uuid.UUID              `gorm:"column:vendor_id;type:uuid;index"`
	Method    enums.AssignmentMethod  `gorm:"column:method;type:text;not null"`
	Outcome   enums.AssignmentOutcome `gorm:"column:outcome;type:text;not null"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
}
