package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorhub/leadrouter-backend/pkg/enums"
)

// Lead is a customer service request awaiting vendor assignment.
type Lead struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerName     string           `gorm:"column:customer_name;not null"`
	CustomerPhone    string           `gorm:"column:customer_phone;not null"`
	CustomerEmail    *string          `gorm:"column:customer_email"`
	RequestedService string           `gorm:"column:requested_service;not null;index:idx_leads_service_city"`
	City             string           `gorm:"column:city;not null;index:idx_leads_service_city"`
	EventDate        *time.Time       `gorm:"column:event_date"`
	Status           enums.LeadStatus `gorm:"column:status;type:text;not null;default:'new';index"`
	AssignedGroupID  *uuid.UUID       `gorm:"column:assigned_group_id;type:uuid;index"`
	AssignedVendorID *uuid.UUID       `gorm:"column:assigned_vendor_id;type:uuid;index"`
	Events           []LeadEvent      `gorm:"foreignKey:LeadID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// LeadEvent is one entry in a lead's append-only status history.
type LeadEvent struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LeadID     uuid.UUID        `gorm:"column:lead_id;type:uuid;not null;index"`
	FromStatus enums.LeadStatus `gorm:"column:from_status;type:text;not null"`
	ToStatus   enums.LeadStatus `gorm:"column:to_status;type:text;not null"`
	GroupID    *uuid.UUID       `gorm:"column:group_id;type:uuid"`
	VendorID   *uuid.UUID       `gorm:"column:vendor_id;type:uuid"`
	Reason     *string          `gorm:"column:reason"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
}
