package leads

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
	"github.com/vendorhub/leadrouter-backend/pkg/enums"
)

// CreateLeadInput carries the validated intake payload.
type CreateLeadInput struct {
	CustomerName     string     `json:"customer_name" validate:"required,min=1,max=200"`
	CustomerPhone    string     `json:"customer_phone" validate:"required,min=5,max=32"`
	CustomerEmail    *string    `json:"customer_email,omitempty" validate:"omitempty,email"`
	RequestedService string     `json:"requested_service" validate:"required,min=1,max=120"`
	City             string     `json:"city" validate:"required,min=1,max=120"`
	EventDate        *time.Time `json:"event_date,omitempty"`
}

// LeadDTO is the API shape of a lead.
type LeadDTO struct {
	ID               uuid.UUID        `json:"id"`
	CustomerName     string           `json:"customer_name"`
	CustomerPhone    string           `json:"customer_phone"`
	CustomerEmail    *string          `json:"customer_email,omitempty"`
	RequestedService string           `json:"requested_service"`
	City             string           `json:"city"`
	EventDate        *time.Time       `json:"event_date,omitempty"`
	Status           enums.LeadStatus `json:"status"`
	AssignedGroupID  *uuid.UUID       `json:"assigned_group_id,omitempty"`
	AssignedVendorID *uuid.UUID       `json:"assigned_vendor_id,omitempty"`
	Events           []LeadEventDTO   `json:"events,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// LeadEventDTO is one history entry on a lead.
type LeadEventDTO struct {
	FromStatus enums.LeadStatus `json:"from_status"`
	ToStatus   enums.LeadStatus `json:"to_status"`
	GroupID    *uuid.UUID       `json:"group_id,omitempty"`
	VendorID   *uuid.UUID       `json:"vendor_id,omitempty"`
	Reason     *string          `json:"reason,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// ToDTO converts a lead row and its preloaded events into the API shape.
func ToDTO(lead *models.Lead) *LeadDTO {
	dto := &LeadDTO{
		ID:               lead.ID,
		CustomerName:     lead.CustomerName,
		CustomerPhone:    lead.CustomerPhone,
		CustomerEmail:    lead.CustomerEmail,
		RequestedService: lead.RequestedService,
		City:             lead.City,
		EventDate:        lead.EventDate,
		Status:           lead.Status,
		AssignedGroupID:  lead.AssignedGroupID,
		AssignedVendorID: lead.AssignedVendorID,
		CreatedAt:        lead.CreatedAt,
		UpdatedAt:        lead.UpdatedAt,
	}
	for _, ev := range lead.Events {
		dto.Events = append(dto.Events, LeadEventDTO{
			FromStatus: ev.FromStatus,
			ToStatus:   ev.ToStatus,
			GroupID:    ev.GroupID,
			VendorID:   ev.VendorID,
			Reason:     ev.Reason,
			CreatedAt:  ev.CreatedAt,
		})
	}
	return dto
}
