package groups

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
)

// GroupDTO is the external view of a vendor group with member quotas attached.
type GroupDTO struct {
	ID               uuid.UUID   `json:"id"`
	Name             string      `json:"name"`
	City             string      `json:"city"`
	SpecialtyService string      `json:"specialty_service"`
	Active           bool        `json:"active"`
	RotationCursor   int         `json:"rotation_cursor"`
	Members          []MemberDTO `json:"members"`
	CreatedAt        time.Time   `json:"created_at"`
}

// MemberDTO pairs a roster position with the vendor's capacity counters.
type MemberDTO struct {
	VendorID  uuid.UUID `json:"vendor_id"`
	Position  int       `json:"position"`
	Total     int       `json:"total"`
	Remaining int       `json:"remaining"`
	Returned  int       `json:"returned"`
	Paused    bool      `json:"paused"`
}

func toGroupDTO(group *models.VendorGroup, packages map[uuid.UUID]models.VendorPackage) GroupDTO {
	members := make([]MemberDTO, 0, len(group.Members))
	for _, member := range group.Members {
		dto := MemberDTO{
			VendorID: member.VendorID,
			Position: member.Position,
		}
		if pkg, ok := packages[member.VendorID]; ok {
			dto.Total = pkg.Total
			dto.Remaining = pkg.Remaining
			dto.Returned = pkg.Returned
			dto.Paused = pkg.Paused
		}
		members = append(members, dto)
	}
	return GroupDTO{
		ID:               group.ID,
		Name:             group.Name,
		City:             group.City,
		SpecialtyService: group.SpecialtyService,
		Active:           group.Active,
		RotationCursor:   group.RotationCursor,
		Members:          members,
		CreatedAt:        group.CreatedAt,
	}
}
