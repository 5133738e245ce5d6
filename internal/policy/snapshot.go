package policy

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorhub/leadrouter-backend/pkg/enums"
)

// VendorSnapshot is one member's capacity state at ranking time.
type VendorSnapshot struct {
	VendorID  uuid.UUID
	Total     int
	Remaining int
	Paused    bool
}

// Eligible reports whether the vendor can receive a lead right now.
func (v VendorSnapshot) Eligible() bool {
	return !v.Paused && v.Remaining > 0
}

// GroupSnapshot is one eligible group with its members in list order.
// Members carry the ordered positions the rotation cursor walks over.
type GroupSnapshot struct {
	ID        uuid.UUID
	Name      string
	City      string
	Service   string
	CreatedAt time.Time
	Cursor    int
	Members   []VendorSnapshot
}

// RemainingFraction is sum(remaining) / sum(total) across members.
func (g GroupSnapshot) RemainingFraction() float64 {
	var remaining, total int
	for _, m := range g.Members {
		remaining += m.Remaining
		total += m.Total
	}
	if total == 0 {
		return 0
	}
	return float64(remaining) / float64(total)
}

// BusyRatio is sum(consumed) / sum(total); 0 for an empty quota.
func (g GroupSnapshot) BusyRatio() float64 {
	var consumed, total int
	for _, m := range g.Members {
		consumed += m.Total - m.Remaining
		total += m.Total
	}
	if total == 0 {
		return 0
	}
	return float64(consumed) / float64(total)
}

// PolicySnapshot carries the active policy parameters for a scope.
type PolicySnapshot struct {
	Name   enums.PolicyName
	Seed   int64
	Cursor int
}

// Candidate is one (group, vendor) pick in rank order. The cursor fields
// hold the values to persist if this candidate wins the reservation, so
// fallthrough to a later candidate never advances state it did not earn.
type Candidate struct {
	GroupID          uuid.UUID
	VendorID         uuid.UUID
	NextGroupCursor  int
	NextGlobalCursor int
}
