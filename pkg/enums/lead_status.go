package enums

import "fmt"

// LeadStatus tracks the lifecycle of a lead.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusAssigned  LeadStatus = "assigned"
	LeadStatusRejected  LeadStatus = "rejected"
	LeadStatusCompleted LeadStatus = "completed"
)

var validLeadStatuses = []LeadStatus{
	LeadStatusNew,
	LeadStatusAssigned,
	LeadStatusRejected,
	LeadStatusCompleted,
}

// String implements fmt.Stringer.
func (s LeadStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LeadStatus.
func (s LeadStatus) IsValid() bool {
	for _, candidate := range validLeadStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from the status.
func (s LeadStatus) IsTerminal() bool {
	return s == LeadStatusCompleted
}

// ParseLeadStatus converts raw input into a LeadStatus.
func ParseLeadStatus(value string) (LeadStatus, error) {
	for _, candidate := range validLeadStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid lead status %q", value)
}
