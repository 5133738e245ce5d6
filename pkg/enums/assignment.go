package enums

import "fmt"

// AssignmentMethod records how a lead ended up at a vendor.
type AssignmentMethod string

const (
	MethodBasedOnSpecialty AssignmentMethod = "based_on_specialty"
	MethodRoundRobin       AssignmentMethod = "round_robin"
	MethodLeastBusyGroup   AssignmentMethod = "least_busy_group"
	MethodRandom           AssignmentMethod = "random"
	MethodManual           AssignmentMethod = "manual"
)

// MethodForPolicy maps the active policy onto its audit method.
func MethodForPolicy(name PolicyName) AssignmentMethod {
	return AssignmentMethod(name)
}

// AssignmentOutcome is the terminal result of a coordinator run.
type AssignmentOutcome string

const (
	OutcomeAssigned   AssignmentOutcome = "assigned"
	OutcomeRejected   AssignmentOutcome = "rejected"
	OutcomeReassigned AssignmentOutcome = "reassigned"
	OutcomeCompleted  AssignmentOutcome = "completed"
	OutcomeNoTarget   AssignmentOutcome = "no_eligible_target"
)

var validAssignmentOutcomes = []AssignmentOutcome{
	OutcomeAssigned,
	OutcomeRejected,
	OutcomeReassigned,
	OutcomeCompleted,
	OutcomeNoTarget,
}

// String implements fmt.Stringer.
func (o AssignmentOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is a known AssignmentOutcome.
func (o AssignmentOutcome) IsValid() bool {
	for _, candidate := range validAssignmentOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseAssignmentOutcome converts raw input into an AssignmentOutcome.
func ParseAssignmentOutcome(value string) (AssignmentOutcome, error) {
	for _, candidate := range validAssignmentOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment outcome %q", value)
}
