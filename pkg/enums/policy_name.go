package enums

import "fmt"

// PolicyName selects the distribution algorithm for a (service, city) scope.
type PolicyName string

const (
	PolicyBasedOnSpecialty PolicyName = "based_on_specialty"
	PolicyRoundRobin       PolicyName = "round_robin"
	PolicyLeastBusyGroup   PolicyName = "least_busy_group"
	PolicyRandom           PolicyName = "random"
)

var validPolicyNames = []PolicyName{
	PolicyBasedOnSpecialty,
	PolicyRoundRobin,
	PolicyLeastBusyGroup,
	PolicyRandom,
}

// String implements fmt.Stringer.
func (p PolicyName) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PolicyName.
func (p PolicyName) IsValid() bool {
	for _, candidate := range validPolicyNames {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePolicyName converts raw input into a PolicyName.
func ParsePolicyName(value string) (PolicyName, error) {
	for _, candidate := range validPolicyNames {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid policy name %q", value)
}
