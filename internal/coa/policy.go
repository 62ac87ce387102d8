package coa

import "fmt"

// Policy decides which members of an identity may add authorized wallets.
type Policy string

const (
	// PolicyPrimary lets only the primary wallet add members.
	PolicyPrimary Policy = "primary"
	// PolicyAuthorized lets any member of the identity add members.
	PolicyAuthorized Policy = "authorized"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyPrimary, PolicyAuthorized:
		return p, nil
	case "":
		return PolicyPrimary, nil
	}
	return "", fmt.Errorf("unknown add wallet policy %q", s)
}

func (p Policy) allowsAdd(isPrimary bool) bool {
	if p == PolicyAuthorized {
		return true
	}
	return isPrimary
}
