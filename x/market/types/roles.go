package types

import (
	"fmt"
	"strings"
)

// Role is an administrative capability granted to an address.
type Role string

const (
	RoleGuardian Role = "guardian"
	RoleVerifier Role = "verifier"
	RoleResolver Role = "resolver"
)

// AllRoles lists every grantable role.
var AllRoles = []Role{RoleGuardian, RoleVerifier, RoleResolver}

// ParseRole parses a role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllRoles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// RoleGrant records who holds a role.
type RoleGrant struct {
	Role    Role   `json:"role"`
	Address string `json:"address"`
}
