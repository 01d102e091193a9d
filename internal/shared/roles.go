package shared

import (
	"fmt"
	"strings"
)

// Role enumerates the access roles known to the system.
type Role string

const (
	RoleAdmin          Role = "Admin"
	RoleProjectManager Role = "ProjectManager"
	RoleDeveloper      Role = "Developer"
	RoleClient         Role = "Client"
)

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleProjectManager, RoleDeveloper, RoleClient:
		return true
	default:
		return false
	}
}

// CanApprove reports whether the role may approve time entries and expenses.
func (r Role) CanApprove() bool {
	return r == RoleAdmin || r == RoleProjectManager
}

// ParseRole maps a case-insensitive name onto a Role.
func ParseRole(raw string) (Role, error) {
	for _, r := range []Role{RoleAdmin, RoleProjectManager, RoleDeveloper, RoleClient} {
		if strings.EqualFold(strings.TrimSpace(raw), string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, raw)
}

// ManagerRoles lists roles allowed to run approval and budget workflows.
func ManagerRoles() []Role {
	return []Role{RoleAdmin, RoleProjectManager}
}

// StaffRoles lists every internal role.
func StaffRoles() []Role {
	return []Role{RoleAdmin, RoleProjectManager, RoleDeveloper}
}
