package domain

import "strings"

// Role is the authorization level of a principal.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a raw role to a known role, defaulting to RoleUser.
func ParseRole(raw string) Role {
	if Role(strings.ToLower(strings.TrimSpace(raw))) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Authenticated reports whether the principal identifies a caller.
func (p Principal) Authenticated() bool {
	return strings.TrimSpace(p.ID) != ""
}

// CanAccess reports whether the principal may read or act on order.
func (p Principal) CanAccess(order Order) bool {
	return p.IsAdmin() || order.OwnedBy(p.ID)
}
