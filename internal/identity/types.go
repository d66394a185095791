package identity

import "time"

// RoleName is the closed set of roles known to the service. Authorization
// decisions are membership tests against this enumeration, never string
// prefix matching.
type RoleName string

const (
	RoleAdmin      RoleName = "ADMIN"
	RoleUser       RoleName = "USER"
	RoleSuperAdmin RoleName = "SUPER_ADMIN"
)

// AllRoles lists the fixed role vocabulary in bootstrap order.
var AllRoles = []RoleName{RoleAdmin, RoleUser, RoleSuperAdmin}

// Valid reports whether the name belongs to the role vocabulary.
func (r RoleName) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleSuperAdmin:
		return true
	}
	return false
}

// ShortName returns the display label persisted next to the canonical name.
func (r RoleName) ShortName() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleUser:
		return "user"
	case RoleSuperAdmin:
		return "superadmin"
	}
	return ""
}

// Privileged reports whether holders of the role may act on accounts they
// do not own.
func (r RoleName) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// DefaultRole is granted to every new registration. Kept as ADMIN for
// compatibility with existing accounts even though USER would be the
// obvious baseline.
const DefaultRole = RoleAdmin

// Role is a persisted row of the role catalog.
type Role struct {
	ID        int64
	Name      RoleName
	ShortName string
	CreatedAt time.Time
}

// User is an account holder. CompanyID references the owned company by id;
// the company record points back with OwnerID, so neither side holds a live
// reference to the other.
type User struct {
	ID           int64
	Email        string
	Phone        string
	FirstName    string
	LastName     string
	PasswordHash string
	CompanyID    int64
	Roles        []RoleName
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPrivilegedRole reports whether the user holds any role that grants
// access to other accounts.
func (u User) HasPrivilegedRole() bool {
	for _, r := range u.Roles {
		if r.Privileged() {
			return true
		}
	}
	return false
}

// Company is the business entity owned by exactly one user.
type Company struct {
	ID           int64
	OwnerID      int64
	Name         string
	SIRET        string
	Address      string
	ShareCapital string
	LegalForm    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
