package identity

import "context"

// NewCompany carries the company fields supplied at registration.
type NewCompany struct {
	Name         string
	SIRET        string
	Address      string
	ShareCapital string
	LegalForm    string
}

// NewUser carries everything the store needs to persist a registration:
// user, owned company and initial role, written as one atomic unit.
type NewUser struct {
	Email        string
	Phone        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         RoleName
	Company      NewCompany
}

// UserUpdate mutates the fields that are non-nil.
type UserUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Company   CompanyUpdate
}

// CompanyUpdate mutates the fields that are non-nil.
type CompanyUpdate struct {
	Name         *string
	SIRET        *string
	Address      *string
	ShareCapital *string
	LegalForm    *string
}

// Store describes persistence operations required by the identity
// subsystem. Implementations must back email and phone with unique
// constraints so concurrent duplicate registrations yield exactly one
// success, and must roll back the whole registration if any of its writes
// fail.
type Store interface {
	// EnsureRole looks up a role by canonical name and creates it if
	// absent. Safe to call repeatedly and from concurrently starting
	// instances.
	EnsureRole(ctx context.Context, name RoleName, shortName string) (Role, error)
	// FindRole returns ErrNotFound for names outside the catalog.
	FindRole(ctx context.Context, name RoleName) (Role, error)

	// CreateUserWithCompany persists user, company and role assignment in
	// one transaction. Returns ErrDuplicateIdentity on an email or phone
	// collision and ErrRoleMissing when the requested role was never
	// bootstrapped; no partial state survives either failure.
	CreateUserWithCompany(ctx context.Context, nu NewUser) (User, error)

	// FindUser loads a user by id or email, roles and company id included.
	FindUser(ctx context.Context, target Identity) (User, error)
	// FindUserByPhone supports the registration duplicate pre-check.
	FindUserByPhone(ctx context.Context, phone string) (User, error)
	// FindCompany loads a company by id.
	FindCompany(ctx context.Context, id int64) (Company, error)

	// UpdateUserWithCompany applies user and company changes in one
	// transaction. Phone collisions map to ErrDuplicateIdentity.
	UpdateUserWithCompany(ctx context.Context, target Identity, upd UserUpdate) (User, error)
}
