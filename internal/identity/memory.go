package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. It backs
// the HTTP tests and local development without Postgres; the single mutex
// gives the same one-winner guarantee the database uniqueness constraints
// provide.
type InMemory struct {
	mu        sync.Mutex
	roles     map[RoleName]Role
	users     map[int64]*User
	byEmail   map[string]int64
	byPhone   map[string]int64
	companies map[int64]*Company
	nextID    int64
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store. The role catalog starts empty and
// must be bootstrapped like any other backend.
func NewInMemory() *InMemory {
	return &InMemory{
		roles:     make(map[RoleName]Role),
		users:     make(map[int64]*User),
		byEmail:   make(map[string]int64),
		byPhone:   make(map[string]int64),
		companies: make(map[int64]*Company),
	}
}

func (s *InMemory) next() int64 {
	s.nextID++
	return s.nextID
}

func (s *InMemory) EnsureRole(ctx context.Context, name RoleName, shortName string) (Role, error) {
	if !name.Valid() {
		return Role{}, fmt.Errorf("%w: unknown role %s", ErrInvalidInput, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if role, ok := s.roles[name]; ok {
		return role, nil
	}
	role := Role{ID: s.next(), Name: name, ShortName: shortName, CreatedAt: time.Now().UTC()}
	s.roles[name] = role
	return role, nil
}

func (s *InMemory) FindRole(ctx context.Context, name RoleName) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[name]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (s *InMemory) CreateUserWithCompany(ctx context.Context, nu NewUser) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[nu.Role]; !ok {
		return User{}, ErrRoleMissing
	}
	email := strings.ToLower(nu.Email)
	if _, ok := s.byEmail[email]; ok {
		return User{}, fmt.Errorf("%w: email", ErrDuplicateIdentity)
	}
	if _, ok := s.byPhone[nu.Phone]; ok {
		return User{}, fmt.Errorf("%w: phone", ErrDuplicateIdentity)
	}

	now := time.Now().UTC()
	user := &User{
		ID:           s.next(),
		Email:        email,
		Phone:        nu.Phone,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		PasswordHash: nu.PasswordHash,
		Roles:        []RoleName{nu.Role},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	company := &Company{
		ID:           s.next(),
		OwnerID:      user.ID,
		Name:         nu.Company.Name,
		SIRET:        nu.Company.SIRET,
		Address:      nu.Company.Address,
		ShareCapital: nu.Company.ShareCapital,
		LegalForm:    nu.Company.LegalForm,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	user.CompanyID = company.ID

	s.users[user.ID] = user
	s.byEmail[email] = user.ID
	s.byPhone[user.Phone] = user.ID
	s.companies[company.ID] = company
	return copyUser(user), nil
}

func (s *InMemory) FindUser(ctx context.Context, target Identity) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.lookup(target)
	if !ok {
		return User{}, ErrNotFound
	}
	return copyUser(user), nil
}

func (s *InMemory) FindUserByPhone(ctx context.Context, phone string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return User{}, ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

func (s *InMemory) FindCompany(ctx context.Context, id int64) (Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	company, ok := s.companies[id]
	if !ok {
		return Company{}, ErrNotFound
	}
	return *company, nil
}

func (s *InMemory) UpdateUserWithCompany(ctx context.Context, target Identity, upd UserUpdate) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.lookup(target)
	if !ok {
		return User{}, ErrNotFound
	}
	if upd.Phone != nil && *upd.Phone != user.Phone {
		if _, taken := s.byPhone[*upd.Phone]; taken {
			return User{}, fmt.Errorf("%w: phone", ErrDuplicateIdentity)
		}
		delete(s.byPhone, user.Phone)
		user.Phone = *upd.Phone
		s.byPhone[user.Phone] = user.ID
	}
	if upd.FirstName != nil {
		user.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		user.LastName = *upd.LastName
	}
	user.UpdatedAt = time.Now().UTC()

	company := s.companies[user.CompanyID]
	if company != nil {
		if upd.Company.Name != nil {
			company.Name = *upd.Company.Name
		}
		if upd.Company.SIRET != nil {
			company.SIRET = *upd.Company.SIRET
		}
		if upd.Company.Address != nil {
			company.Address = *upd.Company.Address
		}
		if upd.Company.ShareCapital != nil {
			company.ShareCapital = *upd.Company.ShareCapital
		}
		if upd.Company.LegalForm != nil {
			company.LegalForm = *upd.Company.LegalForm
		}
		company.UpdatedAt = user.UpdatedAt
	}
	return copyUser(user), nil
}

func (s *InMemory) lookup(target Identity) (*User, bool) {
	if target.ByID() {
		user, ok := s.users[target.ID]
		return user, ok
	}
	id, ok := s.byEmail[strings.ToLower(target.Email)]
	if !ok {
		return nil, false
	}
	return s.users[id], true
}

func copyUser(u *User) User {
	out := *u
	out.Roles = append([]RoleName(nil), u.Roles...)
	return out
}
