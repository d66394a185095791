package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service implements registration, authentication and the profile use
// cases on top of a Store and a token Codec.
type Service struct {
	store Store
	codec *Codec
}

// NewService constructs a Service.
func NewService(store Store, codec *Codec) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity: store is required")
	}
	if codec == nil {
		return nil, errors.New("identity: token codec is required")
	}
	return &Service{store: store, codec: codec}, nil
}

// Codec exposes the token codec for transport-layer verification.
func (s *Service) Codec() *Codec { return s.codec }

// Bootstrap ensures the fixed role vocabulary exists. It runs once,
// synchronously, before the service accepts traffic; a failure here must
// keep the process from serving.
func (s *Service) Bootstrap(ctx context.Context) error {
	for _, name := range AllRoles {
		if _, err := s.store.EnsureRole(ctx, name, name.ShortName()); err != nil {
			return fmt.Errorf("ensure role %s: %w", name, err)
		}
	}
	return nil
}

// CompanyDetails are the company fields collected at registration.
type CompanyDetails struct {
	Name         string
	SIRET        string
	Address      string
	ShareCapital string
	LegalForm    string
}

// RegisterRequest carries a registration submission.
type RegisterRequest struct {
	Email     string
	Phone     string
	Password  string
	FirstName string
	LastName  string
	Company   CompanyDetails
}

// Register creates a user together with its company and default role as
// one atomic unit. Duplicate email or phone fails with
// ErrDuplicateIdentity and leaves nothing behind.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (ProfileView, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return ProfileView{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Password) == "" {
		return ProfileView{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return ProfileView{}, fmt.Errorf("%w: phone is required", ErrInvalidInput)
	}
	companyName := strings.TrimSpace(req.Company.Name)
	if companyName == "" {
		return ProfileView{}, fmt.Errorf("%w: company name is required", ErrInvalidInput)
	}

	// Pre-checks give callers a clean error before the write; the unique
	// constraints inside the transaction remain the authority under
	// concurrency.
	if _, err := s.store.FindUser(ctx, Identity{Email: email}); err == nil {
		return ProfileView{}, fmt.Errorf("%w: email", ErrDuplicateIdentity)
	} else if !errors.Is(err, ErrNotFound) {
		return ProfileView{}, err
	}
	if _, err := s.store.FindUserByPhone(ctx, phone); err == nil {
		return ProfileView{}, fmt.Errorf("%w: phone", ErrDuplicateIdentity)
	} else if !errors.Is(err, ErrNotFound) {
		return ProfileView{}, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return ProfileView{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUserWithCompany(ctx, NewUser{
		Email:        email,
		Phone:        phone,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: hash,
		Role:         DefaultRole,
		Company: NewCompany{
			Name:         companyName,
			SIRET:        strings.TrimSpace(req.Company.SIRET),
			Address:      strings.TrimSpace(req.Company.Address),
			ShareCapital: strings.TrimSpace(req.Company.ShareCapital),
			LegalForm:    strings.TrimSpace(req.Company.LegalForm),
		},
	})
	if err != nil {
		return ProfileView{}, err
	}
	company, err := s.store.FindCompany(ctx, user.CompanyID)
	if err != nil {
		return ProfileView{}, err
	}
	return newProfileView(user, company), nil
}

// Login verifies credentials and issues a signed token. Unknown email and
// wrong password return the same error so accounts cannot be enumerated.
func (s *Service) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}
	user, err := s.store.FindUser(ctx, Identity{Email: email})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrInvalidCredentials
		}
		return "", time.Time{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return s.codec.Issue(user.Email, user.Roles)
}

// ProfileView is the caller-visible projection of a user and its company.
// The password hash never leaves the service.
type ProfileView struct {
	ID        int64       `json:"id"`
	Email     string      `json:"email"`
	Phone     string      `json:"phone"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Roles     []RoleName  `json:"roles"`
	Company   CompanyView `json:"company"`
}

// CompanyView is the caller-visible projection of a company.
type CompanyView struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	SIRET        string `json:"siret"`
	Address      string `json:"address,omitempty"`
	ShareCapital string `json:"shareCapital,omitempty"`
	LegalForm    string `json:"legalForm,omitempty"`
}

func newProfileView(user User, company Company) ProfileView {
	return ProfileView{
		ID:        user.ID,
		Email:     user.Email,
		Phone:     user.Phone,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Roles:     user.Roles,
		Company: CompanyView{
			ID:           company.ID,
			Name:         company.Name,
			SIRET:        company.SIRET,
			Address:      company.Address,
			ShareCapital: company.ShareCapital,
			LegalForm:    company.LegalForm,
		},
	}
}

// Profile resolves which account the caller may read and returns its view.
func (s *Service) Profile(ctx context.Context, claims *Claims, requested string) (ProfileView, error) {
	user, err := s.store.FindUser(ctx, ResolveTarget(claims, requested))
	if err != nil {
		return ProfileView{}, err
	}
	company, err := s.store.FindCompany(ctx, user.CompanyID)
	if err != nil {
		return ProfileView{}, err
	}
	return newProfileView(user, company), nil
}

// UpdateRequest mutates profile and company fields; nil fields are left
// untouched.
type UpdateRequest struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Company   CompanyUpdate
}

// UpdateProfile applies changes to the account the caller is allowed to
// act on, using the same resolution rule as Profile.
func (s *Service) UpdateProfile(ctx context.Context, claims *Claims, requested string, req UpdateRequest) (ProfileView, error) {
	if req.Phone != nil && strings.TrimSpace(*req.Phone) == "" {
		return ProfileView{}, fmt.Errorf("%w: phone cannot be empty", ErrInvalidInput)
	}
	user, err := s.store.UpdateUserWithCompany(ctx, ResolveTarget(claims, requested), UserUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Company:   req.Company,
	})
	if err != nil {
		return ProfileView{}, err
	}
	company, err := s.store.FindCompany(ctx, user.CompanyID)
	if err != nil {
		return ProfileView{}, err
	}
	return newProfileView(user, company), nil
}
