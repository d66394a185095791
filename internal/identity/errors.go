package identity

import "errors"

var (
	// ErrInvalidInput reports a malformed or missing field; the operation
	// was not attempted.
	ErrInvalidInput = errors.New("identity: invalid input")
	// ErrDuplicateIdentity reports an email or phone collision during
	// registration. The failed attempt leaves no partial state behind.
	ErrDuplicateIdentity = errors.New("identity: email or phone already registered")
	// ErrNotFound reports an absent user, company or role.
	ErrNotFound = errors.New("identity: not found")
	// ErrInvalidCredentials is returned for both unknown email and wrong
	// password so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrInvalidToken reports a malformed token or a bad signature.
	ErrInvalidToken = errors.New("identity: invalid token")
	// ErrExpiredToken reports a well-formed token past its expiry. Kept
	// distinct from ErrInvalidToken so clients can prompt re-login.
	ErrExpiredToken = errors.New("identity: token expired")
	// ErrRoleMissing reports that the role catalog was never bootstrapped.
	ErrRoleMissing = errors.New("identity: role catalog missing")
	// ErrUnavailable reports a storage timeout or connection failure; the
	// call is safe to retry with backoff.
	ErrUnavailable = errors.New("identity: storage unavailable")
)
