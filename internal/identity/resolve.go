package identity

import (
	"strconv"
	"strings"
)

// Identity pinpoints exactly one user record: either a numeric id or an
// email, never both.
type Identity struct {
	ID    int64
	Email string
}

// ByID reports whether the identity is keyed by numeric id.
func (t Identity) ByID() bool { return t.ID != 0 }

// ParseIdentity interprets a raw path value or token subject: values that
// parse as an integer are ids, everything else is treated as an email.
func ParseIdentity(raw string) Identity {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Identity{ID: id}
	}
	return Identity{Email: strings.ToLower(raw)}
}

// ResolveTarget decides which account a request may act on. Privileged
// callers (ADMIN or SUPER_ADMIN) act on the requested target; everyone
// else is pinned to the identity in their own token, and the requested
// value is ignored entirely. Every profile read and update must pass
// through here instead of trusting the path parameter.
func ResolveTarget(claims *Claims, requested string) Identity {
	if claims == nil {
		return Identity{}
	}
	if hasPrivilegedRole(claims.RoleNames()) {
		return ParseIdentity(requested)
	}
	return ParseIdentity(claims.Subject)
}

func hasPrivilegedRole(roles []RoleName) bool {
	for _, r := range roles {
		if r.Privileged() {
			return true
		}
	}
	return false
}
