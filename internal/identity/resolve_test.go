package identity

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestParseIdentity(t *testing.T) {
	cases := []struct {
		raw       string
		wantID    int64
		wantEmail string
	}{
		{"42", 42, ""},
		{" 42 ", 42, ""},
		{"owner@example.com", 0, "owner@example.com"},
		{"Owner@Example.COM", 0, "owner@example.com"},
		{"42@example.com", 0, "42@example.com"},
		{"", 0, ""},
	}
	for _, c := range cases {
		got := ParseIdentity(c.raw)
		if got.ID != c.wantID || got.Email != c.wantEmail {
			t.Fatalf("ParseIdentity(%q) = %+v, want id=%d email=%q", c.raw, got, c.wantID, c.wantEmail)
		}
		if got.ByID() != (c.wantID != 0) {
			t.Fatalf("ParseIdentity(%q).ByID() = %v", c.raw, got.ByID())
		}
	}
}

func claimsFor(subject string, roles ...string) *Claims {
	return &Claims{
		Roles:            roles,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
}

func TestResolveTargetPinsUnprivilegedCallers(t *testing.T) {
	claims := claimsFor("self@example.com", "USER")

	// Whatever the caller requests, a plain user only ever reaches
	// their own record.
	for _, requested := range []string{"self@example.com", "other@example.com", "99", ""} {
		got := ResolveTarget(claims, requested)
		if got.Email != "self@example.com" || got.ID != 0 {
			t.Fatalf("requested %q: resolved to %+v, want self", requested, got)
		}
	}
}

func TestResolveTargetHonorsPrivilegedCallers(t *testing.T) {
	for _, role := range []string{"ADMIN", "SUPER_ADMIN"} {
		claims := claimsFor("admin@example.com", role)

		got := ResolveTarget(claims, "other@example.com")
		if got.Email != "other@example.com" {
			t.Fatalf("role %s: resolved to %+v, want other@example.com", role, got)
		}
		got = ResolveTarget(claims, "77")
		if got.ID != 77 {
			t.Fatalf("role %s: resolved to %+v, want id 77", role, got)
		}
	}
}

func TestResolveTargetIgnoresUnknownRoles(t *testing.T) {
	claims := claimsFor("self@example.com", "OPERATOR", "root")
	got := ResolveTarget(claims, "other@example.com")
	if got.Email != "self@example.com" {
		t.Fatalf("unknown roles must not grant access: %+v", got)
	}
}

func TestResolveTargetNilClaims(t *testing.T) {
	got := ResolveTarget(nil, "other@example.com")
	if got.ID != 0 || got.Email != "" {
		t.Fatalf("nil claims must resolve to nothing, got %+v", got)
	}
}
