package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"dyinvoice.org/internal/httpapi"
	"dyinvoice.org/internal/identity"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	codec, err := identity.NewCodec("client-test-secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc, err := identity.NewService(identity.NewInMemory(), codec)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	srv := httptest.NewServer(httpapi.New(httpapi.ReadyProbe{}, "test", svc).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestClientEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL)
	ctx := context.Background()

	if err := c.Healthy(ctx); err != nil {
		t.Fatalf("Healthy: %v", err)
	}

	created, err := c.Register(ctx, Registration{
		Email:     "ada@example.com",
		Phone:     "+33612345678",
		Password:  "s3cret-pass",
		FirstName: "Ada",
		LastName:  "Martin",
		Company:   Company{Name: "Martin Conseil", SIRET: "84235017600012"},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if created.ID == 0 || created.Company.Name != "Martin Conseil" {
		t.Fatalf("unexpected profile: %+v", created)
	}

	token, expiresAt, err := c.Login(ctx, "ada@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" || !expiresAt.After(time.Now()) {
		t.Fatalf("unexpected login result: %q %v", token, expiresAt)
	}

	got, err := c.Profile(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("profile mismatch: %d vs %d", got.ID, created.ID)
	}

	first := "Adeline"
	updated, err := c.UpdateProfile(ctx, "ada@example.com", ProfilePatch{FirstName: &first})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.FirstName != "Adeline" {
		t.Fatalf("update not applied: %+v", updated)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL)
	ctx := context.Background()

	_, err := c.Profile(ctx, "ada@example.com")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 401 {
		t.Fatalf("expected 401 without token, got %d", apiErr.StatusCode)
	}

	_, err = c.Register(ctx, Registration{Email: "bad"})
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Fatalf("expected 400 for invalid registration, got %v", err)
	}
}
