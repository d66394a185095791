// Smoke test against a running API instance: register a throwaway
// account, log in, read the profile back and verify the pieces line up.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"dyinvoice.org/internal/client"
)

func main() {
	base := os.Getenv("DYINVOICE_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	c := client.New(base)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Healthy(ctx); err != nil {
		log.Fatalf("health check %s: %v", base, err)
	}

	suffix := rand.Int63()
	email := fmt.Sprintf("smoke-%d@example.com", suffix)
	phone := fmt.Sprintf("+3360000%06d", suffix%1_000_000)
	password := fmt.Sprintf("smoke-pass-%d", suffix)

	created, err := c.Register(ctx, client.Registration{
		Email:     email,
		Phone:     phone,
		Password:  password,
		FirstName: "Smoke",
		LastName:  "Check",
		Company:   client.Company{Name: fmt.Sprintf("Smoke Co %d", suffix)},
	})
	if err != nil {
		log.Fatalf("register: %v", err)
	}
	if created.ID == 0 || created.Company.ID == 0 {
		log.Fatalf("registration returned incomplete profile: %+v", created)
	}

	token, expiresAt, err := c.Login(ctx, email, password)
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	if token == "" || !expiresAt.After(time.Now()) {
		log.Fatalf("login returned unusable token (expires %v)", expiresAt)
	}

	profile, err := c.Profile(ctx, email)
	if err != nil {
		log.Fatalf("profile: %v", err)
	}
	if profile.ID != created.ID || profile.Company.ID != created.Company.ID {
		log.Fatalf("profile mismatch: got %+v, registered %+v", profile, created)
	}

	fmt.Printf("✅ api smoke test passed: user=%d company=%d\n", profile.ID, profile.Company.ID)
}
