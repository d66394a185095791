// Package client is a typed Go caller for the dyinvoice HTTP API. It is
// used by the smoke command and by integration tests; the wire payloads
// mirror internal/httpapi.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api: %s (status %d, request %s)", e.Message, e.StatusCode, e.RequestID)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.StatusCode)
}

// Company mirrors the company object of profile responses and
// registration requests.
type Company struct {
	ID           int64  `json:"id,omitempty"`
	Name         string `json:"name"`
	SIRET        string `json:"siret,omitempty"`
	Address      string `json:"address,omitempty"`
	ShareCapital string `json:"shareCapital,omitempty"`
	LegalForm    string `json:"legalForm,omitempty"`
}

// Profile is the user view returned by register and profile reads.
type Profile struct {
	ID        int64    `json:"id"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
	Company   Company  `json:"company"`
}

// Registration is the payload for Register.
type Registration struct {
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	Password  string  `json:"password"`
	FirstName string  `json:"firstName,omitempty"`
	LastName  string  `json:"lastName,omitempty"`
	Company   Company `json:"company"`
}

// ProfilePatch carries partial updates; nil fields stay untouched.
type ProfilePatch struct {
	FirstName *string       `json:"firstName,omitempty"`
	LastName  *string       `json:"lastName,omitempty"`
	Phone     *string       `json:"phone,omitempty"`
	Company   *CompanyPatch `json:"company,omitempty"`
}

// CompanyPatch carries partial company updates.
type CompanyPatch struct {
	Name         *string `json:"name,omitempty"`
	SIRET        *string `json:"siret,omitempty"`
	Address      *string `json:"address,omitempty"`
	ShareCapital *string `json:"shareCapital,omitempty"`
	LegalForm    *string `json:"legalForm,omitempty"`
}

// Client calls one dyinvoice API instance. It is safe for concurrent use
// once configured; SetToken is not synchronized with in-flight calls.
type Client struct {
	base  string
	hc    *http.Client
	token string
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithToken presets the bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New constructs a Client for the given base URL.
func New(base string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token used on authenticated calls.
func (c *Client) SetToken(token string) { c.token = token }

// Register creates a user with its company and returns the created profile.
func (c *Client) Register(ctx context.Context, reg Registration) (Profile, error) {
	var out Profile
	err := c.do(ctx, http.MethodPost, "/v1/user/register", reg, &out)
	return out, err
}

// Login exchanges credentials for a bearer token and remembers it on the
// client for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	var out struct {
		AccessToken string    `json:"accessToken"`
		ExpiresAt   time.Time `json:"expiresAt"`
	}
	payload := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/v1/user/login", payload, &out); err != nil {
		return "", time.Time{}, err
	}
	c.token = out.AccessToken
	return out.AccessToken, out.ExpiresAt, nil
}

// Profile fetches a user by numeric id or email. Non-privileged tokens
// always get their own profile back.
func (c *Client) Profile(ctx context.Context, idOrEmail string) (Profile, error) {
	var out Profile
	err := c.do(ctx, http.MethodGet, "/v1/user/"+url.PathEscape(idOrEmail), nil, &out)
	return out, err
}

// UpdateProfile applies a partial update and returns the new profile.
func (c *Client) UpdateProfile(ctx context.Context, idOrEmail string, patch ProfilePatch) (Profile, error) {
	var out Profile
	err := c.do(ctx, http.MethodPut, "/v1/user/"+url.PathEscape(idOrEmail), patch, &out)
	return out, err
}

// Healthy pings the liveness endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
