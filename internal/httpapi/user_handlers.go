package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"dyinvoice.org/internal/audit"
	"dyinvoice.org/internal/identity"
)

type companyPayload struct {
	Name         string `json:"name"`
	SIRET        string `json:"siret"`
	Address      string `json:"address"`
	ShareCapital string `json:"shareCapital"`
	LegalForm    string `json:"legalForm"`
}

type registerRequest struct {
	Email     string         `json:"email"`
	Phone     string         `json:"phone"`
	Password  string         `json:"password"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Company   companyPayload `json:"company"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type updateUserRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
	Company   struct {
		Name         *string `json:"name"`
		SIRET        *string `json:"siret"`
		Address      *string `json:"address"`
		ShareCapital *string `json:"shareCapital"`
		LegalForm    *string `json:"legalForm"`
	} `json:"company"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	view, err := a.identity.Register(r.Context(), identity.RegisterRequest{
		Email:     req.Email,
		Phone:     req.Phone,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Company: identity.CompanyDetails{
			Name:         req.Company.Name,
			SIRET:        req.Company.SIRET,
			Address:      req.Company.Address,
			ShareCapital: req.Company.ShareCapital,
			LegalForm:    req.Company.LegalForm,
		},
	})
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "identity.registered", map[string]any{
		"user_id": view.ID,
		"email":   view.Email,
	})
	writeJSON(w, http.StatusCreated, view)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, expiresAt, err := a.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "identity.login", map[string]any{
		"email": strings.ToLower(strings.TrimSpace(req.Email)),
	})
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, ExpiresAt: expiresAt})
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	requested := strings.TrimPrefix(r.URL.Path, "/v1/user/")
	requested = strings.Trim(requested, "/")
	if requested == "" || strings.Contains(requested, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	claims, ok := identity.ClaimsFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "missing bearer token")
		return
	}

	switch r.Method {
	case http.MethodGet:
		view, err := a.identity.Profile(r.Context(), claims, requested)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPut:
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		view, err := a.identity.UpdateProfile(r.Context(), claims, requested, identity.UpdateRequest{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
			Company: identity.CompanyUpdate{
				Name:         req.Company.Name,
				SIRET:        req.Company.SIRET,
				Address:      req.Company.Address,
				ShareCapital: req.Company.ShareCapital,
				LegalForm:    req.Company.LegalForm,
			},
		})
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "identity.profile.updated", map[string]any{
			"user_id": view.ID,
		})
		writeJSON(w, http.StatusOK, view)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

// handleIdentityError is the single boundary translator from the identity
// error taxonomy to HTTP statuses. Storage detail never reaches callers.
func handleIdentityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, identity.ErrDuplicateIdentity),
		errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, identity.ErrUnavailable), errors.Is(err, identity.ErrRoleMissing):
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable, retry later")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
