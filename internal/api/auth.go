package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/housing-backoffice/internal/audit"
	"github.com/nerrad567/housing-backoffice/internal/auth"
)

// loginRequest is the request body for POST /login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /login.
type loginResponse struct {
	Token         string    `json:"token"`
	PrincipalKind auth.Kind `json:"principalKind"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// registerRequest is the request body for POST /register.
type registerRequest struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Name     string    `json:"name"`
	Role     auth.Role `json:"role"`
}

// meResponse describes the caller.
type meResponse struct {
	Kind        auth.Kind              `json:"kind"`
	Role        auth.Role              `json:"role"`
	RoleName    string                 `json:"roleName"`
	Pages       []auth.Page            `json:"pages"`
	Account     any                    `json:"account"`
	Permissions *auth.StaffPermissions `json:"permissions,omitempty"`
}

// handleLogin authenticates a primary or staff account and issues a token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	result, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			s.logger.Info("login failed", "source_ip", clientIP(r))
			s.record(r, audit.Event{Action: audit.ActionLogin, Outcome: audit.OutcomeFailure})
			writeUnauthorized(w, msgBadCredentials)
			return
		}
		s.record(r, audit.Event{
			Action:  audit.ActionLogin,
			Outcome: audit.OutcomeFailure,
			Details: map[string]any{"reason": "internal"},
		})
		s.writeServiceError(w, r, err)
		return
	}

	sub := result.Principal.Subject()
	s.logger.Info("login succeeded", "principal_id", sub.ID, "principal_kind", sub.Kind)
	s.record(r, audit.Event{
		Action:        audit.ActionLogin,
		Outcome:       audit.OutcomeSuccess,
		PrincipalID:   sub.ID,
		PrincipalKind: string(sub.Kind),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:         result.Token,
		PrincipalKind: sub.Kind,
		ExpiresAt:     result.ExpiresAt,
	})
}

// handleRegister creates a primary account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Role == auth.RoleAdmin && !s.allowAdminRegistration {
		s.record(r, audit.Event{
			Action:  audit.ActionRegister,
			Outcome: audit.OutcomeFailure,
			Details: map[string]any{"reason": "admin_registration_disabled"},
		})
		writeForbidden(w)
		return
	}

	acct, err := s.auth.Register(r.Context(), auth.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
	})
	if err != nil {
		if errors.Is(err, auth.ErrConflictingIdentity) {
			s.record(r, audit.Event{
				Action:  audit.ActionRegister,
				Outcome: audit.OutcomeFailure,
				Details: map[string]any{"reason": "email_exists"},
			})
		}
		s.writeServiceError(w, r, err)
		return
	}

	s.record(r, audit.Event{
		Action:        audit.ActionRegister,
		Outcome:       audit.OutcomeSuccess,
		PrincipalID:   acct.ID,
		PrincipalKind: string(auth.KindPrimary),
		Details:       map[string]any{"role": acct.Role.String()},
	})
	writeJSON(w, http.StatusCreated, acct)
}

// handleMe returns the caller's account, pages and, for staff, permissions.
// A token whose principal was deleted or deactivated is rejected.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context()) //nolint:errcheck // authenticate guarantees claims

	lookup, err := s.auth.Current(r.Context(), claims)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	sub := lookup.Subject()
	resp := meResponse{
		Kind:     sub.Kind,
		Role:     sub.Role,
		RoleName: sub.Role.String(),
		Pages:    s.pages.PagesFor(sub.Role),
	}
	if lookup.Primary != nil {
		resp.Account = lookup.Primary
	} else {
		resp.Account = lookup.Staff
		perms := lookup.Staff.Permissions
		resp.Permissions = &perms
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePages returns the pages the caller's role may open.
func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context()) //nolint:errcheck // authenticate guarantees claims
	writeJSON(w, http.StatusOK, map[string]any{
		"role":  claims.Role,
		"pages": s.pages.PagesFor(claims.Role),
	})
}

// handleListUsers lists primary accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.auth.ListPrimaries(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []auth.PrimaryAccount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}
