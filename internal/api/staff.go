package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/housing-backoffice/internal/audit"
	"github.com/nerrad567/housing-backoffice/internal/auth"
)

// createStaffRequest is the request body for POST /staff.
type createStaffRequest struct {
	Email       string                `json:"email"`
	Password    string                `json:"password"`
	Name        string                `json:"name"`
	Permissions auth.StaffPermissions `json:"permissions"`
}

// handleListStaff lists staff owned by the caller; Admins see all staff.
func (s *Server) handleListStaff(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context()) //nolint:errcheck // authenticate guarantees claims

	staff, err := s.auth.ListStaff(r.Context(), claims.Principal())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if staff == nil {
		staff = []auth.StaffAccount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"staff": staff,
		"count": len(staff),
	})
}

// handleCreateStaff creates a staff account owned by the caller.
func (s *Server) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context()) //nolint:errcheck // authenticate guarantees claims

	var req createStaffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	acct, err := s.auth.CreateStaff(r.Context(), claims.Principal(), auth.StaffRequest{
		Email:       req.Email,
		Password:    req.Password,
		Name:        req.Name,
		Permissions: req.Permissions,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.record(r, staffEvent(audit.ActionStaffCreate, claims, acct.ID))
	writeJSON(w, http.StatusCreated, acct)
}

// handleUpdateStaffPermissions replaces a staff account's permission set.
func (s *Server) handleUpdateStaffPermissions(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context()) //nolint:errcheck // authenticate guarantees claims
	id := chi.URLParam(r, "id")

	var perms auth.StaffPermissions
	if err := decodeJSON(r, &perms); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	acct, err := s.auth.UpdateStaffPermissions(r.Context(), claims.Principal(), id, perms)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	e := staffEvent(audit.ActionStaffPermissions, claims, id)
	granted := make([]string, 0, len(perms.Granted()))
	for _, c := range perms.Granted() {
		granted = append(granted, c.String())
	}
	e.Details["granted"] = granted
	s.record(r, e)

	writeJSON(w, http.StatusOK, acct)
}

// handleDeleteStaff soft-deletes a staff account.
func (s *Server) handleDeleteStaff(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context()) //nolint:errcheck // authenticate guarantees claims
	id := chi.URLParam(r, "id")

	if err := s.auth.DeleteStaff(r.Context(), claims.Principal(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.record(r, staffEvent(audit.ActionStaffDelete, claims, id))
	w.WriteHeader(http.StatusNoContent)
}

func staffEvent(action audit.Action, claims *auth.Claims, staffID string) audit.Event {
	return audit.Event{
		Action:        action,
		Outcome:       audit.OutcomeSuccess,
		PrincipalID:   claims.Subject,
		PrincipalKind: string(claims.Kind),
		Details:       map[string]any{"staffId": staffID},
	}
}
