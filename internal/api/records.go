package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/housing-backoffice/internal/audit"
	"github.com/nerrad567/housing-backoffice/internal/auth"
	"github.com/nerrad567/housing-backoffice/internal/records"
)

// recordScope is the set of owners whose records a caller may reach.
type recordScope struct {
	owner string // the caller's own or owning primary account
	all   bool   // admins reach every owner
}

func (sc recordScope) allows(rec *records.Record) bool {
	return sc.all || rec.OwnerID == sc.owner
}

// scope re-reads the caller so an owner change or deactivation applies to
// tokens already issued.
func (s *Server) scope(r *http.Request) (*auth.Claims, recordScope, error) {
	claims, _ := auth.ClaimsFromContext(r.Context()) //nolint:errcheck // authenticate guarantees claims

	lookup, err := s.auth.Current(r.Context(), claims)
	if err != nil {
		return claims, recordScope{}, err
	}
	return claims, recordScope{owner: lookup.OwnerID(), all: claims.Role == auth.RoleAdmin}, nil
}

// scopedRecord loads id from c, answering 404 for records outside the
// caller's scope so their existence is not revealed.
func (s *Server) scopedRecord(w http.ResponseWriter, r *http.Request, c records.Collection) (*auth.Claims, *records.Record, bool) {
	claims, sc, err := s.scope(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, nil, false
	}
	rec, err := s.records.Get(r.Context(), c, chi.URLParam(r, "id"))
	if err == nil && !sc.allows(rec) {
		err = records.ErrRecordNotFound
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, nil, false
	}
	return claims, rec, true
}

// handleListRecords returns a page of records in c. Admins see every
// owner's records; everyone else sees their owner's.
//
// Query parameters:
//   - added_by: only records created by this principal id
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListRecords(c records.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, sc, err := s.scope(r)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		q := r.URL.Query()
		filter := records.Filter{
			Collection: c,
			AddedBy:    q.Get("added_by"),
			Limit:      queryInt(q.Get("limit")),
			Offset:     queryInt(q.Get("offset")),
		}
		if !sc.all {
			filter.OwnerID = sc.owner
		}

		result, err := s.records.List(r.Context(), filter)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleGetRecord(c records.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, rec, ok := s.scopedRecord(w, r, c); ok {
			writeJSON(w, http.StatusOK, rec)
		}
	}
}

// handleCreateRecord stores the request body as a new record attributed
// to the caller and owned by the caller's owning primary account.
func (s *Server) handleCreateRecord(c records.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, sc, err := s.scope(r)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		body, ok := readRecordBody(w, r)
		if !ok {
			return
		}

		rec := &records.Record{
			Collection:  c,
			Body:        body,
			AddedBy:     claims.Subject,
			AddedByRole: claims.Role,
			OwnerID:     sc.owner,
		}
		if err := s.records.Create(r.Context(), rec); err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		s.record(r, recordEvent(audit.ActionRecordCreate, claims, rec.Collection, rec.ID))
		writeJSON(w, http.StatusCreated, rec)
	}
}

func (s *Server) handleUpdateRecord(c records.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, existing, ok := s.scopedRecord(w, r, c)
		if !ok {
			return
		}

		body, ok := readRecordBody(w, r)
		if !ok {
			return
		}

		rec, err := s.records.Update(r.Context(), c, existing.ID, body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		s.record(r, recordEvent(audit.ActionRecordUpdate, claims, c, existing.ID))
		writeJSON(w, http.StatusOK, rec)
	}
}

// signOutRequest is the optional body of a sign-out. An empty body signs
// out today (UTC).
type signOutRequest struct {
	SignOutDate string `json:"signOutDate"`
}

// handleSignOutRecord records the date a tenant moved out.
func (s *Server) handleSignOutRecord(c records.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, existing, ok := s.scopedRecord(w, r, c)
		if !ok {
			return
		}

		on, ok := readSignOutDate(w, r)
		if !ok {
			return
		}

		rec, err := s.records.SignOut(r.Context(), c, existing.ID, on)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		e := recordEvent(audit.ActionRecordUpdate, claims, c, existing.ID)
		e.Details["signOutDate"] = rec.SignOutDate
		s.record(r, e)
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleDeleteRecord(c records.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, existing, ok := s.scopedRecord(w, r, c)
		if !ok {
			return
		}

		if err := s.records.SoftDelete(r.Context(), c, existing.ID); err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		s.record(r, recordEvent(audit.ActionRecordDelete, claims, c, existing.ID))
		w.WriteHeader(http.StatusNoContent)
	}
}

// readSignOutDate parses the optional sign-out body, writing a 400 on a
// malformed body or date.
func readSignOutDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "could not read request body")
		return time.Time{}, false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return time.Now().UTC(), true
	}

	var req signOutRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return time.Time{}, false
	}
	if req.SignOutDate == "" {
		return time.Now().UTC(), true
	}
	on, err := time.Parse(time.DateOnly, req.SignOutDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "signOutDate must be a YYYY-MM-DD date")
		return time.Time{}, false
	}
	return on, true
}

// readRecordBody reads the raw JSON body, writing a 400 on failure.
func readRecordBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "could not read request body")
		return nil, false
	}
	if err := records.ValidateBody(body); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return nil, false
	}
	return body, true
}

func recordEvent(action audit.Action, claims *auth.Claims, c records.Collection, id string) audit.Event {
	return audit.Event{
		Action:        action,
		Outcome:       audit.OutcomeSuccess,
		PrincipalID:   claims.Subject,
		PrincipalKind: string(claims.Kind),
		Details:       map[string]any{"collection": string(c), "recordId": id},
	}
}

// queryInt parses a non-negative query integer, returning 0 when absent or
// invalid so the store default applies.
func queryInt(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
