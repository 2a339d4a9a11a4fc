package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/housing-backoffice/internal/audit"
	"github.com/nerrad567/housing-backoffice/internal/auth"
)

const (
	// ticketTTL is how long an activity feed ticket stays valid.
	ticketTTL = 60 * time.Second

	// ticketBytes is the number of random bytes in a ticket.
	ticketBytes = 32
)

// ticketStore holds pending activity feed tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
	now     func() time.Time
}

type ticketEntry struct {
	principal auth.Subject
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{
		tickets: make(map[string]ticketEntry),
		now:     time.Now,
	}
}

// issue creates a ticket bound to the given principal.
func (ts *ticketStore) issue(principal auth.Subject) (string, error) {
	b := make([]byte, ticketBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	ticket := hex.EncodeToString(b)

	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{principal: principal, expiresAt: ts.now().Add(ticketTTL)}
	ts.mu.Unlock()
	return ticket, nil
}

// consume validates and removes a ticket.
func (ts *ticketStore) consume(ticket string) (auth.Subject, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return auth.Subject{}, false
	}
	delete(ts.tickets, ticket)

	if !ts.now().Before(entry.expiresAt) {
		return auth.Subject{}, false
	}
	return entry.principal, true
}

func (ts *ticketStore) sweep() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	for ticket, entry := range ts.tickets {
		if !now.Before(entry.expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

// cleanLoop sweeps expired tickets until ctx is cancelled.
func (ts *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts.sweep()
		}
	}
}

// handleListActivity returns the audit trail.
//
// Query parameters:
//   - action: filter by action (login, register, staff_create, ...)
//   - outcome: filter by outcome (success, failure, denied)
//   - principal_id: filter by acting principal
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:      audit.Action(q.Get("action")),
		Outcome:     audit.Outcome(q.Get("outcome")),
		PrincipalID: q.Get("principal_id"),
		Limit:       queryInt(q.Get("limit")),
		Offset:      queryInt(q.Get("offset")),
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing activity failed", "error", err)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleActivityTicket issues a single-use ticket for the activity feed
// WebSocket, so the token never appears in a URL.
func (s *Server) handleActivityTicket(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context()) //nolint:errcheck // authenticate guarantees claims

	ticket, err := s.tickets.issue(claims.Principal())
	if err != nil {
		s.logger.Error("generating activity ticket failed", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":    ticket,
		"expiresIn": int(ticketTTL.Seconds()),
	})
}

// handleActivityWebSocket upgrades to the live activity feed. The caller
// authenticates with a ticket from POST /api/v1/activity/ticket. Repeated
// action and outcome query parameters set the initial feed filter; a
// "filter" message replaces it later.
func (s *Server) handleActivityWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, msgInvalidToken)
		return
	}
	principal, ok := s.tickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, msgInvalidToken)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newFeedClient(s.hub, conn, principal, filterFromQuery(r))
	s.hub.add(client)

	go client.writeLoop()
	go client.readLoop()
}
