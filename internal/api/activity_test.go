package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/housing-backoffice/internal/audit"
	"github.com/nerrad567/housing-backoffice/internal/auth"
)

func TestListActivity(t *testing.T) {
	f := newFixture(t)
	admin, token := f.primary(t, "admin@example.com", auth.RoleAdmin)

	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	for i, e := range []audit.Event{
		{Action: audit.ActionLogin, Outcome: audit.OutcomeFailure},
		{Action: audit.ActionLogin, Outcome: audit.OutcomeSuccess, PrincipalID: admin.ID},
		{Action: audit.ActionStaffCreate, Outcome: audit.OutcomeSuccess, PrincipalID: admin.ID},
	} {
		e.Time = base.Add(time.Duration(i) * time.Minute)
		if err := f.auditRepo.Create(t.Context(), &e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	rec := f.do(t, http.MethodGet, "/api/v1/activity", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody[audit.ListResult](t, rec); got.Total != 3 {
		t.Errorf("total = %d, want 3", got.Total)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/activity?action=login&principal_id="+admin.ID, token, nil)
	got := decodeBody[audit.ListResult](t, rec)
	if got.Total != 1 || got.Events[0].Outcome != audit.OutcomeSuccess {
		t.Errorf("filtered = %+v", got)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/activity?limit=1&offset=1", token, nil)
	got = decodeBody[audit.ListResult](t, rec)
	if got.Limit != 1 || got.Offset != 1 || len(got.Events) != 1 {
		t.Errorf("paged = %+v", got)
	}
}

func TestTicketStore(t *testing.T) {
	ts := newTicketStore()
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return now }
	sub := auth.Subject{ID: "pri-1", Role: auth.RoleAdmin, Kind: auth.KindPrimary}

	ticket, err := ts.issue(sub)
	if err != nil {
		t.Fatalf("issue() error = %v", err)
	}
	if len(ticket) != 2*ticketBytes {
		t.Errorf("ticket length = %d", len(ticket))
	}

	got, ok := ts.consume(ticket)
	if !ok || got != sub {
		t.Fatalf("consume() = %+v, %v", got, ok)
	}
	if _, ok := ts.consume(ticket); ok {
		t.Error("ticket must be single-use")
	}

	expiring, _ := ts.issue(sub) //nolint:errcheck // checked above
	now = now.Add(ticketTTL)
	if _, ok := ts.consume(expiring); ok {
		t.Error("expired ticket accepted")
	}

	stale, _ := ts.issue(sub) //nolint:errcheck // checked above
	now = now.Add(2 * ticketTTL)
	ts.sweep()
	ts.mu.Lock()
	_, present := ts.tickets[stale]
	ts.mu.Unlock()
	if present {
		t.Error("sweep() should drop expired tickets")
	}
}

func TestActivityTicket_RequiresActivityPage(t *testing.T) {
	f := newFixture(t)
	_, agentToken := f.primary(t, "agent@example.com", auth.RoleManagingAgent)
	_, adminToken := f.primary(t, "admin@example.com", auth.RoleAdmin)

	if rec := f.do(t, http.MethodPost, "/api/v1/activity/ticket", agentToken, nil); rec.Code != http.StatusForbidden {
		t.Errorf("agent status = %d, want 403", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/activity/ticket", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["ticket"] == "" || body["expiresIn"] != float64(60) {
		t.Errorf("body = %v", body)
	}
}

func TestActivityWebSocket(t *testing.T) {
	f := newFixture(t)
	_, token := f.primary(t, "admin@example.com", auth.RoleAdmin)

	ts := httptest.NewServer(f.handler)
	t.Cleanup(ts.Close)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/activity/ws"

	t.Run("no ticket", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err == nil {
			t.Fatal("Dial() without ticket should fail")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("response = %v", resp)
		}
	})

	rec := f.do(t, http.MethodPost, "/api/v1/activity/ticket", token, nil)
	ticket := decodeBody[map[string]any](t, rec)["ticket"].(string)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?ticket="+ticket, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck // test cleanup

	deadline := time.Now().Add(2 * time.Second)
	for f.srv.Hub().ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sink := audit.NewHubSink(f.srv.Hub())
	emit := func(id string, action audit.Action, outcome audit.Outcome) {
		sink.Write(t.Context(), audit.Event{ID: id, Action: action, Outcome: outcome}) //nolint:errcheck // never fails
	}

	emit("aud-42", audit.ActionLogin, audit.OutcomeFailure)
	msg := readFeed(t, conn)
	if msg.Type != FeedTypeEvent || msg.EventType != audit.MessageTypeAudit || feedEvent(t, msg).ID != "aud-42" {
		t.Errorf("message = %+v", msg)
	}

	t.Run("outcome filter", func(t *testing.T) {
		sendFeed(t, conn, `{"type":"filter","id":"f1","payload":{"outcomes":["failure"]}}`)
		if ack := readFeed(t, conn); ack.Type != FeedTypeAck || ack.ID != "f1" {
			t.Fatalf("filter reply = %+v", ack)
		}

		emit("aud-43", audit.ActionLogin, audit.OutcomeSuccess)
		emit("aud-44", audit.ActionLogin, audit.OutcomeFailure)
		if got := feedEvent(t, readFeed(t, conn)).ID; got != "aud-44" {
			t.Errorf("first delivered event = %q, want aud-44", got)
		}
	})

	t.Run("ping", func(t *testing.T) {
		sendFeed(t, conn, `{"type":"ping","id":"p1"}`)
		if pong := readFeed(t, conn); pong.Type != FeedTypePong || pong.ID != "p1" {
			t.Errorf("ping reply = %+v", pong)
		}
	})

	t.Run("unknown message", func(t *testing.T) {
		sendFeed(t, conn, `{"type":"subscribe","id":"u1"}`)
		if reply := readFeed(t, conn); reply.Type != FeedTypeError || reply.ID != "u1" {
			t.Errorf("unknown type reply = %+v", reply)
		}
	})

	t.Run("query filter", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/activity/ticket", token, nil)
		second := decodeBody[map[string]any](t, rec)["ticket"].(string)
		q := url.Values{"ticket": {second}, "action": {string(audit.ActionStaffCreate)}}

		staffConn, _, err := websocket.DefaultDialer.Dial(wsURL+"?"+q.Encode(), nil)
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer staffConn.Close() //nolint:errcheck // test cleanup

		deadline := time.Now().Add(2 * time.Second)
		for f.srv.Hub().ClientCount() < 2 {
			if time.Now().After(deadline) {
				t.Fatal("second client never registered with hub")
			}
			time.Sleep(5 * time.Millisecond)
		}

		emit("aud-50", audit.ActionLogin, audit.OutcomeSuccess)
		emit("aud-51", audit.ActionStaffCreate, audit.OutcomeSuccess)
		if got := feedEvent(t, readFeed(t, staffConn)).ID; got != "aud-51" {
			t.Errorf("first delivered event = %q, want aud-51", got)
		}
	})

	t.Run("ticket reuse", func(t *testing.T) {
		if _, _, err := websocket.DefaultDialer.Dial(wsURL+"?ticket="+ticket, nil); err == nil {
			t.Error("a consumed ticket must not open a second connection")
		}
	})
}

func TestFeedFilter_Match(t *testing.T) {
	failedLogin := audit.Event{Action: audit.ActionLogin, Outcome: audit.OutcomeFailure}

	tests := []struct {
		name   string
		filter FeedFilter
		want   bool
	}{
		{"empty matches all", FeedFilter{}, true},
		{"action match", FeedFilter{Actions: []audit.Action{audit.ActionLogin}}, true},
		{"action miss", FeedFilter{Actions: []audit.Action{audit.ActionStaffCreate}}, false},
		{"outcome match", FeedFilter{Outcomes: []audit.Outcome{audit.OutcomeSuccess, audit.OutcomeFailure}}, true},
		{"outcome miss", FeedFilter{Outcomes: []audit.Outcome{audit.OutcomeSuccess}}, false},
		{"both must match", FeedFilter{
			Actions:  []audit.Action{audit.ActionLogin},
			Outcomes: []audit.Outcome{audit.OutcomeSuccess},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(failedLogin); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func sendFeed(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
}

func readFeed(t *testing.T, conn *websocket.Conn) FeedMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg FeedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decoding message: %v", err)
	}
	return msg
}

func feedEvent(t *testing.T, msg FeedMessage) audit.Event {
	t.Helper()
	var e audit.Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		t.Fatalf("decoding payload of %+v: %v", msg, err)
	}
	return e
}
