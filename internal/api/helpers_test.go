package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/housing-backoffice/internal/audit"
	"github.com/nerrad567/housing-backoffice/internal/auth"
	"github.com/nerrad567/housing-backoffice/internal/infrastructure/config"
	"github.com/nerrad567/housing-backoffice/internal/infrastructure/database"
	"github.com/nerrad567/housing-backoffice/internal/infrastructure/logging"
	"github.com/nerrad567/housing-backoffice/internal/records"
	"github.com/nerrad567/housing-backoffice/migrations"
)

const (
	testSecret   = "test-secret-key-at-least-32-characters-long"
	testPassword = "correct-horse-battery"
)

// captureRecorder keeps every audit event the server emits.
type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureRecorder) Record(e audit.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return true
}

// find returns the recorded events for action.
func (c *captureRecorder) find(action audit.Action) []audit.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []audit.Event
	for _, e := range c.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// fixture is a server backed by a fresh SQLite database.
type fixture struct {
	srv       *Server
	handler   http.Handler
	svc       *auth.Service
	primaries *auth.SQLitePrimaryRepository
	staff     *auth.SQLiteStaffRepository
	store     *records.SQLiteStore
	auditRepo *audit.SQLiteRepository
	recorder  *captureRecorder
}

type fixtureOption func(*Deps)

func withRateLimit(cfg config.RateLimitConfig) fixtureOption {
	return func(d *Deps) { d.RateLimit = cfg }
}

func withChecks(checks map[string]HealthChecker) fixtureOption {
	return func(d *Deps) { d.Checks = checks }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	db, err := database.Open(t.Context(), database.Config{
		Path:        filepath.Join(t.TempDir(), "api-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(t.Context(), migrations.FS); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	log := logging.Discard()
	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	f := &fixture{
		primaries: auth.NewPrimaryRepository(db.DB),
		staff:     auth.NewStaffRepository(db.DB),
		store:     records.NewSQLiteStore(db.DB),
		auditRepo: audit.NewSQLiteRepository(db.DB),
		recorder:  &captureRecorder{},
	}
	f.svc = auth.NewService(f.primaries, f.staff, tokens, log.Logger)

	deps := Deps{
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   log,
		Auth:     f.svc,
		Records:  f.store,
		Audit:    f.auditRepo,
		Recorder: f.recorder,
		Version:  "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	f.srv, err = New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.handler = f.srv.Handler()
	return f
}

// primary creates a primary account and returns it with a valid token.
func (f *fixture) primary(t *testing.T, email string, role auth.Role) (*auth.PrimaryAccount, string) {
	t.Helper()

	acct, err := f.svc.Register(t.Context(), auth.RegisterRequest{
		Email: email, Password: testPassword, Name: email, Role: role,
	})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", email, err)
	}
	issued, err := f.svc.Tokens().Issue(auth.Subject{ID: acct.ID, Role: role, Kind: auth.KindPrimary})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return acct, issued.Token
}

// staffMember creates a staff account owned by ownerID and returns it with
// a valid token.
func (f *fixture) staffMember(t *testing.T, ownerID, email string, perms auth.StaffPermissions) (*auth.StaffAccount, string) {
	t.Helper()

	acct, err := f.svc.CreateStaff(t.Context(),
		auth.Subject{ID: ownerID, Role: auth.RoleAdmin, Kind: auth.KindPrimary},
		auth.StaffRequest{Email: email, Password: testPassword, Name: email, Permissions: perms},
	)
	if err != nil {
		t.Fatalf("CreateStaff(%s) error = %v", email, err)
	}
	issued, err := f.svc.Tokens().Issue(auth.Subject{ID: acct.ID, Role: auth.RoleStaff, Kind: auth.KindStaff})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return acct, issued.Token
}

// do sends a request through the router. body may be nil, a string or a
// value to marshal.
func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshalling body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// decodeError parses an error body.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) Error {
	t.Helper()

	var e Error
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
	}
	return e
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
	return v
}
