package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/housing-backoffice/internal/auth"
)

// fakeClock fires timers only when Advance moves past them.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// reasons collects OnExpired notifications.
type reasons struct {
	mu  sync.Mutex
	got []Reason
}

func (r *reasons) add(reason Reason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, reason)
}

func (r *reasons) list() []Reason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reason(nil), r.got...)
}

const (
	testSecret   = "session-test-secret-at-least-32-bytes"
	testEmail    = "agent@example.com"
	testPassword = "correct-horse-battery"
)

// fakeAPI is a minimal back office: login issues real tokens on the fake
// clock, /api/v1/auth/me accepts only tokens it has not revoked.
type fakeAPI struct {
	srv     *httptest.Server
	tokens  *auth.TokenService
	mu      sync.Mutex
	revoked map[string]bool
	seen    []string // Authorization headers received
}

func newFakeAPI(t *testing.T, clock *fakeClock, ttl time.Duration) *fakeAPI {
	t.Helper()

	tokens, err := auth.NewTokenService(testSecret, ttl, auth.WithTokenClock(clock.Now))
	require.NoError(t, err)

	api := &fakeAPI{tokens: tokens, revoked: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck // test server
		w.Header().Set("Content-Type", "application/json")
		if req.Email != testEmail || req.Password != testPassword {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"status":401,"code":"unauthorised","message":"Invalid email or password"}`) //nolint:errcheck // test server
			return
		}
		issued, err := tokens.Issue(auth.Subject{ID: "pri-7", Role: auth.RoleManagingAgent, Kind: auth.KindPrimary})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test server
			"token":         issued.Token,
			"principalKind": "primary",
			"expiresAt":     issued.ExpiresAt,
		})
	})
	mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		api.mu.Lock()
		api.seen = append(api.seen, header)
		revoked := api.revoked[strings.TrimPrefix(header, "Bearer ")]
		api.mu.Unlock()

		if _, err := tokens.Verify(strings.TrimPrefix(header, "Bearer ")); err != nil || revoked {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"kind":"primary"}`) //nolint:errcheck // test server
	})

	api.srv = httptest.NewServer(mux)
	t.Cleanup(api.srv.Close)
	return api
}

func (a *fakeAPI) revoke(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked[token] = true
}

func newTestManager(t *testing.T, api *fakeAPI, clock *fakeClock, store Store, r *reasons) *Manager {
	t.Helper()

	m, err := New(api.srv.URL, store,
		WithClock(clock),
		WithHTTPClient(api.srv.Client()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithOnExpired(r.add),
	)
	require.NoError(t, err)
	return m
}

func TestNew_Validation(t *testing.T) {
	_, err := New("not a url", NewMemoryStore())
	assert.Error(t, err)

	_, err = New("https://office.example.com", nil)
	assert.Error(t, err)

	m, err := New("https://office.example.com/", NewMemoryStore())
	require.NoError(t, err)
	assert.Equal(t, "https://office.example.com", m.base.String())
}

func TestLogin_PersistsAndArms(t *testing.T) {
	clock := newFakeClock()
	api := newFakeAPI(t, clock, 7*24*time.Hour)
	store := NewMemoryStore()
	m := newTestManager(t, api, clock, store, &reasons{})

	sess, err := m.Login(t.Context(), testEmail, testPassword)
	require.NoError(t, err)
	assert.True(t, sess.ExpiresAt.Equal(clock.Now().Add(7*24*time.Hour)), "expiresAt = %v", sess.ExpiresAt)

	token, _ := store.Get(KeyToken)      //nolint:errcheck // memory store
	expiry, _ := store.Get(KeyExpiresAt) //nolint:errcheck // memory store
	assert.Equal(t, sess.Token, token)
	assert.Equal(t, "1791450000000", expiry)
	assert.True(t, m.armed())

	claims, err := m.CurrentPrincipal()
	require.NoError(t, err)
	assert.Equal(t, "pri-7", claims.Subject)
	assert.Equal(t, auth.RoleManagingAgent, claims.Role)
	assert.Equal(t, auth.KindPrimary, claims.Kind)
	// The stored expiry agrees with the signed exp claim.
	assert.True(t, claims.ExpiresAt.Time.Equal(sess.ExpiresAt))
}

func TestLogin_Rejected(t *testing.T) {
	clock := newFakeClock()
	api := newFakeAPI(t, clock, time.Hour)
	m := newTestManager(t, api, clock, NewMemoryStore(), &reasons{})

	_, err := m.Login(t.Context(), testEmail, "wrong-password")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid email or password", apiErr.Message)

	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.False(t, m.armed())
}

// Auto-logout fires at the scheduled time with no server round trip.
func TestScheduleAutoLogout_Fires(t *testing.T) {
	clock := newFakeClock()
	api := newFakeAPI(t, clock, time.Hour)
	store := NewMemoryStore()
	r := &reasons{}
	m := newTestManager(t, api, clock, store, r)

	_, err := m.Login(t.Context(), testEmail, testPassword)
	require.NoError(t, err)

	m.ScheduleAutoLogout(clock.Now().Add(5000 * time.Millisecond))
	assert.Equal(t, 1, clock.pending(), "re-arming must not stack timers")

	clock.Advance(4999 * time.Millisecond)
	_, err = m.Current()
	require.NoError(t, err, "session cleared too early")
	assert.Empty(t, r.list())

	clock.Advance(time.Millisecond)
	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, []Reason{ReasonExpired}, r.list())
	assert.False(t, m.armed())
}

func TestScheduleAutoLogout_PastExpiresNow(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	require.NoError(t, save(store, Session{Token: "t", ExpiresAt: clock.Now().Add(time.Hour)}))
	r := &reasons{}

	m, err := New("https://office.example.com", store, WithClock(clock), WithOnExpired(r.add),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	m.ScheduleAutoLogout(clock.Now())
	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, []Reason{ReasonExpired}, r.list())
	assert.Zero(t, clock.pending())
}

// A second login replaces the first timer; passing the first token's
// expiry does not end the second session.
func TestLogin_SecondLoginCancelsFirstTimer(t *testing.T) {
	clock := newFakeClock()
	api := newFakeAPI(t, clock, 10*time.Second)
	r := &reasons{}
	m := newTestManager(t, api, clock, NewMemoryStore(), r)

	first, err := m.Login(t.Context(), testEmail, testPassword)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	second, err := m.Login(t.Context(), testEmail, testPassword)
	require.NoError(t, err)
	require.True(t, second.ExpiresAt.After(first.ExpiresAt))
	assert.Equal(t, 1, clock.pending())

	clock.Advance(6 * time.Second) // past the first expiry
	current, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, second.Token, current.Token)
	assert.Empty(t, r.list())

	clock.Advance(4 * time.Second) // reaches the second expiry
	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, []Reason{ReasonExpired}, r.list())
}

// pausingHandler blocks the first "logged in" record until released, which
// holds a Login call just after it has stored its session.
type pausingHandler struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (h *pausingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *pausingHandler) Handle(_ context.Context, rec slog.Record) error {
	if rec.Message == "logged in" {
		h.once.Do(func() {
			close(h.entered)
			<-h.release
		})
	}
	return nil
}

func (h *pausingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *pausingHandler) WithGroup(string) slog.Handler { return h }

// Overlapping logins leave the timer armed for whichever session is stored.
func TestLogin_OverlappingLoginsKeepTimerInStep(t *testing.T) {
	clock := newFakeClock()
	api := newFakeAPI(t, clock, time.Hour)
	r := &reasons{}
	h := &pausingHandler{entered: make(chan struct{}), release: make(chan struct{})}

	m, err := New(api.srv.URL, NewMemoryStore(),
		WithClock(clock),
		WithHTTPClient(api.srv.Client()),
		WithLogger(slog.New(h)),
		WithOnExpired(r.add),
	)
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := m.Login(context.Background(), testEmail, testPassword)
		firstDone <- err
	}()
	select {
	case <-h.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first login never stored its session")
	}

	clock.Advance(30 * time.Minute)
	second, err := m.Login(t.Context(), testEmail, testPassword)
	require.NoError(t, err)

	close(h.release)
	require.NoError(t, <-firstDone)

	current, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, second.Token, current.Token)
	assert.Equal(t, 1, clock.pending())

	clock.Advance(30*time.Minute + time.Second) // past the first token's expiry
	current, err = m.Current()
	require.NoError(t, err, "the first login's timer must not end the second session")
	assert.Equal(t, second.Token, current.Token)
	assert.Empty(t, r.list())

	clock.Advance(30 * time.Minute) // past the second token's expiry
	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, []Reason{ReasonExpired}, r.list())
}

// A timer callback that was already running when it was replaced must not
// clear the newer session.
func TestStaleTimerIgnored(t *testing.T) {
	clock := newFakeClock()
	api := newFakeAPI(t, clock, time.Minute)
	r := &reasons{}
	m := newTestManager(t, api, clock, NewMemoryStore(), r)

	_, err := m.Login(t.Context(), testEmail, testPassword)
	require.NoError(t, err)
	stale := clock.timers[0].f

	_, err = m.Login(t.Context(), testEmail, testPassword)
	require.NoError(t, err)

	stale()
	_, err = m.Current()
	assert.NoError(t, err)
	assert.Empty(t, r.list())
}

func TestRestore(t *testing.T) {
	t.Run("future expiry re-arms", func(t *testing.T) {
		clock := newFakeClock()
		store := NewMemoryStore()
		require.NoError(t, save(store, Session{Token: "tok", ExpiresAt: clock.Now().Add(time.Minute)}))
		r := &reasons{}
		m, err := New("https://office.example.com", store, WithClock(clock), WithOnExpired(r.add))
		require.NoError(t, err)

		sess, ok, err := m.Restore()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "tok", sess.Token)
		assert.True(t, m.armed())

		clock.Advance(time.Minute)
		assert.Equal(t, []Reason{ReasonExpired}, r.list())
	})

	t.Run("past expiry clears", func(t *testing.T) {
		clock := newFakeClock()
		store := NewMemoryStore()
		require.NoError(t, save(store, Session{Token: "tok", ExpiresAt: clock.Now().Add(-time.Second)}))
		m, err := New("https://office.example.com", store, WithClock(clock))
		require.NoError(t, err)

		_, ok, err := m.Restore()
		require.NoError(t, err)
		assert.False(t, ok)
		token, _ := store.Get(KeyToken) //nolint:errcheck // memory store
		assert.Empty(t, token)
	})

	t.Run("nothing stored", func(t *testing.T) {
		m, err := New("https://office.example.com", NewMemoryStore(), WithClock(newFakeClock()))
		require.NoError(t, err)

		_, ok, err := m.Restore()
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, m.armed())
	})

	t.Run("corrupt expiry", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Set(KeyToken, "tok"))
		require.NoError(t, store.Set(KeyExpiresAt, "tomorrow"))
		m, err := New("https://office.example.com", store)
		require.NoError(t, err)

		_, _, err = m.Restore()
		assert.True(t, errors.Is(err, ErrCorruptSession))
	})
}

func TestLogout(t *testing.T) {
	clock := newFakeClock()
	api := newFakeAPI(t, clock, time.Hour)
	r := &reasons{}
	m := newTestManager(t, api, clock, NewMemoryStore(), r)

	_, err := m.Login(t.Context(), testEmail, testPassword)
	require.NoError(t, err)

	require.NoError(t, m.Logout())
	assert.False(t, m.armed())
	assert.Zero(t, clock.pending())
	_, err = m.CurrentPrincipal()
	assert.ErrorIs(t, err, ErrNoSession)

	clock.Advance(2 * time.Hour)
	assert.Equal(t, []Reason{ReasonLoggedOut}, r.list(), "cancelled timer must not fire")
}
