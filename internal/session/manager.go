package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/housing-backoffice/internal/auth"
)

// loginPath is the versioned login endpoint relative to the base URL.
const loginPath = "/api/v1/login"

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 * 1024

// Reason says why a session ended.
type Reason string

// Reason constants.
const (
	ReasonLoggedOut Reason = "logged_out" // Logout was called
	ReasonExpired   Reason = "expired"    // the auto-logout timer fired
	ReasonRejected  Reason = "rejected"   // the server answered 401
)

// ErrNoSession is returned when no session is stored.
var ErrNoSession = errors.New("no active session")

// APIError is a non-2xx response from the back office API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d", e.Status)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Manager holds one client session: the persisted record and the timer
// that ends it.
type Manager struct {
	base      *url.URL
	store     Store
	clock     Clock
	client    *http.Client
	logger    *slog.Logger
	onExpired func(Reason)

	mu    sync.Mutex
	timer Timer
	gen   uint64 // bumped whenever the timer is replaced or cancelled
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock (tests).
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithHTTPClient sets the client used for login and as the base for
// Client. Its Transport, if any, is wrapped by Transport.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithOnExpired registers a callback run after a session ends, for
// example to return to the login view. It runs without the Manager's lock
// held and may call back into the Manager.
func WithOnExpired(f func(Reason)) Option {
	return func(m *Manager) { m.onExpired = f }
}

// New creates a Manager for the API at baseURL.
func New(baseURL string, store Store, opts ...Option) (*Manager, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}

	m := &Manager{
		base:   u,
		store:  store,
		clock:  SystemClock{},
		client: &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Login exchanges credentials for a token, persists it and arms the
// auto-logout timer. Any timer from an earlier session is cancelled first.
//
// A rejected login returns an *APIError carrying the server's message.
func (m *Manager) Login(ctx context.Context, email, password string) (Session, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return Session{}, fmt.Errorf("encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.base.String()+loginPath, bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Session{}, decodeAPIError(resp)
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return Session{}, fmt.Errorf("decoding login response: %w", err)
	}
	if sess.Token == "" || sess.ExpiresAt.IsZero() {
		return Session{}, fmt.Errorf("login response missing token or expiry")
	}
	sess.ExpiresAt = sess.ExpiresAt.UTC()

	// Saving and arming happen under one lock so an overlapping login
	// cannot arm its timer against this session.
	m.mu.Lock()
	m.cancelLocked()
	if err := save(m.store, sess); err != nil {
		m.mu.Unlock()
		return Session{}, err
	}
	if !m.scheduleLocked(sess.ExpiresAt) {
		m.endLocked(ReasonExpired) //nolint:errcheck // logged in endLocked
		return sess, nil
	}
	m.mu.Unlock()

	m.logger.Info("logged in", "expires_at", sess.ExpiresAt)
	return sess, nil
}

// ScheduleAutoLogout arms the timer to end the session at expiresAt,
// replacing any existing timer. An expiry at or before now ends the
// session immediately.
func (m *Manager) ScheduleAutoLogout(expiresAt time.Time) {
	m.mu.Lock()
	if !m.scheduleLocked(expiresAt) {
		m.endLocked(ReasonExpired) //nolint:errcheck // logged in endLocked
		return
	}
	m.mu.Unlock()
}

// scheduleLocked replaces the timer with one firing at expiresAt. It
// returns false, arming nothing, when expiresAt is not in the future.
// Callers hold m.mu.
func (m *Manager) scheduleLocked(expiresAt time.Time) bool {
	m.cancelLocked()

	delay := expiresAt.Sub(m.clock.Now())
	if delay <= 0 {
		return false
	}

	gen := m.gen
	m.timer = m.clock.AfterFunc(delay, func() { m.fire(gen) })
	return true
}

// fire ends the session if the timer that called it is still current.
func (m *Manager) fire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.endLocked(ReasonExpired)
}

// Restore re-arms the timer from a persisted session, as on page load.
// A session already past its expiry is cleared. ok is false when there is
// no live session.
func (m *Manager) Restore() (Session, bool, error) {
	m.mu.Lock()
	sess, ok, err := load(m.store)
	if err != nil || !ok {
		m.mu.Unlock()
		return Session{}, false, err
	}
	if !m.scheduleLocked(sess.ExpiresAt) {
		m.endLocked(ReasonExpired) //nolint:errcheck // logged in endLocked
		return Session{}, false, nil
	}
	m.mu.Unlock()
	return sess, true, nil
}

// Logout cancels the timer and clears the stored session.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.cancelLocked()
	return m.endLocked(ReasonLoggedOut)
}

// Current returns the stored session without touching the timer.
func (m *Manager) Current() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok, err := load(m.store)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// CurrentPrincipal decodes the stored token's claims without verifying
// the signature. The result is advisory; only the server's verdict counts.
func (m *Manager) CurrentPrincipal() (*auth.Claims, error) {
	sess, err := m.Current()
	if err != nil {
		return nil, err
	}
	return auth.DecodeUnverified(sess.Token)
}

// armed reports whether an auto-logout timer is pending.
func (m *Manager) armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// cancelLocked stops the current timer. Callers hold m.mu.
func (m *Manager) cancelLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
}

// endLocked clears the store, releases m.mu and then notifies.
func (m *Manager) endLocked(reason Reason) error {
	m.gen++
	err := wipe(m.store)
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("clearing session failed", "reason", string(reason), "error", err)
	} else {
		m.logger.Info("session ended", "reason", string(reason))
	}
	if m.onExpired != nil {
		m.onExpired(reason)
	}
	return err
}

// rejected is called by Transport on a 401 for token.
func (m *Manager) rejected(token string) {
	m.mu.Lock()
	sess, ok, err := load(m.store)
	if err != nil || !ok || sess.Token != token {
		// A newer login already replaced the rejected token.
		m.mu.Unlock()
		return
	}
	m.cancelLocked()
	m.endLocked(ReasonRejected) //nolint:errcheck // logged in endLocked
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && len(data) > 0 {
		_ = json.Unmarshal(data, apiErr) //nolint:errcheck // status alone is enough
		apiErr.Status = resp.StatusCode
	}
	return apiErr
}
