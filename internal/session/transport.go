package session

import (
	"net/http"
	"strings"
)

// Transport attaches the stored token to requests for the API and ends
// the session when the API rejects it.
type Transport struct {
	m    *Manager
	base http.RoundTripper
}

// Transport wraps base (http.DefaultTransport when nil).
func (m *Manager) Transport(base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{m: m, base: base}
}

// Client returns an HTTP client whose requests carry the session token.
func (m *Manager) Client() *http.Client {
	c := *m.client
	c.Transport = m.Transport(m.client.Transport)
	return &c
}

// RoundTrip implements http.RoundTripper. Requests to other hosts pass
// through untouched.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.m.covers(req) {
		return t.base.RoundTrip(req)
	}

	sess, err := t.m.Current()
	if err != nil {
		// No session: send as is and let the server answer 401.
		return t.base.RoundTrip(req)
	}

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+sess.Token)

	resp, err := t.base.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		t.m.logger.Warn("session rejected by server", "path", req.URL.Path)
		t.m.rejected(sess.Token)
	}
	return resp, nil
}

// covers reports whether req targets the API surface under the base URL.
func (m *Manager) covers(req *http.Request) bool {
	u := req.URL
	if !strings.EqualFold(u.Scheme, m.base.Scheme) || !strings.EqualFold(u.Host, m.base.Host) {
		return false
	}
	if m.base.Path == "" {
		return true
	}
	return u.Path == m.base.Path || strings.HasPrefix(u.Path, m.base.Path+"/")
}
