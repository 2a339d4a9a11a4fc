// Package session is the client half of the back office login contract.
//
// A Manager logs in against the API, persists the issued token and its
// absolute expiry in a Store, and owns a single auto-logout timer that
// fires at that expiry without a server round trip. Re-arming the timer
// always cancels the previous one, so a timer from an older session can
// never clear a newer one.
//
// The only server-driven expiry signal is a 401 on an authenticated
// request: the Transport returned by Manager.Transport clears the session
// when it sees one and reports it through the OnExpired callback.
//
// Stores:
//   - MemoryStore: in-process, for tests and short-lived tools
//   - FileStore: a JSON file, used by backofficectl
//
// Both persist two keys, KeyToken and KeyExpiresAt. The expiry is stored
// as Unix milliseconds so it matches the token's exp claim exactly.
package session
