// Package api implements the back office HTTP API and the admin activity
// WebSocket feed.
//
// This package provides:
//   - Login and registration for primary accounts, and login for staff
//   - Bearer-token authentication with page gating per role
//   - Capability gating for staff mutations on tenants, properties and RSLs
//   - Staff account management for primary accounts
//   - The activity trail (paginated list plus a live WebSocket feed)
//   - Health and Prometheus metrics endpoints
//
// # Security
//
// Every protected route runs authenticate, which verifies the session token
// and attaches its claims to the request context, then requirePage for the
// page the route belongs to. Token failures always answer 401
// {"message":"Invalid token"}; page failures answer 403
// {"message":"Access denied: Insufficient permissions"}. The failure kind
// (malformed, expired, forged) is logged and audited, never returned.
//
// WebSocket connections authenticate with single-use tickets so session
// tokens never appear in URLs.
//
// # Graceful Degradation
//
// MQTT and InfluxDB are optional audit sinks. The API serves normally with
// either or both disabled.
package api
