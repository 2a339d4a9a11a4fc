package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementAuthAttempts holds one point per audit event.
const MeasurementAuthAttempts = "auth_attempts"

// anonymousKind tags events with no authenticated principal, such as a
// login for an unknown email.
const anonymousKind = "anonymous"

// WriteAuthAttempt records one authentication or account event.
//
// Tags (low cardinality): action, outcome, principal_kind.
// Field: count=1, so dashboards can sum attempts per window.
// A zero ts is replaced with the current time.
func (c *Client) WriteAuthAttempt(action, outcome, principalKind string, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if principalKind == "" {
		principalKind = anonymousKind
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	point := write.NewPoint(
		MeasurementAuthAttempts,
		map[string]string{
			"action":         action,
			"outcome":        outcome,
			"principal_kind": principalKind,
		},
		map[string]interface{}{
			"count": 1,
		},
		ts,
	)
	c.writeAPI.WritePoint(point)
}
