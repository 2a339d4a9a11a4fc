package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/housing-backoffice/internal/infrastructure/mqtt"
)

// Publisher is the subset of the MQTT client used by MQTTSink.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSink publishes each event as JSON on backoffice/{site}/auth/{action}.
type MQTTSink struct {
	pub    Publisher
	siteID string
	qos    byte
}

// NewMQTTSink creates a sink publishing for the given site.
func NewMQTTSink(pub Publisher, siteID string, qos byte) *MQTTSink {
	return &MQTTSink{pub: pub, siteID: siteID, qos: qos}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Write implements Sink.
func (s *MQTTSink) Write(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling audit event: %w", err)
	}
	topic := mqtt.Topics{}.AuthEvent(s.siteID, string(e.Action))
	if err := s.pub.Publish(topic, payload, s.qos, false); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// AttemptWriter is the subset of the InfluxDB client used by InfluxSink.
type AttemptWriter interface {
	WriteAuthAttempt(action, outcome, principalKind string, ts time.Time)
}

// InfluxSink writes events to the auth_attempts measurement.
type InfluxSink struct {
	w AttemptWriter
}

// NewInfluxSink wraps an InfluxDB writer.
func NewInfluxSink(w AttemptWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Write implements Sink. The underlying write is batched and never fails
// synchronously.
func (s *InfluxSink) Write(_ context.Context, e Event) error {
	s.w.WriteAuthAttempt(string(e.Action), string(e.Outcome), e.PrincipalKind, e.Time)
	return nil
}

// Broadcaster pushes a typed message to connected activity feed clients.
type Broadcaster interface {
	Broadcast(msgType string, payload any)
}

// MessageTypeAudit is the activity feed message type for audit events.
const MessageTypeAudit = "audit"

// HubSink forwards events to the live activity feed.
type HubSink struct {
	b Broadcaster
}

// NewHubSink wraps a broadcaster.
func NewHubSink(b Broadcaster) *HubSink {
	return &HubSink{b: b}
}

// Name implements Sink.
func (s *HubSink) Name() string { return "hub" }

// Write implements Sink.
func (s *HubSink) Write(_ context.Context, e Event) error {
	s.b.Broadcast(MessageTypeAudit, e)
	return nil
}

// MetricsSink counts events by action and outcome.
type MetricsSink struct {
	events *prometheus.CounterVec
}

// NewMetricsSink registers backoffice_auth_events_total with reg.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backoffice",
		Name:      "auth_events_total",
		Help:      "Audit events recorded, by action and outcome.",
	}, []string{"action", "outcome"})
	if err := reg.Register(events); err != nil {
		return nil, fmt.Errorf("registering audit metrics: %w", err)
	}
	return &MetricsSink{events: events}, nil
}

// Name implements Sink.
func (s *MetricsSink) Name() string { return "metrics" }

// Write implements Sink.
func (s *MetricsSink) Write(_ context.Context, e Event) error {
	s.events.WithLabelValues(string(e.Action), string(e.Outcome)).Inc()
	return nil
}
