// Package audit records authentication and account activity.
//
// Handlers hand an Event to the Recorder, which queues it on a bounded
// channel and fans it out asynchronously to every configured Sink:
//   - the audit_logs table (SQLiteRepository), served by the activity page
//   - the site MQTT bus
//   - InfluxDB (login attempt time series)
//   - the admin live activity WebSocket feed
//   - Prometheus counters
//
// Recording never blocks a request. When the queue is full the event is
// dropped and a warning is logged.
package audit
