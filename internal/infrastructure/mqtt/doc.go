// Package mqtt publishes back office events to an MQTT broker.
//
// The back office is a publisher only. Audit events are sent to
// backoffice/{site}/auth/{action} so site tooling (alerting, SIEM bridges)
// can follow logins and account changes without polling the API. The client
// maintains a retained status message on backoffice/{site}/system/status,
// with a Last Will so the broker marks the service offline if it dies.
//
// The broker is optional. When config disables it, Connect returns
// ErrDisabled and the caller runs without the MQTT audit sink.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Publish(mqtt.Topics{}.AuthEvent(cfg.Site.ID, "login"), payload, 1, false)
//
// # Thread Safety
//
// All methods are safe for concurrent use. paho handles reconnection with
// exponential backoff; Publish fails fast with ErrNotConnected while the
// connection is down.
package mqtt
