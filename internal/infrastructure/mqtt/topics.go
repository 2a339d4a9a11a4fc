package mqtt

import "strings"

// topicRoot prefixes every topic this service publishes.
const topicRoot = "backoffice"

// Topics builds back office MQTT topics. All topics are scoped by site so
// several organisations can share one broker.
//
//	backoffice/{site}/auth/{action}    audit events (login, register, ...)
//	backoffice/{site}/system/status    retained online/offline status and LWT
//
// Usage:
//
//	topic := mqtt.Topics{}.AuthEvent("north-estates", "login")
type Topics struct{}

// AuthEvent returns the topic for one audit action.
func (Topics) AuthEvent(siteID, action string) string {
	return join(siteID, "auth", action)
}

// AllAuthEvents returns a wildcard matching every audit action for a site.
func (Topics) AllAuthEvents(siteID string) string {
	return join(siteID, "auth") + "/+"
}

// SystemStatus returns the retained status topic for a site.
func (Topics) SystemStatus(siteID string) string {
	return join(siteID, "system", "status")
}

// join assembles a topic, replacing characters that would change its
// structure inside a single level.
func join(siteID string, levels ...string) string {
	parts := make([]string, 0, len(levels)+2)
	parts = append(parts, topicRoot, sanitiseLevel(siteID))
	for _, l := range levels {
		parts = append(parts, sanitiseLevel(l))
	}
	return strings.Join(parts, "/")
}

var levelReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

func sanitiseLevel(s string) string {
	if s == "" {
		return "_"
	}
	return levelReplacer.Replace(s)
}
