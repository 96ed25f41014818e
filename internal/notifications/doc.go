// Package notifications delivers job and backend events via ntfy.
//
// The default implementation publishes to the ntfy topic configured in
// config.toml and degrades to a no-op when no topic is set. Per-event
// toggles in [notifications] silence individual event kinds. Callers depend
// only on the Service interface and describe events with a Payload map.
package notifications
