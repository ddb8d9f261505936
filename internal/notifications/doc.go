// Package notifications publishes download lifecycle events to ntfy when
// a topic is configured, and degrades to a noop service otherwise.
package notifications
