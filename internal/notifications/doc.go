// Package notifications delivers publishing events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, and
// each event can be muted individually in the [notifications] config section.
// Workflow code depends only on the Service interface.
package notifications
