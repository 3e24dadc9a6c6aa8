// Package notifications delivers admission events to an operator via ntfy.
//
// The ntfy service formats each Event into a titled, tagged message and
// drops events whose category is switched off in the [notifications]
// section. With no topic configured NewService returns a no-op. Reporter
// adapts the service to the orchestrator's post-publish hook and cycle
// observer so admission code never touches HTTP.
package notifications
