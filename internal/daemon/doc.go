// Package daemon runs admission cycles on a fixed interval inside a single
// long-lived process.
//
// A flock on the configured lock path keeps one daemon per state directory.
// The daemon records the last cycle summary for status reporting and, when
// enabled, serves a small gin API for health, status, queue and decision
// inspection plus an on-demand cycle trigger.
package daemon
