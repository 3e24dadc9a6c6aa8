// Package preflight provides readiness checks for the filesystem paths and
// external services autopublish depends on.
//
// The daemon runs RunAll at startup and logs failures without refusing to
// start, since a publisher outage only costs attempts that the circuit
// breaker already bounds. The CLI "config validate" command prints the same
// results. Service checks are skipped when the service is not configured.
package preflight
