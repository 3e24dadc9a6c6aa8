// Package admission decides which queued candidates go live, when, and in
// what order.
//
// A cycle loads the settings record once, computes the remaining hourly and
// daily quota, selects and orders eligible candidates, and then walks them
// one at a time through the safety gate, duplicate detection, the publisher
// and optional image enrichment. Each candidate is isolated: an error or
// panic while handling one never affects the next. Every terminal decision
// is appended to the decision log; quality and quota deferrals are not.
//
// The package depends only on the ports declared in ports.go. The SQLite
// store in internal/queue satisfies all of the storage ports.
package admission
