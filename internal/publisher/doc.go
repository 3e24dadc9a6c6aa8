// Package publisher creates and withdraws articles on the live site.
//
// Two backends exist. The local backend writes each article as a JSON file
// under the state directory and derives its URL from the configured site
// URL; it is the default and what tests and dry runs use. The HTTP backend
// posts articles to a CMS endpoint and classifies failures with the
// services error markers so the circuit breaker and operator hints can tell
// a bad payload from an outage.
package publisher
