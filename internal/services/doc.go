// Package services defines shared utilities consumed by the admission core
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp cycle IDs, candidate IDs, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so publisher and
//     enrichment failures carry a consistent classification and an operator
//     hint.
package services
