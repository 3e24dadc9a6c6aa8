// Package ingest loads candidate batches produced by upstream generators.
//
// Batches are YAML or JSON (JSON is valid YAML, so one decoder handles
// both). A batch is either a bare list of records or a mapping with a
// "candidates" key. Records whose source reference is already queued are
// skipped so re-running an import is harmless.
package ingest
