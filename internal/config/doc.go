// Package config loads, normalizes, and validates autopublish configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for API
// keys. The [admission] section only seeds the persisted settings record;
// the store owns the live values so a running daemon picks up operator
// changes on its next cycle.
package config
