// Package textutil normalizes the free-text vehicle fields that extraction
// produces so duplicate detection and storage agree on one comparison key.
package textutil
