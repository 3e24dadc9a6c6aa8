// Package dedup decides whether a candidate repeats content that is already
// live or about to be.
//
// Three checks run in order: an exact source match against published items,
// a same-vehicle cooldown window, and a collision with a pending candidate
// for the same vehicle that the cycle would pick first. Only candidates a
// cycle could actually promote count as rivals. The vehicle checks only run when both make
// and model are resolved; placeholders such as "Unknown" count as
// unresolved. Lookup failures never block a candidate.
package dedup
