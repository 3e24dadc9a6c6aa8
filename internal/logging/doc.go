// Package logging assembles structured slog loggers and formatting helpers used
// across autopublish.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so cycle code tags every line
// with the cycle and candidate it concerns. Decision logs share one attribute
// shape through DecisionAttrs.
package logging
