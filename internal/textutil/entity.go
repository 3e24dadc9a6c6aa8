package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// unresolvedValues are placeholders extraction emits when it could not
// identify a make, model or trim. Compared after folding.
var unresolvedValues = map[string]struct{}{
	"":              {},
	"unknown":       {},
	"not specified": {},
	"unspecified":   {},
	"n/a":           {},
	"na":            {},
	"none":          {},
	"-":             {},
}

// EntityKey folds case and collapses interior whitespace so "BMW  X5" and
// "bmw x5" compare equal. Placeholders map to the empty key.
func EntityKey(value string) string {
	folded := cases.Fold().String(strings.Join(strings.Fields(value), " "))
	if _, ok := unresolvedValues[folded]; ok {
		return ""
	}
	return folded
}

// IsUnresolved reports whether value carries no usable entity name.
func IsUnresolved(value string) bool {
	return EntityKey(value) == ""
}

// DisplayName title-cases a stored entity name for terminal output.
func DisplayName(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "-"
	}
	return cases.Title(language.Und, cases.NoLower).String(trimmed)
}
