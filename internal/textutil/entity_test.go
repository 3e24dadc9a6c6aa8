package textutil_test

import (
	"testing"

	"autopublish/internal/textutil"
)

func TestEntityKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BMW", "bmw"},
		{"  Land   Rover ", "land rover"},
		{"Unknown", ""},
		{"NOT SPECIFIED", ""},
		{"n/a", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := textutil.EntityKey(tt.in); got != tt.want {
			t.Fatalf("EntityKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsUnresolved(t *testing.T) {
	if !textutil.IsUnresolved("  none ") {
		t.Fatal("expected placeholder to be unresolved")
	}
	if textutil.IsUnresolved("Civic") {
		t.Fatal("expected real model to be resolved")
	}
}

func TestDisplayName(t *testing.T) {
	if got := textutil.DisplayName("land rover GLE"); got != "Land Rover GLE" {
		t.Fatalf("unexpected display name %q", got)
	}
	if got := textutil.DisplayName(" "); got != "-" {
		t.Fatalf("expected dash for blank, got %q", got)
	}
}
