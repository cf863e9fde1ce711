package credential_test

import (
	"testing"

	"entry_service/internal/lib/credential"
)

func TestVerify(t *testing.T) {
	cases := []struct {
		name     string
		provided string
		stored   string
		want     bool
	}{
		{name: "exact match", provided: "abc123", stored: "abc123", want: true},
		{name: "empty stored key never matches", provided: "abc123", stored: "", want: false},
		{name: "empty provided against empty stored", provided: "", stored: "", want: false},
		{name: "length mismatch short", provided: "abc", stored: "abc123", want: false},
		{name: "length mismatch long", provided: "abc123456", stored: "abc123", want: false},
		{name: "equal length first byte differs", provided: "xbc123", stored: "abc123", want: false},
		{name: "equal length last byte differs", provided: "abc124", stored: "abc123", want: false},
		{name: "equal length middle byte differs", provided: "abX123", stored: "abc123", want: false},
		{name: "long random-looking key", provided: "9f86d081884c7d659a2feaa0c55ad015", stored: "9f86d081884c7d659a2feaa0c55ad015", want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := credential.Verify(tc.provided, tc.stored)
			if got != tc.want {
				t.Errorf("Verify(%q, %q) = %v, want %v", tc.provided, tc.stored, got, tc.want)
			}
		})
	}
}
