package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "Plain", input: "Royal Levy", want: "Royal Levy"},
		{name: "Markup", input: "<b>Royal</b> <script>alert(1)</script>Levy", want: "Royal Levy"},
		{name: "Whitespace", input: "  Royal \n Levy ", want: "Royal Levy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.input); got != tt.want {
				t.Errorf("SanitizeName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeString_RemovesNullBytes(t *testing.T) {
	if got := SanitizeString(" Roy\x00al ", 0); got != "Royal" {
		t.Errorf("SanitizeString() = %q, want %q", got, "Royal")
	}
}

func TestSanitizeString_KeepsRunesWhole(t *testing.T) {
	input := strings.Repeat("é", 40) // 80 bytes
	got := SanitizeString(input, 11)
	if len(got) > 11 {
		t.Errorf("len = %d, want <= 11", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("SanitizeString() split a rune: %q", got)
	}
}

func TestValidatePolicyID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{id: "royal_levy", want: true},
		{id: "levy2", want: true},
		{id: "Royal Levy", want: false},
		{id: "", want: false},
		{id: "drop;table", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := ValidatePolicyID(tt.id); got != tt.want {
				t.Errorf("ValidatePolicyID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
