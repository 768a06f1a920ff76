package utils

import (
	"strings"
	"unicode"
)

// NormalizeName collapses runs of whitespace and trims the ends.
func NormalizeName(input string) string {
	return strings.Join(strings.Fields(input), " ")
}

// Slugify turns a display name into a lowercase identifier made of letters,
// digits and underscores, e.g. "Royal Levy!" -> "royal_levy".
func Slugify(input string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(input) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return b.String()
}

// SplitList splits a comma or semicolon separated cell and drops empty items.
func SplitList(input string) []string {
	parts := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ';'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
