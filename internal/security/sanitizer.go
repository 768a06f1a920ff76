package security

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/mroshb/statecraft/pkg/utils"
)

var (
	htmlPolicy    = bluemonday.StrictPolicy()
	policyIDRegex = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)
)

const (
	MaxNameLength        = 64
	MaxDescriptionLength = 1000
)

// SanitizeString removes potentially dangerous characters
func SanitizeString(input string, maxLen int) string {
	// Trim whitespace
	input = strings.TrimSpace(input)

	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Limit length
	if maxLen > 0 && len(input) > maxLen {
		input = truncateRunes(input, maxLen)
	}

	return input
}

// SanitizeHTML removes all HTML tags
func SanitizeHTML(input string) string {
	return htmlPolicy.Sanitize(input)
}

// SanitizeName strips markup from a display name and normalises its spacing.
func SanitizeName(input string) string {
	return utils.NormalizeName(SanitizeString(SanitizeHTML(input), MaxNameLength))
}

// SanitizeDescription strips markup from free text.
func SanitizeDescription(input string) string {
	return SanitizeString(SanitizeHTML(input), MaxDescriptionLength)
}

// ValidatePolicyID checks the identifier format used in catalogue files
func ValidatePolicyID(id string) bool {
	return policyIDRegex.MatchString(id)
}

// ValidateFileType checks if file extension is allowed
func ValidateFileType(filename string, allowedTypes []string) bool {
	filename = strings.ToLower(filename)
	for _, ext := range allowedTypes {
		if strings.HasSuffix(filename, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// truncateRunes cuts s to at most maxBytes without splitting a rune.
func truncateRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := 0
	for i := range s {
		if i > maxBytes {
			break
		}
		cut = i
	}
	return s[:cut]
}
