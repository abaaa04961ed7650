package campaign

import (
	"regexp"
	"strings"
)

var namePlaceholder = regexp.MustCompile(`(?i)\{name\}`)

// Personalize substitutes the {name} placeholder (case-insensitive)
// with the contact's name and trims leading/trailing whitespace from
// the result. An empty name substitutes the empty string; interior
// spaces left behind are kept as-is.
func Personalize(template, name string) string {
	return strings.TrimSpace(namePlaceholder.ReplaceAllLiteralString(template, name))
}
