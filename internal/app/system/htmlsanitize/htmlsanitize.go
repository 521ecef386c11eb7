// Package htmlsanitize strips markup from user-supplied text before it is
// stored. Titles, descriptions and institution names are plain text; any
// tags are removed and entities decoded so the stored value is what the
// user typed minus the markup.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text returns s with all HTML removed and surrounding whitespace trimmed.
func Text(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// IsPlainText reports whether s contains no HTML tags.
func IsPlainText(s string) bool {
	return !strings.Contains(s, "<") || !strings.Contains(s, ">")
}
