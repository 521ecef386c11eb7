// Package normalize trims and case-folds user input before it is stored
// or compared.
package normalize

import "strings"

// Email lowercases and trims an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name and collapses inner runs of whitespace.
// Case is preserved.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Status lowercases and trims a status value.
func Status(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Category lowercases and trims an expense category. Empty input maps to
// "uncategorized".
func Category(s string) string {
	c := strings.ToLower(strings.TrimSpace(s))
	if c == "" {
		return "uncategorized"
	}
	return c
}

// QueryParam trims a query parameter value. Case is preserved.
func QueryParam(s string) string {
	return strings.TrimSpace(s)
}
