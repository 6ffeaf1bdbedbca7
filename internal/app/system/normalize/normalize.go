// Package normalize holds the canonical cleanup applied to user input before
// it is stored or compared.
package normalize

import (
	"strings"

	"github.com/dalemusser/stratarecipe/internal/domain/models"
)

// Email trims and lowercases an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name or username and collapses inner whitespace runs
// to a single space. Use text.Fold for comparison keys.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Status trims and lowercases a user status.
func Status(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Role trims and lowercases a user role.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Category maps s onto one of the recipe categories regardless of case.
// Unknown values are returned trimmed so validation can reject them.
func Category(s string) string {
	s = strings.TrimSpace(s)
	for _, c := range models.AllCategories() {
		if strings.EqualFold(s, c) {
			return c
		}
	}
	return s
}

// Sort maps a list sort parameter onto a known order, defaulting to newest first.
func Sort(s string) string {
	switch strings.TrimSpace(s) {
	case models.SortAlphabetAsc, models.SortAlphabetDesc, models.SortDateAsc:
		return strings.TrimSpace(s)
	default:
		return models.SortDateDesc
	}
}

// QueryParam trims a query parameter.
func QueryParam(s string) string {
	return strings.TrimSpace(s)
}
