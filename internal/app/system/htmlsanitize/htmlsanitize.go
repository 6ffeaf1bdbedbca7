// Package htmlsanitize reduces user-supplied recipe and comment text to plain
// text with bluemonday's strict policy. Nothing is rendered as HTML by this
// service, so every tag is dropped and entities are decoded.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// bluemonday policies are safe for concurrent use once built.
var strict = bluemonday.StrictPolicy()

// PlainText strips all markup from s and returns the trimmed text as the
// user typed it. Script and style contents are dropped with their tags.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// PlainTextAll applies PlainText to each entry and drops entries that end up
// empty, as for ingredient and step lists.
func PlainTextAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if t := PlainText(it); t != "" {
			out = append(out, t)
		}
	}
	return out
}
