// Package slug turns recipe titles into URL keys and allocates them so that
// no two recipes end up sharing one.
//
// Allocation is optimistic: a probe checks whether the plain title token is
// free, and when it is not the recipe falls back to "<token>-<id>", which
// cannot collide because ids are unique. The probe only keeps slugs short in
// the common case. A unique index on the slug field turns a lost probe race
// into a rejected write, which is handled exactly like an observed collision.
package slug

import (
	"regexp"
	"strings"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/unicode/norm"
)

var (
	// disallowed matches anything outside [a-z0-9], ASCII whitespace, and '-'.
	disallowed = regexp.MustCompile(`[^a-z0-9 \t\n\v\f\r-]`)
	whitespace = regexp.MustCompile(`[ \t\n\v\f\r]+`)
	hyphens    = regexp.MustCompile(`-+`)
)

// Transliterate maps an arbitrary title to a lowercase ASCII token.
//
//	"Phở Bò Đặc Biệt" -> "pho-bo-dac-biet"
//
// It never fails. Titles made only of punctuation or symbols produce "";
// callers must substitute a fallback (the recipe id) before allocating.
func Transliterate(title string) string {
	s := unidecode.Unidecode(norm.NFC.String(title))
	s = strings.ToLower(s)
	s = disallowed.ReplaceAllString(s, "")
	s = strings.Trim(s, " \t\n\v\f\r")
	s = whitespace.ReplaceAllString(s, "-")
	s = hyphens.ReplaceAllString(s, "-")
	return s
}
