package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"golang.org/x/text/unicode/norm"
)

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// Stored text is plain and kept verbatim apart from Unicode and line-ending
// normalisation. Markup is not interpreted here; whoever renders a value as
// HTML escapes it.

// cleanLine normalizes s to NFC and folds it to a single trimmed line.
func cleanLine(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(norm.NFC.String(s)), " ")
}

// cleanText normalizes multi-line text to NFC with \n line endings and trims
// the ends. Inner spacing is preserved.
func cleanText(s string) string {
	s = strings.ReplaceAll(norm.NFC.String(s), "\r\n", "\n")
	return strings.TrimSpace(s)
}

// tooLong reports whether s exceeds max runes. A non-positive max disables
// the check.
func tooLong(s string, max int) bool {
	return max > 0 && utf8.RuneCountInString(s) > max
}

// listingSlug derives a URL-friendly slug from title with a short id suffix
// so that equal titles stay distinct.
func listingSlug(title, id string) string {
	suffix := id
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	base := slug.Make(title)
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
