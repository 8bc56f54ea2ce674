package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Post and comment text is plain text; strip all markup.
var sanitizer = bluemonday.StrictPolicy()

// Sanitize removes HTML tags and surrounding whitespace. The result is plain
// text, so entities bluemonday emits for &, < and > are decoded again.
func Sanitize(input string) string {
	return strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(input)))
}
