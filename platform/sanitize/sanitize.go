// Package sanitize strips markup from operator-entered text before it is
// stored or sent out over SMS.
package sanitize

import (
	"regexp"
	"strings"
)

var tagRegex = regexp.MustCompile(`<[^>]*>`)

// Text removes markup tags and decodes common HTML entities, then strips
// again to catch tags that were entity-encoded. The result is plain text
// safe for message bodies.
func Text(s string) string {
	result := tagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	result = tagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}
