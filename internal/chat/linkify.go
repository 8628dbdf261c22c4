package chat

import (
	"fmt"
	"html"
	"regexp"
)

// urlPattern matches http(s) URLs and bare www. hosts inside message text.
var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"]+`)

// Linkify HTML-escapes the text and wraps every URL in an anchor tag. It
// reports whether the result is already HTML-encoded so the transport does
// not escape it a second time.
func Linkify(text string) (string, bool) {
	if !urlPattern.MatchString(text) {
		return text, false
	}

	escaped := html.EscapeString(text)
	linked := urlPattern.ReplaceAllStringFunc(escaped, func(match string) string {
		href := match
		if len(match) >= 4 && (match[:4] == "www." || match[:4] == "WWW.") {
			href = "http://" + match
		}
		return fmt.Sprintf(`<a rel="nofollow external" target="_blank" href="%s">%s</a>`, href, match)
	})
	return linked, true
}
