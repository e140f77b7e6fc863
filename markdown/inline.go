package markdown

import (
	"regexp"
	"strings"
)

var (
	boldRe = regexp.MustCompile(`\*\*(.+?)\*\*`)
	codeRe = regexp.MustCompile("`([^`]+)`")
	// URLs may contain one level of balanced parentheses.
	linkRe = regexp.MustCompile(`\[([^\]]+)\]\(((?:[^()\s]|\([^()\s]*\))+)\)`)

	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer(`"`, "&quot;", "'", "&#39;")
)

// Inline renders one line of text: HTML escaping first, then bold, code
// spans and links, in that order. Link targets must be http:// or https://;
// any other scheme leaves only the label.
func Inline(s string) string {
	s = textEscaper.Replace(s)
	s = boldRe.ReplaceAllString(s, "<strong>$1</strong>")
	s = codeRe.ReplaceAllString(s, "<code>$1</code>")
	return linkRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := linkRe.FindStringSubmatch(m)
		label, href := sub[1], sub[2]
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			return label
		}
		return `<a href="` + attrEscaper.Replace(href) + `" target="_blank" rel="noopener noreferrer">` + label + `</a>`
	})
}
