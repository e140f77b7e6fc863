package dashboard

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// newPolicy allows exactly the markup the chat renderer emits.
func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("h3", "h4", "p", "br", "blockquote", "ul", "ol", "li", "strong", "code")
	p.AllowURLSchemes("http", "https")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	p.AllowAttrs("rel").Matching(regexp.MustCompile(`^noopener noreferrer$`)).OnElements("a")
	p.RequireParseableURLs(true)
	return p
}

// sanitize cleans a rendered fragment before it reaches the browser.
func (d *Dashboard) sanitize(html string) string {
	return d.policy.Sanitize(html)
}
