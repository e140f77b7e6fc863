package chat

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"golang.org/x/net/html"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// Transcript converts the rendered bubbles back to Markdown, one section per
// message. Failed bubbles keep their literal notice.
func Transcript(conv *Conversation) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# SugarBuddy · %s\n", conv.UserID())
	for _, m := range conv.Messages() {
		md, err := mdConverter.ConvertString(m.HTML)
		if err != nil {
			return "", fmt.Errorf("chat: transcript %s: %w", m.ID, err)
		}
		label := string(m.Role)
		if m.Meta.Mode == ModeProactive {
			label += " (proactive)"
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", label, strings.TrimSpace(md))
	}
	return b.String(), nil
}

// PlainText strips the markup from a rendered bubble. Block elements and
// <br> become line breaks.
func PlainText(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{Type: html.ElementNode, Data: "div"})
	if err != nil {
		return fragment
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			if n.Data == "br" {
				b.WriteByte('\n')
				return
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			switch n.Data {
			case "p", "h3", "h4", "li", "blockquote":
				b.WriteByte('\n')
			}
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, ln := range lines {
		if ln = strings.TrimSpace(ln); ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}
