// Package markdown renders the constrained Markdown subset used by chat
// replies into HTML.
//
// Recognized: level 3/4 headings, blockquotes, flat unordered and ordered
// lists, paragraphs with soft line breaks, and inline bold, code spans and
// http(s) links. Everything else passes through as escaped text.
//
// Render is pure. Streaming callers re-render the whole accumulated text on
// every delta, so a token split across two deltas settles once the second
// delta arrives.
package markdown

import "strings"

// Render converts raw Markdown into HTML. Blocks are separated by "\n".
func Render(raw string) string {
	text := normalize(raw)
	if text == "" {
		return ""
	}
	var r renderer
	for _, ln := range strings.Split(text, "\n") {
		r.feed(classify(ln))
	}
	r.flushAll()
	return strings.Join(r.out, "\n")
}

type listKind int

const (
	listNone listKind = iota
	listUnordered
	listOrdered
)

// renderer is the block accumulator. At most one of para, quote and items is
// non-empty at any time.
type renderer struct {
	out   []string
	para  []string
	quote []string
	kind  listKind
	items []string
}

func (r *renderer) feed(l line) {
	switch l.kind {
	case kindBlank:
		r.flushAll()
		return
	case kindHeading:
		r.flushAll()
		tag := "h3"
		if l.level == 4 {
			tag = "h4"
		}
		r.out = append(r.out, "<"+tag+">"+Inline(l.text)+"</"+tag+">")
		return
	case kindQuote:
		r.flushParagraph()
		r.flushList()
		r.quote = append(r.quote, Inline(l.text))
		return
	}

	// Any non-quote line ends a quote run.
	r.flushQuote()

	switch l.kind {
	case kindUnordered, kindOrdered:
		r.flushParagraph()
		k := listUnordered
		if l.kind == kindOrdered {
			k = listOrdered
		}
		if r.kind != listNone && r.kind != k {
			r.flushList()
		}
		r.kind = k
		r.items = append(r.items, Inline(l.text))
	default:
		r.flushList()
		r.para = append(r.para, Inline(l.text))
	}
}

func (r *renderer) flushAll() {
	r.flushParagraph()
	r.flushList()
	r.flushQuote()
}

func (r *renderer) flushParagraph() {
	if len(r.para) > 0 {
		r.out = append(r.out, "<p>"+strings.Join(r.para, "<br>")+"</p>")
	}
	r.para = r.para[:0]
}

func (r *renderer) flushQuote() {
	if len(r.quote) > 0 {
		r.out = append(r.out, "<blockquote>"+strings.Join(r.quote, "<br>")+"</blockquote>")
	}
	r.quote = r.quote[:0]
}

func (r *renderer) flushList() {
	if len(r.items) > 0 {
		tag := "ul"
		if r.kind == listOrdered {
			tag = "ol"
		}
		var b strings.Builder
		b.WriteString("<" + tag + ">")
		for _, it := range r.items {
			b.WriteString("<li>" + it + "</li>")
		}
		b.WriteString("</" + tag + ">")
		r.out = append(r.out, b.String())
	}
	r.items = r.items[:0]
	r.kind = listNone
}
