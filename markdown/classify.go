package markdown

import "strings"

type lineKind int

const (
	kindBlank lineKind = iota
	kindHeading
	kindQuote
	kindUnordered
	kindOrdered
	kindPlain
)

// line is one classified input line. text has the block marker removed.
type line struct {
	kind  lineKind
	level int
	text  string
}

// classify tags a single line. Checks run in block-precedence order:
// blank, heading, quote, unordered item, ordered item, plain.
func classify(s string) line {
	if strings.TrimSpace(s) == "" {
		return line{kind: kindBlank}
	}
	if lvl, rest, ok := headingMarker(s); ok {
		return line{kind: kindHeading, level: lvl, text: rest}
	}
	body := strings.TrimLeft(s, " \t")
	if strings.HasPrefix(body, ">") {
		rest := body[1:]
		if rest != "" && isSpace(rest[0]) {
			rest = rest[1:]
		}
		return line{kind: kindQuote, text: rest}
	}
	if rest, ok := unorderedMarker(body); ok {
		return line{kind: kindUnordered, text: rest}
	}
	if rest, ok := orderedMarker(body); ok {
		return line{kind: kindOrdered, text: rest}
	}
	return line{kind: kindPlain, text: strings.TrimSpace(s)}
}

// headingMarker matches "###" or "####" at column zero, then whitespace,
// then at least one character.
func headingMarker(s string) (int, string, bool) {
	n := 0
	for n < len(s) && s[n] == '#' {
		n++
	}
	if n != 3 && n != 4 {
		return 0, "", false
	}
	i := n
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	if i == n {
		return 0, "", false
	}
	if i == len(s) {
		// "### " followed only by whitespace: the last space is the content.
		if i-n < 2 {
			return 0, "", false
		}
		i--
	}
	return n, s[i:], true
}

func unorderedMarker(body string) (string, bool) {
	if len(body) < 2 || (body[0] != '-' && body[0] != '*') || !isSpace(body[1]) {
		return "", false
	}
	return strings.TrimLeft(body[1:], " \t"), true
}

func orderedMarker(body string) (string, bool) {
	i := 0
	for i < len(body) && body[i] >= '0' && body[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(body) || body[i] != '.' || !isSpace(body[i+1]) {
		return "", false
	}
	return strings.TrimLeft(body[i+1:], " \t"), true
}

// isMarkerStart reports whether s begins with a heading or list marker.
func isMarkerStart(s string) bool {
	if _, _, ok := headingMarker(s); ok {
		return true
	}
	body := strings.TrimLeft(s, " \t")
	if _, ok := unorderedMarker(body); ok {
		return true
	}
	_, ok := orderedMarker(body)
	return ok
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }
