package markdown

import (
	"regexp"
	"strings"
)

// punctBeforeMarker finds a sentence terminator directly followed by a
// heading or list marker on the same line.
var punctBeforeMarker = regexp.MustCompile(`([。！？；])[ \t]*(#{3,4}[ \t]|[-*][ \t]|\d+\.[ \t])`)

// normalize unifies line endings and inserts the paragraph breaks upstream
// text tends to omit around headings and lists.
func normalize(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = punctBeforeMarker.ReplaceAllString(s, "$1\n\n$2")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines)+8)
	blank := func(i int) bool { return strings.TrimSpace(lines[i]) == "" }

	for i, ln := range lines {
		prevText := i > 0 && !blank(i-1)
		l := classify(ln)
		switch l.kind {
		case kindHeading:
			if prevText && lastOut(out) != "" {
				out = append(out, "")
			}
			out = append(out, ln)
			if i+1 < len(lines) && !blank(i+1) {
				out = append(out, "")
			}
			continue
		case kindUnordered, kindOrdered:
			if prevText && lastOut(out) != "" && classify(lines[i-1]).kind == kindPlain {
				out = append(out, "")
			}
		}
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func lastOut(out []string) string {
	if len(out) == 0 {
		return ""
	}
	return strings.TrimSpace(out[len(out)-1])
}
