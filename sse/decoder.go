// Package sse implements the server-sent event framing used by the chat and
// state streams: an incremental block decoder, frame parsing, delta
// extraction and a flushing frame writer.
package sse

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Frame is one parsed event block.
type Frame struct {
	Event string
	Data  string
}

// Decoder splits an incremental byte stream into "\n\n"-terminated blocks.
// The unterminated tail is retained across writes and is never parsed.
type Decoder struct {
	buf []byte
}

var (
	crlf      = []byte("\r\n")
	lf        = []byte("\n")
	separator = []byte("\n\n")
)

// Write appends chunk and returns every block it completes.
//
// Block boundaries are found on raw bytes; '\n' never occurs inside a
// multi-byte UTF-8 sequence, so a rune split across chunks stays in the tail
// until its block completes.
func (d *Decoder) Write(chunk []byte) []Frame {
	d.buf = append(d.buf, chunk...)
	d.normalizeLineEndings()

	var frames []Frame
	for {
		i := bytes.Index(d.buf, separator)
		if i < 0 {
			break
		}
		block := string(d.buf[:i])
		d.buf = d.buf[i+len(separator):]
		if strings.TrimSpace(block) == "" {
			continue
		}
		frames = append(frames, ParseBlock(block))
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames
}

// Pending reports the number of buffered bytes of an unterminated block.
func (d *Decoder) Pending() int { return len(d.buf) }

// Flush discards the unterminated tail. An incomplete block is never
// delivered.
func (d *Decoder) Flush() []Frame {
	d.buf = nil
	return nil
}

// normalizeLineEndings rewrites CRLF to LF, keeping a trailing lone '\r'
// in case the next chunk starts with '\n'.
func (d *Decoder) normalizeLineEndings() {
	if !bytes.Contains(d.buf, crlf) {
		return
	}
	d.buf = bytes.ReplaceAll(d.buf, crlf, lf)
}

// ParseBlock parses one block. The event defaults to "message"; only the
// first data line is kept.
func ParseBlock(block string) Frame {
	f := Frame{Event: "message"}
	seenData := false
	for _, raw := range strings.Split(block, "\n") {
		ln := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(ln, "event:"):
			f.Event = strings.TrimSpace(ln[len("event:"):])
		case strings.HasPrefix(ln, "data:") && !seenData:
			f.Data = strings.TrimSpace(ln[len("data:"):])
			seenData = true
		}
	}
	return f
}

// ExtractText returns the text fragment carried by a data payload: the first
// non-empty of "delta", "text", "answer" for a JSON object, or the payload
// itself when it is not valid JSON.
func ExtractText(data string) string {
	if data == "" {
		return ""
	}
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return data
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	for _, k := range [...]string{"delta", "text", "answer"} {
		if s := scalarText(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

// scalarText formats truthy scalars; falsy values and containers yield "".
func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
	}
	return ""
}
