// Package tagscan extracts the inline tool-call protocol from a streamed
// text response. Models that cannot use native function calling request
// tools with an inline tag:
//
//	<tool-call tool="NAME">PAYLOAD</tool-call>
//
// The scanner consumes the stream fragment by fragment, forwarding plain
// text as soon as it is provably not part of a tag and buffering only while
// the accumulated suffix could still become one.
package tagscan

import (
	"bytes"
	"strings"
)

const (
	openPrefix   = `<tool-call tool="`
	closeLiteral = `</tool-call>`
)

// Match is a parsed tool-call tag.
type Match struct {
	Tool       string
	RawPayload string
}

// Scanner is an incremental matcher over an accumulating buffer. It has two
// states: scanning (buffer empty or holding a viable tag prefix) and
// passthrough (matching disabled, everything is plain text).
type Scanner struct {
	onText  func(string)
	onMatch func(Match)

	buf      []byte
	disabled bool

	// searched marks the prefix of buf already known not to contain the
	// closing literal, so a long streaming payload is scanned once, not
	// re-scanned from the start on every fragment.
	searched int
}

// New returns a Scanner that forwards plain text to onText and parsed tags
// to onMatch. Both callbacks run synchronously inside Write/Flush.
func New(onText func(string), onMatch func(Match)) *Scanner {
	return &Scanner{onText: onText, onMatch: onMatch}
}

// DisableMatching turns the scanner into a passthrough: pending and future
// input is forwarded as plain text. Used after the one honored tool call per
// model response, so later tag-shaped text reaches the user verbatim.
func (s *Scanner) DisableMatching() {
	s.disabled = true
}

// Write consumes one stream fragment.
func (s *Scanner) Write(fragment string) {
	if fragment == "" {
		return
	}
	s.buf = append(s.buf, fragment...)
	s.scan()
}

// Flush forwards whatever is still buffered as plain text. Called when the
// stream ends: a truncated tag prefix is still user content if the model
// never finished the tag.
func (s *Scanner) Flush() {
	if len(s.buf) > 0 {
		s.emit(string(s.buf))
		s.buf = nil
	}
	s.searched = 0
}

func (s *Scanner) scan() {
	for {
		if s.disabled {
			s.Flush()
			return
		}

		i := bytes.IndexByte(s.buf, '<')
		if i < 0 {
			s.Flush()
			return
		}
		if i > 0 {
			s.emit(string(s.buf[:i]))
			s.buf = s.buf[i:]
			s.searched = 0
		}

		// Buffer starts with '<'. Keep it only while it is still a
		// viable prefix of the opening literal.
		n := len(s.buf)
		if n > len(openPrefix) {
			n = len(openPrefix)
		}
		if string(s.buf[:n]) != openPrefix[:n] {
			// Provably not a tag: release the '<' and rescan, the rest
			// may contain another candidate.
			s.emit("<")
			s.buf = s.buf[1:]
			s.searched = 0
			continue
		}
		if len(s.buf) < len(openPrefix) {
			return // still a plausible tag start, keep buffering
		}

		// Resume the close-literal search past the already-searched prefix,
		// backed up far enough to catch a literal spanning the old boundary.
		from := s.searched - len(closeLiteral) + 1
		if from < 0 {
			from = 0
		}
		ci := bytes.Index(s.buf[from:], []byte(closeLiteral))
		if ci < 0 {
			s.searched = len(s.buf)
			return // payload still streaming
		}
		ci += from

		candidate := string(s.buf[:ci+len(closeLiteral)])
		rest := s.buf[ci+len(closeLiteral):]
		if m, ok := parseTag(candidate); ok {
			// Preserve the carry-over after the closing tag; it may hold
			// more plain text or the start of another tag.
			s.buf = append([]byte(nil), rest...)
			s.searched = 0
			s.onMatch(m)
			continue
		}

		// Tag-shaped but malformed: the whole candidate is user text.
		s.emit(candidate)
		s.buf = append([]byte(nil), rest...)
		s.searched = 0
	}
}

func (s *Scanner) emit(text string) {
	if text != "" && s.onText != nil {
		s.onText(text)
	}
}

// parseTag matches the full tag grammar against a candidate that is known to
// start with the opening literal and end with the closing literal.
func parseTag(c string) (Match, bool) {
	rest := strings.TrimPrefix(c, openPrefix)
	q := strings.IndexByte(rest, '"')
	if q < 0 || q+1 >= len(rest) || rest[q+1] != '>' {
		return Match{}, false
	}
	body := rest[q+2:]
	if len(body) < len(closeLiteral) {
		return Match{}, false
	}
	return Match{
		Tool:       rest[:q],
		RawPayload: body[:len(body)-len(closeLiteral)],
	}, true
}

// BoundarySeparator returns " " when concatenating two plain-text segments
// across a tool-call seam would fuse identical markdown delimiters (a
// trailing "*" meeting a leading "*" becomes "**"), and "" otherwise.
func BoundarySeparator(last, next string) string {
	if last == "" || next == "" {
		return ""
	}
	l := last[len(last)-1]
	if l != next[0] {
		return ""
	}
	switch l {
	case '*', '_', '`', '~', '$':
		return " "
	}
	return ""
}
