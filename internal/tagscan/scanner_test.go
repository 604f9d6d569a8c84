package tagscan

import (
	"strings"
	"testing"
)

type capture struct {
	text    strings.Builder
	matches []Match
}

func (c *capture) scanner() *Scanner {
	return New(func(s string) { c.text.WriteString(s) }, func(m Match) { c.matches = append(c.matches, m) })
}

func feed(s *Scanner, input string, fragSize int) {
	for len(input) > 0 {
		n := fragSize
		if n > len(input) {
			n = len(input)
		}
		s.Write(input[:n])
		input = input[n:]
	}
	s.Flush()
}

func TestScannerPlainText(t *testing.T) {
	c := &capture{}
	feed(c.scanner(), "hello world, no tags here", 3)
	if c.text.String() != "hello world, no tags here" {
		t.Errorf("text = %q", c.text.String())
	}
	if len(c.matches) != 0 {
		t.Errorf("matches = %v", c.matches)
	}
}

func TestScannerTagAtAnyFragmentation(t *testing.T) {
	input := `before <tool-call tool="fetch">{"url":"x"}</tool-call> after`
	for fragSize := 1; fragSize <= len(input); fragSize++ {
		c := &capture{}
		feed(c.scanner(), input, fragSize)
		if got := c.text.String(); got != "before  after" {
			t.Fatalf("fragSize %d: text = %q", fragSize, got)
		}
		if len(c.matches) != 1 {
			t.Fatalf("fragSize %d: matches = %d", fragSize, len(c.matches))
		}
		m := c.matches[0]
		if m.Tool != "fetch" || m.RawPayload != `{"url":"x"}` {
			t.Fatalf("fragSize %d: match = %+v", fragSize, m)
		}
	}
}

func TestScannerPayloadWithAngleBrackets(t *testing.T) {
	c := &capture{}
	feed(c.scanner(), `<tool-call tool="html">{"body":"<b>hi</b>"}</tool-call>`, 5)
	if len(c.matches) != 1 {
		t.Fatalf("matches = %d", len(c.matches))
	}
	if c.matches[0].RawPayload != `{"body":"<b>hi</b>"}` {
		t.Errorf("payload = %q", c.matches[0].RawPayload)
	}
	if c.text.String() != "" {
		t.Errorf("leaked text = %q", c.text.String())
	}
}

func TestScannerFalsePrefix(t *testing.T) {
	// Looks like a tag start but diverges; everything is plain text.
	c := &capture{}
	feed(c.scanner(), "a <tool-box full of tricks", 4)
	if c.text.String() != "a <tool-box full of tricks" {
		t.Errorf("text = %q", c.text.String())
	}
	if len(c.matches) != 0 {
		t.Errorf("matches = %v", c.matches)
	}
}

func TestScannerTruncatedTagFlushedAtEOF(t *testing.T) {
	c := &capture{}
	s := c.scanner()
	s.Write(`<tool-call tool="fetch">{"url":`)
	s.Flush()
	if c.text.String() != `<tool-call tool="fetch">{"url":` {
		t.Errorf("text = %q", c.text.String())
	}
	if len(c.matches) != 0 {
		t.Errorf("matches = %v", c.matches)
	}
}

func TestScannerTruncatedPrefixFlushedAtEOF(t *testing.T) {
	c := &capture{}
	s := c.scanner()
	s.Write("<tool-ca")
	s.Flush()
	if c.text.String() != "<tool-ca" {
		t.Errorf("text = %q", c.text.String())
	}
}

func TestScannerMalformedTagIsText(t *testing.T) {
	// Missing the closing quote-gt sequence after the name.
	input := `<tool-call tool="bad papayas</tool-call>`
	c := &capture{}
	feed(c.scanner(), input, 7)
	if c.text.String() != input {
		t.Errorf("text = %q", c.text.String())
	}
	if len(c.matches) != 0 {
		t.Errorf("matches = %v", c.matches)
	}
}

func TestScannerCarryOverAfterTag(t *testing.T) {
	c := &capture{}
	s := c.scanner()
	s.Write(`<tool-call tool="a">{}</tool-call>trailing <tool-call tool="b">{}</tool-call>`)
	s.Flush()
	if len(c.matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(c.matches))
	}
	if c.matches[0].Tool != "a" || c.matches[1].Tool != "b" {
		t.Errorf("matches = %+v", c.matches)
	}
	if c.text.String() != "trailing " {
		t.Errorf("text = %q", c.text.String())
	}
}

func TestScannerDisableMatchingPassthrough(t *testing.T) {
	c := &capture{}
	s := c.scanner()
	s.DisableMatching()
	s.Write(`<tool-call tool="a">{}</tool-call>`)
	s.Flush()
	if len(c.matches) != 0 {
		t.Errorf("matches = %v", c.matches)
	}
	if c.text.String() != `<tool-call tool="a">{}</tool-call>` {
		t.Errorf("text = %q", c.text.String())
	}
}

func TestScannerDisableInsideMatchCallback(t *testing.T) {
	c := &capture{}
	var s *Scanner
	s = New(func(text string) { c.text.WriteString(text) }, func(m Match) {
		c.matches = append(c.matches, m)
		s.DisableMatching()
	})
	s.Write(`<tool-call tool="a">{}</tool-call><tool-call tool="b">{}</tool-call>`)
	s.Flush()
	if len(c.matches) != 1 || c.matches[0].Tool != "a" {
		t.Fatalf("matches = %+v", c.matches)
	}
	if c.text.String() != `<tool-call tool="b">{}</tool-call>` {
		t.Errorf("text = %q", c.text.String())
	}
}

func TestScannerTextBeforeTagEmittedEagerly(t *testing.T) {
	var emitted []string
	s := New(func(text string) { emitted = append(emitted, text) }, func(Match) {})
	s.Write("plain text ")
	if len(emitted) != 1 || emitted[0] != "plain text " {
		t.Fatalf("text not forwarded before stream end: %v", emitted)
	}
	s.Write(`<tool-call `)
	if len(emitted) != 1 {
		t.Errorf("viable tag prefix leaked: %v", emitted)
	}
}

func TestBoundarySeparator(t *testing.T) {
	cases := []struct {
		last, next, want string
	}{
		{"*", "*hi", " "},
		{"a", "b", ""},
		{"", "*", ""},
		{"*", "", ""},
		{"x_", "_y", " "},
		{"`", "`code", " "},
		{"~", "~strike", " "},
		{"$", "$math", " "},
		{"a*", "b", ""},
		{"end.", ".next", ""},
	}
	for _, tc := range cases {
		if got := BoundarySeparator(tc.last, tc.next); got != tc.want {
			t.Errorf("BoundarySeparator(%q, %q) = %q, want %q", tc.last, tc.next, got, tc.want)
		}
	}
}

// A payload much larger than any fragment exercises the incremental
// close-literal search: the literal must be found even when it spans a
// fragment boundary deep into the buffer, and the carry-over after it must
// survive intact.
func TestScannerLongPayloadAcrossFragments(t *testing.T) {
	payload := strings.Repeat(`{"k":"vvvvvvvvvv"},`, 600)
	input := "lead " + `<tool-call tool="bulk">` + payload + `</tool-call>` + " tail"
	for _, fragSize := range []int{1, 7, 64} {
		c := &capture{}
		feed(c.scanner(), input, fragSize)
		if c.text.String() != "lead  tail" {
			t.Errorf("fragSize %d: text = %q", fragSize, c.text.String())
		}
		if len(c.matches) != 1 {
			t.Fatalf("fragSize %d: matches = %d", fragSize, len(c.matches))
		}
		if c.matches[0].Tool != "bulk" || c.matches[0].RawPayload != payload {
			t.Errorf("fragSize %d: match = %q payload len %d, want %d",
				fragSize, c.matches[0].Tool, len(c.matches[0].RawPayload), len(payload))
		}
	}
}
