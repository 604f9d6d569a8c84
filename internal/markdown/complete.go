// Package markdown implements incremental-safe markdown completion and
// chunk splitting for streamed text whose final length is unknown.
//
// Complete closes inline constructs left open by an arbitrary prefix of a
// markdown stream. Split cuts a growing stream into bounded chunks that are
// each independently renderable, without ever moving a boundary that has
// already been emitted.
package markdown

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// openMark is one construct still open at the end of a scanned prefix.
type openMark struct {
	marker string
	// $$ opened at a line boundary: the synthesized closer needs its own line.
	newlineAfter bool
}

// Complete returns text with every open inline construct closed using the
// minimal matching closer, innermost first. Recognized: runs of * (italic,
// bold, bold+italic), _ (intraword underscores are left alone), ~~, inline
// backtick code and $$ math. Fenced code blocks are never auto-closed:
// synthesizing a closing fence mid-stream corrupts the code that follows.
func Complete(text string) string {
	completed, _ := completeWithReopen(text)
	return completed
}

// CompleteAt force-splits text at pos, closing whatever was open before the
// split and prefixing the remainder with the markers needed to reopen those
// constructs in the next chunk.
func CompleteAt(text string, pos int) (completed, overflow string) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(text) {
		pos = len(text)
	}
	completed, reopen := completeWithReopen(text[:pos])
	return completed, reopen + text[pos:]
}

// completeWithReopen closes the open constructs of text and reports the
// reopening prefix a continuation chunk must carry. Code spans and fenced
// blocks are masked out first so their content is restored verbatim.
func completeWithReopen(text string) (string, string) {
	masked, spans := maskCode(text)
	stack := scanMarks(masked)

	var closers strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		m := stack[i]
		if m.marker == "$$" && m.newlineAfter {
			closers.WriteString("\n")
		}
		closers.WriteString(m.marker)
	}

	var reopen strings.Builder
	for _, m := range stack {
		reopen.WriteString(m.marker)
		if m.marker == "$$" && m.newlineAfter {
			reopen.WriteString("\n")
		}
	}

	return unmaskCode(masked, spans) + closers.String(), reopen.String()
}

const placeholderRune = '\x00'

// maskCode replaces fenced code blocks and closed inline code spans with
// opaque placeholders so the marker scan never touches code content. An open
// fenced block is masked through to the end of input (nothing inside it may
// be completed); an unterminated inline backtick run is left in place so the
// scan can close it.
func maskCode(s string) (string, []string) {
	var (
		out   strings.Builder
		spans []string
	)
	i := 0
	lineStart := true
	for i < len(s) {
		if lineStart {
			if open, fenceLen := fenceAt(s, i); open {
				end := fenceBlockEnd(s, i, fenceLen)
				spans = append(spans, s[i:end])
				out.WriteRune(placeholderRune)
				out.WriteString(strconv.Itoa(len(spans) - 1))
				out.WriteRune(placeholderRune)
				i = end
				continue
			}
		}
		c := s[i]
		if c == '`' {
			run := runLength(s, i, '`')
			close := strings.Index(s[i+run:], strings.Repeat("`", run))
			if close >= 0 {
				end := i + run + close + run
				spans = append(spans, s[i:end])
				out.WriteRune(placeholderRune)
				out.WriteString(strconv.Itoa(len(spans) - 1))
				out.WriteRune(placeholderRune)
				lineStart = false
				i = end
				continue
			}
		}
		out.WriteByte(c)
		lineStart = c == '\n'
		i++
	}
	return out.String(), spans
}

func unmaskCode(masked string, spans []string) string {
	if len(spans) == 0 {
		return masked
	}
	var out strings.Builder
	i := 0
	for i < len(masked) {
		if masked[i] == placeholderRune {
			if end := strings.IndexByte(masked[i+1:], placeholderRune); end >= 0 {
				if idx, err := strconv.Atoi(masked[i+1 : i+1+end]); err == nil && idx < len(spans) {
					out.WriteString(spans[idx])
					i += end + 2
					continue
				}
			}
		}
		out.WriteByte(masked[i])
		i++
	}
	return out.String()
}

// fenceAt reports whether a fenced-code opening starts at i (up to three
// leading spaces, then three or more backticks).
func fenceAt(s string, i int) (bool, int) {
	j := i
	for j < len(s) && j-i < 3 && s[j] == ' ' {
		j++
	}
	run := runLength(s, j, '`')
	if run >= 3 {
		return true, run
	}
	return false, 0
}

// fenceBlockEnd returns the offset just past the block's closing fence line,
// or len(s) when the fence is still open.
func fenceBlockEnd(s string, start, fenceLen int) int {
	i := strings.IndexByte(s[start:], '\n')
	if i < 0 {
		return len(s)
	}
	i += start + 1
	for i < len(s) {
		lineEnd := strings.IndexByte(s[i:], '\n')
		var next int
		if lineEnd < 0 {
			lineEnd = len(s)
			next = len(s)
		} else {
			lineEnd += i
			next = lineEnd + 1
		}
		if closes, _ := closingFence(s[i:lineEnd], fenceLen); closes {
			return next
		}
		i = next
	}
	return len(s)
}

func closingFence(line string, openLen int) (bool, int) {
	trimmed := strings.TrimLeft(line, " ")
	run := runLength(trimmed, 0, '`')
	if run >= openLen && strings.TrimRight(trimmed, "`") == "" {
		return true, run
	}
	return false, 0
}

func runLength(s string, i int, c byte) int {
	n := 0
	for i+n < len(s) && s[i+n] == c {
		n++
	}
	return n
}

// scanMarks walks masked text and returns the constructs still open at the
// end, in opening order. A marker run closes as much of the open stack of
// the same character as its length allows; what is left over opens a new
// construct, unless the run ends the input (see toggle).
func scanMarks(s string) []openMark {
	var stack []openMark
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i += 2
		case c == '`':
			// Unterminated code span: the rest of the input is code
			// content, nothing inside it opens or closes anything.
			stack = append(stack, openMark{marker: strings.Repeat("`", runLength(s, i, '`'))})
			return stack
		case c == '*' || c == '~':
			run := runLength(s, i, c)
			if c == '~' && run < 2 {
				i += run
				break
			}
			stack = toggle(stack, s[i:i+run], i+run == len(s))
			i += run
		case c == '_':
			run := runLength(s, i, c)
			if intraword(s, i, run) {
				i += run
				break
			}
			stack = toggle(stack, s[i:i+run], i+run == len(s))
			i += run
		case c == '$' && i+1 < len(s) && s[i+1] == '$':
			if top(stack) == "$$" {
				stack = stack[:len(stack)-1]
			} else {
				stack = append(stack, openMark{
					marker:       "$$",
					newlineAfter: i+2 < len(s) && s[i+2] == '\n',
				})
			}
			i += 2
		default:
			i++
		}
	}
	return stack
}

// toggle applies one marker run to the open stack. Runs match by length
// rather than byte-for-byte, so "***" closes an open "*" plus "**" pair and
// "*" closes one third of an open "***". A mid-text remainder opens a new
// construct; a remainder at the end of the input is literal text, since an
// opener with no content after it has nothing to emphasize. The end-of-input
// rule keeps completion idempotent: appended closers land next to a trailing
// run, and the merged run must still cancel against the same open stack.
func toggle(stack []openMark, marker string, atEnd bool) []openMark {
	c := marker[0]
	n := len(marker)
	for n > 0 && len(stack) > 0 {
		t := stack[len(stack)-1].marker
		if t[0] != c {
			break
		}
		if len(t) > n {
			stack[len(stack)-1].marker = t[:len(t)-n]
			return stack
		}
		stack = stack[:len(stack)-1]
		n -= len(t)
	}
	if n > 0 && !atEnd {
		stack = append(stack, openMark{marker: strings.Repeat(string(c), n)})
	}
	return stack
}

func top(stack []openMark) string {
	if len(stack) == 0 {
		return ""
	}
	return stack[len(stack)-1].marker
}

// intraword reports whether an underscore run at i is flanked by word
// characters on both sides, in which case it is literal text (snake_case).
func intraword(s string, i, run int) bool {
	if i == 0 || i+run >= len(s) {
		return false
	}
	before, _ := utf8.DecodeLastRuneInString(s[:i])
	after, _ := utf8.DecodeRuneInString(s[i+run:])
	return isWordRune(before) && isWordRune(after)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
