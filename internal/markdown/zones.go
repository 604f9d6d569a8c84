package markdown

import "strings"

// zone is a half-open byte range [start, end) a split offset must not fall
// strictly inside.
type zone struct {
	start, end int
}

// fenceContent is the content region of a fenced code block. Splits inside
// it must align to a line boundary, and the offset immediately after the
// opening fence line is excluded so a retry can never produce a degenerate
// empty code block.
type fenceContent struct {
	start, end int
}

// analysis holds the split constraints computed for one window of text.
type analysis struct {
	zones  []zone
	fences []fenceContent
}

// safeAt reports whether offset off in s is a legal split point.
func (a analysis) safeAt(s string, off int) bool {
	for _, f := range a.fences {
		if off == f.start {
			return false
		}
		if off > f.start && off < f.end {
			return off > 0 && s[off-1] == '\n'
		}
	}
	for _, z := range a.zones {
		if off > z.start && off < z.end {
			return false
		}
	}
	return true
}

// analyze computes the unsafe zones of s. Emphasis, strike and math markers
// contribute a zone per marker run; inline code contributes zones over its
// backtick runs only (content may split, the completer reopens the span);
// links, images and inline HTML are a single zone over the whole construct;
// fenced blocks contribute zones over their fence lines plus a line-aligned
// content region.
func analyze(s string) analysis {
	var a analysis
	i := 0
	lineStart := true
	for i < len(s) {
		if lineStart {
			if open, fenceLen := fenceAt(s, i); open {
				i = analyzeFence(s, i, fenceLen, &a)
				lineStart = true
				continue
			}
		}
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i += 2
			lineStart = false
			continue
		case c == '`':
			run := runLength(s, i, '`')
			rel := strings.Index(s[i+run:], strings.Repeat("`", run))
			a.zones = append(a.zones, zone{i, i + run})
			if rel >= 0 {
				closeStart := i + run + rel
				a.zones = append(a.zones, zone{closeStart, closeStart + run})
				i = closeStart + run
			} else {
				i += run
			}
			lineStart = false
			continue
		case c == '*' || c == '~' || c == '_':
			run := runLength(s, i, c)
			meaningful := true
			if c == '~' && run < 2 {
				meaningful = false
			}
			if c == '_' && intraword(s, i, run) {
				meaningful = false
			}
			if meaningful {
				a.zones = append(a.zones, zone{i, i + run})
			}
			i += run
			lineStart = false
			continue
		case c == '$' && i+1 < len(s) && s[i+1] == '$':
			a.zones = append(a.zones, zone{i, i + 2})
			i += 2
			lineStart = false
			continue
		case c == '[' || (c == '!' && i+1 < len(s) && s[i+1] == '['):
			if end, ok := linkEnd(s, i); ok {
				a.zones = append(a.zones, zone{i, end})
				i = end
				lineStart = false
				continue
			}
		case c == '<':
			if end, ok := htmlTagEnd(s, i); ok {
				a.zones = append(a.zones, zone{i, end})
				i = end
				lineStart = false
				continue
			}
		}
		lineStart = c == '\n'
		i++
	}
	return a
}

// analyzeFence records the fence-line zones and content region of a fenced
// block opening at i, returning the offset to resume scanning at.
func analyzeFence(s string, i, fenceLen int, a *analysis) int {
	openEnd := strings.IndexByte(s[i:], '\n')
	if openEnd < 0 {
		// Opening fence with no newline yet: the whole tail is unsafe.
		a.zones = append(a.zones, zone{i, len(s)})
		return len(s)
	}
	openEnd += i + 1
	a.zones = append(a.zones, zone{i, openEnd})

	contentStart := openEnd
	j := contentStart
	for j < len(s) {
		lineEnd := strings.IndexByte(s[j:], '\n')
		var next int
		if lineEnd < 0 {
			lineEnd = len(s)
			next = len(s)
		} else {
			lineEnd += j
			next = lineEnd + 1
		}
		if closes, _ := closingFence(s[j:lineEnd], fenceLen); closes {
			a.fences = append(a.fences, fenceContent{contentStart, j})
			a.zones = append(a.zones, zone{j, next})
			return next
		}
		j = next
	}
	// Unterminated block: content runs to end of input.
	a.fences = append(a.fences, fenceContent{contentStart, len(s)})
	return len(s)
}

// linkEnd returns the offset past a [text](dest) or ![alt](dest) construct
// starting at i, scanning within the current line only.
func linkEnd(s string, i int) (int, bool) {
	j := i
	if s[j] == '!' {
		j++
	}
	// s[j] == '['
	depth := 0
	for ; j < len(s) && s[j] != '\n'; j++ {
		if s[j] == '\\' {
			j++
			continue
		}
		if s[j] == '[' {
			depth++
		}
		if s[j] == ']' {
			depth--
			if depth == 0 {
				break
			}
		}
	}
	if j >= len(s) || s[j] != ']' || j+1 >= len(s) || s[j+1] != '(' {
		return 0, false
	}
	for k := j + 2; k < len(s) && s[k] != '\n'; k++ {
		if s[k] == '\\' {
			k++
			continue
		}
		if s[k] == ')' {
			return k + 1, true
		}
	}
	return 0, false
}

// htmlTagEnd returns the offset past an inline HTML tag starting at i.
func htmlTagEnd(s string, i int) (int, bool) {
	j := i + 1
	if j < len(s) && s[j] == '/' {
		j++
	}
	if j >= len(s) || !isASCIILetter(s[j]) {
		return 0, false
	}
	for ; j < len(s) && s[j] != '\n'; j++ {
		if s[j] == '>' {
			return j + 1, true
		}
	}
	return 0, false
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
