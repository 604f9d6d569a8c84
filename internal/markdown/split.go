package markdown

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// Backtrack budgets for the lexical split preferences: a newline close to
// the target beats a whitespace boundary further back, which beats a word
// boundary anywhere in the window.
const (
	newlineBacktrack    = 120
	whitespaceBacktrack = 240
)

// Chunk is one display unit cut from the raw stream. Start and End are byte
// offsets into the raw text and never change once a later chunk exists;
// Display is the markdown-completed text to render, including any reopening
// markers carried over from the previous chunk.
type Chunk struct {
	Start   int
	End     int
	Display string
}

// Split cuts text into chunks whose raw length stays within maxLen bytes.
// Re-invoking it on a grown text yields the same leading chunks: boundary
// decisions depend only on the window they were made in.
func Split(text string, maxLen int) []Chunk {
	return SplitWithBudgets(text, maxLen, maxLen)
}

// SplitWithBudgets is Split with a smaller budget applied to the final chunk
// only, reserving room for a trailing streaming cursor without disturbing
// the already-stable earlier chunks.
func SplitWithBudgets(text string, maxLen, lastLen int) []Chunk {
	if maxLen < 1 {
		maxLen = 1
	}
	if lastLen < 1 || lastLen > maxLen {
		lastLen = maxLen
	}

	chunks, start, carry := splitLeading(text, 0, "", maxLen)

	// Secondary pass: if the remainder overflows the reduced final budget,
	// keep splitting at the reduced budget. Earlier chunks are untouched.
	if len(carry)+len(text)-start > lastLen {
		var more []Chunk
		more, start, carry = splitLeading(text, start, carry, lastLen)
		chunks = append(chunks, more...)
	}

	full := carry + text[start:]
	completed, _ := completeWithReopen(full)
	return append(chunks, Chunk{Start: start, End: len(text), Display: completed})
}

// splitLeading emits every non-final chunk of text[start:] under the given
// budget, returning the chunks plus the offset and reopening carry of the
// remainder.
func splitLeading(text string, start int, carry string, maxLen int) ([]Chunk, int, string) {
	var chunks []Chunk
	for {
		budget := maxLen - len(carry)
		if budget < 1 {
			budget = 1
		}
		remaining := text[start:]
		if len(remaining) <= budget {
			return chunks, start, carry
		}

		k := findSplit(remaining, carry, budget)
		full := carry + remaining[:k]

		display, _ := completeWithReopen(trimChunkDisplay(full))
		chunks = append(chunks, Chunk{Start: start, End: start + k, Display: display})

		_, carry = completeWithReopen(full)
		start += k
	}
}

// trimChunkDisplay drops trailing whitespace from a chunk's display text.
// Whitespace inside an open fenced block is semantically significant and is
// kept as-is.
func trimChunkDisplay(s string) string {
	if endsInsideFence(s) {
		return s
	}
	return strings.TrimRight(s, " \t\n")
}

func endsInsideFence(s string) bool {
	for _, f := range analyze(s).fences {
		if f.end >= len(s) {
			return true
		}
	}
	return false
}

// findSplit picks the raw split offset for one chunk. remaining is the
// unemitted text, carry the reopening prefix it will be displayed with,
// target the largest acceptable raw length (target < len(remaining)).
// The result is always at least 1: when no safe offset exists anywhere the
// split is forced at target rather than looping.
func findSplit(remaining, carry string, target int) int {
	window := remaining[:target]
	completed, _ := completeWithReopen(carry + window)
	a := analyze(completed)
	base := len(carry)

	safe := func(k int) bool {
		if k < len(remaining) && !utf8.RuneStart(remaining[k]) {
			return false
		}
		return a.safeAt(completed, base+k)
	}

	// 1. Newline within the tight backtrack budget.
	for k := target; k >= 1 && k >= target-newlineBacktrack; k-- {
		if window[k-1] == '\n' && safe(k) {
			return k
		}
	}

	// 2. Any whitespace within the wider budget.
	for k := target; k >= 1 && k >= target-whitespaceBacktrack; k-- {
		r, _ := utf8.DecodeLastRuneInString(window[:k])
		if unicode.IsSpace(r) && safe(k) {
			return k
		}
	}

	// 3. Word-segment boundary, nearest to the target.
	bounds := wordBoundaries(window)
	for i := len(bounds) - 1; i >= 0; i-- {
		if k := bounds[i]; k >= 1 && k <= target && safe(k) {
			return k
		}
	}

	// 4. Nearest markdown-safe offset regardless of lexical quality.
	for k := target; k >= 1; k-- {
		if safe(k) {
			return k
		}
	}

	// Nothing in the window is safe: force the minimum advance at target,
	// backed off to a rune boundary. Scanning past the window would decide
	// on bytes that may still be streaming in, and the decision must not
	// change once made.
	k := target
	for k > 1 && k < len(remaining) && !utf8.RuneStart(remaining[k]) {
		k--
	}
	return k
}

// wordBoundaries returns the byte offsets after each Unicode word segment.
func wordBoundaries(s string) []int {
	var bounds []int
	state := -1
	off := 0
	var word string
	for len(s) > 0 {
		word, s, state = uniseg.FirstWordInString(s, state)
		off += len(word)
		bounds = append(bounds, off)
	}
	return bounds
}
