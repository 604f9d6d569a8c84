package markdown

import (
	"strings"
	"testing"
)

func TestSplitWithBudgetsReservedTail(t *testing.T) {
	chunks := SplitWithBudgets("0123456789AB", 10, 8)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[0].Display != "0123456789" || chunks[1].Display != "AB" {
		t.Errorf("displays = %q, %q", chunks[0].Display, chunks[1].Display)
	}

	// Growing the input must not move the finalized first chunk.
	grown := SplitWithBudgets("0123456789ABCDEFG", 10, 8)
	if grown[0].Start != chunks[0].Start || grown[0].End != chunks[0].End {
		t.Errorf("first chunk moved: was [%d,%d), now [%d,%d)",
			chunks[0].Start, chunks[0].End, grown[0].Start, grown[0].End)
	}
}

func TestSplitPrefersNewline(t *testing.T) {
	chunks := Split("aaaa\nbbbb cccc", 12)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %v", chunks)
	}
	if chunks[0].End != 5 {
		t.Errorf("split at %d, want the newline boundary 5", chunks[0].End)
	}
	if chunks[0].Display != "aaaa" {
		t.Errorf("trailing newline not trimmed: %q", chunks[0].Display)
	}
}

func TestSplitFallsBackToWhitespace(t *testing.T) {
	chunks := Split("aaaaabbbbb cccccddddd", 15)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %v", chunks)
	}
	if chunks[0].End != 11 {
		t.Errorf("split at %d, want after the space at 11", chunks[0].End)
	}
	if chunks[0].Display != "aaaaabbbbb" {
		t.Errorf("display = %q", chunks[0].Display)
	}
}

func TestSplitForcedProgressWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("a", 50)
	chunks := Split(text, 7)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	prev := 0
	for i, c := range chunks {
		if c.Start != prev {
			t.Fatalf("chunk %d starts at %d, want %d", i, c.Start, prev)
		}
		if c.End <= c.Start {
			t.Fatalf("chunk %d makes no progress: [%d,%d)", i, c.Start, c.End)
		}
		if i < len(chunks)-1 && c.End-c.Start > 7 {
			t.Errorf("chunk %d overflows budget: %d bytes", i, c.End-c.Start)
		}
		prev = c.End
	}
	if prev != len(text) {
		t.Errorf("coverage ends at %d, want %d", prev, len(text))
	}
}

func TestSplitTinyBudgetsLoseNothing(t *testing.T) {
	text := "ab cd ef"
	for maxLen := 1; maxLen <= 7; maxLen++ {
		chunks := Split(text, maxLen)
		prev := 0
		for i, c := range chunks {
			if c.Start != prev || c.End <= c.Start {
				t.Fatalf("maxLen %d: chunk %d spans [%d,%d) after %d", maxLen, i, c.Start, c.End, prev)
			}
			prev = c.End
		}
		if prev != len(text) {
			t.Errorf("maxLen %d: coverage ends at %d", maxLen, prev)
		}
	}
}

func TestSplitStabilityWhileGrowing(t *testing.T) {
	full := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 4)
	var prev []Chunk
	for n := 1; n <= len(full); n++ {
		cur := Split(full[:n], 24)
		// Every non-final chunk of the previous call must reappear with
		// the same raw span.
		for i := 0; i < len(prev)-1; i++ {
			if i >= len(cur) {
				t.Fatalf("n=%d: finalized chunk %d disappeared", n, i)
			}
			if cur[i].Start != prev[i].Start || cur[i].End != prev[i].End {
				t.Fatalf("n=%d: chunk %d moved from [%d,%d) to [%d,%d)",
					n, i, prev[i].Start, prev[i].End, cur[i].Start, cur[i].End)
			}
		}
		prev = cur
	}
}

// Marker-dense text can make an entire window unsafe, forcing the split at
// the budget itself. That forced offset depends only on the window, so the
// chunk must stay put as more text streams in.
func TestSplitStabilityWithDenseMarkers(t *testing.T) {
	full := "**\n~~wordy \nwordy b ```wordy a\n````wordy `~~```*"
	var prev []Chunk
	for n := 1; n <= len(full); n++ {
		cur := Split(full[:n], 13)
		for i := 0; i < len(prev)-1; i++ {
			if i >= len(cur) {
				t.Fatalf("n=%d: finalized chunk %d disappeared", n, i)
			}
			if cur[i].Start != prev[i].Start || cur[i].End != prev[i].End {
				t.Fatalf("n=%d: chunk %d moved from [%d,%d) to [%d,%d)",
					n, i, prev[i].Start, prev[i].End, cur[i].Start, cur[i].End)
			}
		}
		prev = cur
	}
}

func TestSplitBalancedMarkersPerChunk(t *testing.T) {
	text := "intro **bold words run long here** then `code span` and ~~strike text~~ more **again bold** tail"
	for _, maxLen := range []int{16, 24, 40} {
		for _, c := range Split(text, maxLen) {
			if strings.Count(c.Display, "**")%2 != 0 {
				t.Errorf("maxLen %d: odd ** count in %q", maxLen, c.Display)
			}
			if strings.Count(c.Display, "`")%2 != 0 {
				t.Errorf("maxLen %d: odd backtick count in %q", maxLen, c.Display)
			}
			if strings.Count(c.Display, "~~")%2 != 0 {
				t.Errorf("maxLen %d: odd ~~ count in %q", maxLen, c.Display)
			}
		}
	}
}

func TestSplitAvoidsLinkInterior(t *testing.T) {
	// The whitespace candidates nearest the budget all fall inside the
	// link; the split must back off to the space before it.
	text := "aa [some link text](http://example.com) tail words beyond"
	chunks := Split(text, 39)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %v", chunks)
	}
	if chunks[0].End != 3 {
		t.Errorf("split at %d, want 3 (before the link)", chunks[0].End)
	}
	if chunks[0].Display != "aa" {
		t.Errorf("display = %q", chunks[0].Display)
	}
}

func TestSplitFenceContentAlignsToLines(t *testing.T) {
	text := "```\nline one\nline two\nline three\n"
	chunks := Split(text, 14)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %v", chunks)
	}
	for i := 1; i < len(chunks); i++ {
		if start := chunks[i].Start; text[start-1] != '\n' {
			t.Errorf("chunk %d starts mid-line at %d", i, start)
		}
	}
	// Fence-content whitespace is preserved verbatim.
	if got := chunks[0].Display; strings.TrimRight(got, "\n") == got {
		t.Errorf("fence content trimmed: %q", got)
	}
}
