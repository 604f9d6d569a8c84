package serve

import (
	"strings"
	"testing"
)

func TestRenderTelegramHTML(t *testing.T) {
	cases := []struct {
		name string
		md   string
		want string
	}{
		{"plain", "Hello there.", "Hello there."},
		{"bold", "some **bold** text", "some <b>bold</b> text"},
		{"italic", "an _emphasis_ here", "an <i>emphasis</i> here"},
		{"strikethrough", "~~gone~~", "<s>gone</s>"},
		{"inline code", "run `go test` now", "run <code>go test</code> now"},
		{"link", "[docs](https://example.com)", `<a href="https://example.com">docs</a>`},
		{"heading", "# Title\n\nbody", "<b>Title</b>\n\nbody"},
		{"escapes html", "a < b & c > d", "a &lt; b &amp; c &gt; d"},
		{"horizontal rule", "a\n\n---\n\nb", "a\n\n──────────\n\nb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := renderTelegramHTML(tc.md); got != tc.want {
				t.Errorf("renderTelegramHTML(%q) = %q, want %q", tc.md, got, tc.want)
			}
		})
	}
}

func TestRenderTelegramHTMLCodeBlockLanguage(t *testing.T) {
	got := renderTelegramHTML("```go\nfmt.Println(1)\n```")
	if !strings.Contains(got, `<pre><code class="language-go">`) {
		t.Errorf("language class missing: %q", got)
	}
	if !strings.Contains(got, "fmt.Println(1)") {
		t.Errorf("code content missing: %q", got)
	}
	if !strings.HasSuffix(got, "</code></pre>") {
		t.Errorf("closing tags wrong: %q", got)
	}
}

func TestRenderTelegramHTMLPlainCodeBlock(t *testing.T) {
	got := renderTelegramHTML("```\nraw text\n```")
	if !strings.HasPrefix(got, "<pre>") || !strings.HasSuffix(got, "</pre>") {
		t.Errorf("pre wrapper wrong: %q", got)
	}
	// No language class means no inner <code> element is emitted.
	if strings.Contains(got, "<code") || strings.Contains(got, "</code>") {
		t.Errorf("unexpected code tags: %q", got)
	}
}

func TestRenderTelegramHTMLLists(t *testing.T) {
	got := renderTelegramHTML("- one\n- two\n")
	if !strings.Contains(got, "• one") || !strings.Contains(got, "• two") {
		t.Errorf("bullet list wrong: %q", got)
	}

	got = renderTelegramHTML("1. first\n2. second\n")
	if !strings.Contains(got, "1. first") || !strings.Contains(got, "2. second") {
		t.Errorf("ordered list wrong: %q", got)
	}
}

func TestRenderTelegramHTMLEmptyPassthrough(t *testing.T) {
	if got := renderTelegramHTML("   "); got != "   " {
		t.Errorf("whitespace not passed through: %q", got)
	}
	if got := renderTelegramHTML(""); got != "" {
		t.Errorf("empty not passed through: %q", got)
	}
}
