package serve

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
)

// chatMarkdown is a shared goldmark instance with the strikethrough
// extension enabled; Telegram has native <s> support.
var chatMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough),
)

// renderTelegramHTML converts markdown text to Telegram-compatible HTML.
//
// Telegram's Bot API accepts a limited HTML subset:
//
//	<b>, <strong>, <i>, <em>, <u>, <ins>, <s>, <strike>, <del>,
//	<code>, <pre>, <a href>, <blockquote>, <tg-spoiler>
//
// Everything else is mapped to that subset or flattened to text. Code
// blocks keep their language as <pre><code class="language-x">, which
// Telegram uses for syntax highlighting.
func renderTelegramHTML(md string) string {
	if strings.TrimSpace(md) == "" {
		return md
	}

	var buf bytes.Buffer
	if err := chatMarkdown.Convert([]byte(md), &buf); err != nil {
		return html.EscapeString(md)
	}
	return toTelegramHTML(buf.String())
}

type listFrame struct {
	ordered bool
	counter int
}

// toTelegramHTML re-tokenizes goldmark output and emits only the tags
// Telegram accepts.
func toTelegramHTML(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))

	var sb strings.Builder
	var lists []listFrame
	inPre := false
	preCodeOpen := false

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := z.Token()

		switch tt {
		case html.TextToken:
			// The tokenizer unescaped the text; re-escape for Telegram.
			sb.WriteString(html.EscapeString(tok.Data))

		case html.StartTagToken, html.SelfClosingTagToken:
			switch tok.Data {
			case "b", "strong":
				sb.WriteString("<b>")
			case "i", "em":
				sb.WriteString("<i>")
			case "u", "ins":
				sb.WriteString("<u>")
			case "s", "strike", "del":
				sb.WriteString("<s>")
			case "code":
				if inPre {
					// Telegram highlights <pre><code class="language-x">.
					if lang := attrVal(tok.Attr, "class"); strings.HasPrefix(lang, "language-") {
						fmt.Fprintf(&sb, `<code class="%s">`, html.EscapeString(lang))
						preCodeOpen = true
					}
				} else {
					sb.WriteString("<code>")
				}
			case "pre":
				inPre = true
				sb.WriteString("<pre>")
			case "a":
				if href := attrVal(tok.Attr, "href"); href != "" {
					fmt.Fprintf(&sb, `<a href="%s">`, html.EscapeString(href))
				} else {
					sb.WriteString("<a>")
				}
			case "blockquote":
				sb.WriteString("<blockquote>")
			case "br":
				sb.WriteString("\n")
			case "ul":
				lists = append(lists, listFrame{})
			case "ol":
				lists = append(lists, listFrame{ordered: true})
			case "li":
				if n := len(lists); n > 0 && lists[n-1].ordered {
					lists[n-1].counter++
					fmt.Fprintf(&sb, "\n%d. ", lists[n-1].counter)
				} else {
					sb.WriteString("\n• ")
				}
			case "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteString("<b>")
			case "hr":
				sb.WriteString("\n──────────\n")
			}
			// Unknown tags are dropped, their text content survives.

		case html.EndTagToken:
			switch tok.Data {
			case "b", "strong":
				sb.WriteString("</b>")
			case "i", "em":
				sb.WriteString("</i>")
			case "u", "ins":
				sb.WriteString("</u>")
			case "s", "strike", "del":
				sb.WriteString("</s>")
			case "code":
				if inPre {
					if preCodeOpen {
						sb.WriteString("</code>")
						preCodeOpen = false
					}
				} else {
					sb.WriteString("</code>")
				}
			case "pre":
				inPre = false
				sb.WriteString("</pre>")
			case "a":
				sb.WriteString("</a>")
			case "blockquote":
				sb.WriteString("</blockquote>")
			case "p":
				sb.WriteString("\n\n")
			case "ul", "ol":
				if len(lists) > 0 {
					lists = lists[:len(lists)-1]
				}
				sb.WriteString("\n")
			case "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteString("</b>\n\n")
			}
		}
	}

	out := strings.TrimSpace(sb.String())
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return out
}

// attrVal returns the value of a named HTML attribute, or "".
func attrVal(attrs []html.Attribute, name string) string {
	for _, a := range attrs {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
