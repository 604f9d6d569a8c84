package llm

import (
	"fmt"
	"strings"
)

// flatMessage is a provider-neutral role+text rendering of a Message. The
// inline tag protocol carries tool traffic inside ordinary text, so every
// provider sees plain chat messages: tool calls are re-rendered as the tag
// the model originally emitted and tool results become user-role text.
type flatMessage struct {
	role Role
	text string
}

func flattenMessages(msgs []Message) []flatMessage {
	out := make([]flatMessage, 0, len(msgs))
	for _, msg := range msgs {
		var sb strings.Builder
		role := msg.Role
		for _, part := range msg.Parts {
			switch part.Type {
			case PartText:
				sb.WriteString(part.Text)
			case PartToolCall:
				if part.ToolCall != nil {
					fmt.Fprintf(&sb, "\n<tool-call tool=%q>%s</tool-call>",
						part.ToolCall.Name, part.ToolCall.Arguments)
				}
			case PartToolResult:
				if part.ToolResult != nil {
					role = RoleUser
					fmt.Fprintf(&sb, "Result of tool %q:\n%s",
						part.ToolResult.Name, part.ToolResult.Content)
				}
			}
		}
		text := strings.TrimSpace(sb.String())
		if text == "" {
			continue
		}
		out = append(out, flatMessage{role: role, text: text})
	}
	return out
}

// splitSystem separates the system prompt from the conversational messages.
func splitSystem(msgs []flatMessage) (string, []flatMessage) {
	var system []string
	rest := make([]flatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.role == RoleSystem {
			system = append(system, m.text)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
