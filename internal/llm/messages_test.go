package llm

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFlattenMessages(t *testing.T) {
	call := ToolCall{ID: "c1", Name: "fetch", Arguments: json.RawMessage(`{"url":"x"}`)}
	msgs := []Message{
		SystemText("be terse"),
		UserText("get x"),
		AssistantToolCall("Fetching now.", call),
		ToolResultMessage("c1", "fetch", "the page body"),
		AssistantText("Done."),
	}

	flat := flattenMessages(msgs)
	if len(flat) != 5 {
		t.Fatalf("flat = %d messages, want 5", len(flat))
	}

	// The tool call re-renders as the inline tag inside assistant text.
	if flat[2].role != RoleAssistant {
		t.Errorf("flat[2].role = %q", flat[2].role)
	}
	want := "Fetching now.\n<tool-call tool=\"fetch\">{\"url\":\"x\"}</tool-call>"
	if flat[2].text != want {
		t.Errorf("flat[2].text = %q, want %q", flat[2].text, want)
	}

	// Tool results become user-role text.
	if flat[3].role != RoleUser {
		t.Errorf("flat[3].role = %q, want user", flat[3].role)
	}
	if flat[3].text != "Result of tool \"fetch\":\nthe page body" {
		t.Errorf("flat[3].text = %q", flat[3].text)
	}
}

func TestFlattenMessagesDropsEmpty(t *testing.T) {
	flat := flattenMessages([]Message{
		UserText("hi"),
		{Role: RoleAssistant, Parts: []Part{{Type: PartText, Text: "   "}}},
	})
	if len(flat) != 1 {
		t.Errorf("flat = %d messages, want empty one dropped", len(flat))
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem(flattenMessages([]Message{
		SystemText("prompt one"),
		UserText("hi"),
		SystemText("prompt two"),
		AssistantText("hello"),
	}))
	if system != "prompt one\n\nprompt two" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 2 || rest[0].role != RoleUser || rest[1].role != RoleAssistant {
		t.Errorf("rest = %+v", rest)
	}
}

func TestToolPrompt(t *testing.T) {
	if got := ToolPrompt(nil); got != "" {
		t.Errorf("ToolPrompt(nil) = %q, want empty", got)
	}

	specs := []ToolSpec{{
		Name:        "weather",
		Description: "current weather",
		Schema:      map[string]interface{}{"type": "object"},
	}}
	got := ToolPrompt(specs)
	for _, sub := range []string{`<tool-call tool="NAME">`, "weather", "current weather", `"type":"object"`} {
		if !strings.Contains(got, sub) {
			t.Errorf("ToolPrompt missing %q in %q", sub, got)
		}
	}
}
