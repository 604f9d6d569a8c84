package tools

import (
	"context"
	"encoding/json"
	"time"

	"llmgram/internal/llm"
)

// CurrentTimeTool reports the current date and time. Chat models have no
// clock; this keeps "what day is it" answers honest.
type CurrentTimeTool struct {
	now func() time.Time
}

func NewCurrentTimeTool() *CurrentTimeTool {
	return &CurrentTimeTool{now: time.Now}
}

func (t *CurrentTimeTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "current_time",
		Description: "Get the current date and time, with UTC offset.",
		Schema: map[string]interface{}{
			"type":                 "object",
			"properties":           map[string]interface{}{},
			"additionalProperties": false,
		},
	}
}

func (t *CurrentTimeTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return t.now().Format("Monday, 2 January 2006 15:04:05 MST (UTC-07:00)"), nil
}
