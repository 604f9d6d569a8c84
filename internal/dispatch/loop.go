// Package dispatch runs the tool-cycle loop: stream a model response,
// extract at most one inline tool call, execute it, feed the result back,
// and repeat until the model answers without requesting a tool.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"llmgram/internal/llm"
	"llmgram/internal/tagscan"
)

// DefaultMaxCycles bounds tool invocations within a single turn.
const DefaultMaxCycles = 20

// Emitter receives user-visible output as the loop produces it. Text is
// called with plain text fragments in order; Status with short phase
// descriptions (for example while a tool runs). Both are called from the
// loop goroutine.
type Emitter interface {
	Text(fragment string)
	Status(status string)
}

// Result is the outcome of one completed turn.
type Result struct {
	// Text is the full user-visible text, tool-call tags excised.
	Text         string
	FinishReason llm.FinishReason
	Warnings     []string
	ToolCalls    []llm.ToolCall
	// Messages is the conversation including the assistant/tool messages
	// appended during this turn. Callers persist it as the new history.
	Messages []llm.Message
	Usage    llm.Usage
}

// Loop drives the dispatch state machine for a provider and tool registry.
type Loop struct {
	provider  llm.Provider
	tools     *llm.ToolRegistry
	maxCycles int
	log       *logrus.Entry
}

func New(provider llm.Provider, tools *llm.ToolRegistry, log *logrus.Entry) *Loop {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Loop{
		provider:  provider,
		tools:     tools,
		maxCycles: DefaultMaxCycles,
		log:       log,
	}
}

// SetMaxCycles overrides the tool-cycle bound. Values below 1 are ignored.
func (l *Loop) SetMaxCycles(n int) {
	if n >= 1 {
		l.maxCycles = n
	}
}

// Run executes one turn. req.Messages must end with the user message; the
// registered tools are announced via an ephemeral system message that is
// sent to the provider but kept out of Result.Messages. On success the
// emitter has received every text fragment and the Result carries the
// final state.
func (l *Loop) Run(ctx context.Context, req llm.Request, emit Emitter) (*Result, error) {
	messages := append([]llm.Message(nil), req.Messages...)
	var prelude []llm.Message
	if prompt := llm.ToolPrompt(l.tools.AllSpecs()); prompt != "" {
		prelude = []llm.Message{llm.SystemText(prompt)}
	}

	res := &Result{}
	var total strings.Builder
	atSeam := false

	for cycle := 0; cycle < l.maxCycles; cycle++ {
		req.Messages = append(append([]llm.Message(nil), prelude...), messages...)

		cycleText, match, err := l.streamOneResponse(ctx, req, res, &total, &atSeam, emit)
		if err != nil {
			return nil, err
		}

		if match == nil {
			if total.Len() == 0 && len(res.ToolCalls) == 0 {
				return nil, fmt.Errorf("model produced no output")
			}
			if cycleText != "" {
				messages = append(messages, llm.AssistantText(cycleText))
			}
			res.Text = total.String()
			res.Messages = messages
			return res, nil
		}

		call := llm.ToolCall{
			ID:        uuid.NewString(),
			Name:      match.Tool,
			Arguments: parsePayload(match.RawPayload),
		}
		res.ToolCalls = append(res.ToolCalls, call)
		messages = append(messages, llm.AssistantToolCall(cycleText, call))

		emit.Status(fmt.Sprintf("Running tool %s…", call.Name))
		l.log.WithField("tool", call.Name).Info("executing tool")

		content, execErr := l.execute(ctx, call)
		if ctx.Err() != nil {
			// Cancelled mid-execution: the result would never be shown.
			return nil, ctx.Err()
		}
		if execErr != nil {
			l.log.WithField("tool", call.Name).WithError(execErr).Warn("tool failed")
			messages = append(messages, llm.ToolErrorMessage(call.ID, call.Name, execErr.Error()))
		} else {
			messages = append(messages, llm.ToolResultMessage(call.ID, call.Name, content))
		}
		emit.Status("")
	}

	// Cycle budget exhausted: end the turn with what was produced rather
	// than discarding streamed output.
	l.log.WithField("max_cycles", l.maxCycles).Warn("tool cycle limit reached")
	res.Warnings = append(res.Warnings, fmt.Sprintf("tool cycle limit (%d) reached", l.maxCycles))
	res.Text = total.String()
	res.Messages = messages
	if res.Text == "" && len(res.ToolCalls) == 0 {
		return nil, fmt.Errorf("model produced no output")
	}
	return res, nil
}

// streamOneResponse streams a single model response through the tag
// scanner. It returns the plain text this response contributed and the
// first (honored) tool-call match, if any.
func (l *Loop) streamOneResponse(ctx context.Context, req llm.Request, res *Result, total *strings.Builder, atSeam *bool, emit Emitter) (string, *tagscan.Match, error) {
	var cycleText strings.Builder
	var match *tagscan.Match
	var scanner *tagscan.Scanner

	scanner = tagscan.New(func(text string) {
		if *atSeam && total.Len() > 0 {
			prev := total.String()
			if sep := tagscan.BoundarySeparator(prev, text); sep != "" {
				total.WriteString(sep)
				cycleText.WriteString(sep)
				emit.Text(sep)
			}
		}
		*atSeam = false
		total.WriteString(text)
		cycleText.WriteString(text)
		emit.Text(text)
	}, func(m tagscan.Match) {
		if match == nil {
			match = &m
			// One honored call per response: the rest is plain text, and
			// the text on either side of the excised tag meets at a seam.
			scanner.DisableMatching()
			*atSeam = true
		}
	})

	stream, err := l.provider.Stream(ctx, req)
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, err
		}
		switch event.Type {
		case llm.EventTextDelta:
			scanner.Write(event.Text)
		case llm.EventWarning:
			res.Warnings = append(res.Warnings, event.Warning)
		case llm.EventUsage:
			if event.Use != nil {
				res.Usage.InputTokens += event.Use.InputTokens
				res.Usage.OutputTokens += event.Use.OutputTokens
			}
		case llm.EventDone:
			if event.Finish != "" {
				res.FinishReason = event.Finish
			}
		case llm.EventError:
			if event.Err != nil {
				return "", nil, event.Err
			}
		}
	}
	scanner.Flush()

	return cycleText.String(), match, nil
}

// execute runs the tool, isolating panics so a misbehaving tool fails the
// call rather than the process.
func (l *Loop) execute(ctx context.Context, call llm.ToolCall) (content string, err error) {
	tool, ok := l.tools.Get(call.Name)
	if !ok {
		return "", fmt.Errorf("Tool not available: %s", call.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("Tool execution failed: panic: %v", r)
		}
	}()
	content, err = tool.Execute(ctx, call.Arguments)
	if err != nil {
		return "", fmt.Errorf("Tool execution failed: %s", err.Error())
	}
	return content, nil
}

// parsePayload normalizes the raw tag payload into JSON arguments. An empty
// payload becomes an empty object; a payload that is not valid JSON is
// passed through as a JSON string so the tool still sees it.
func parsePayload(raw string) json.RawMessage {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return json.RawMessage("{}")
	}
	if gjson.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	encoded, _ := json.Marshal(raw)
	return json.RawMessage(encoded)
}
