package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider using the Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: &client, model: model}
}

func (p *AnthropicProvider) Name() string {
	return fmt.Sprintf("Anthropic (%s)", p.model)
}

func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		system, messages := buildAnthropicMessages(req.Messages)

		model := p.model
		if req.Model != "" {
			model = req.Model
		}
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: maxTokens(req.MaxOutputTokens, 4096),
			Messages:  messages,
		}
		if system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}
		if req.Temperature > 0 {
			params.Temperature = anthropic.Float(float64(req.Temperature))
		}
		if req.TopP > 0 {
			params.TopP = anthropic.Float(float64(req.TopP))
		}

		finish := FinishUnknown
		var lastUsage *Usage
		stream := p.client.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					events <- Event{Type: EventTextDelta, Text: delta.Text}
				}
			case anthropic.MessageDeltaEvent:
				if variant.Usage.OutputTokens > 0 {
					lastUsage = &Usage{
						InputTokens:  int(variant.Usage.InputTokens),
						OutputTokens: int(variant.Usage.OutputTokens),
					}
				}
				if variant.Delta.StopReason != "" {
					finish = mapAnthropicFinish(string(variant.Delta.StopReason))
				}
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("anthropic stream: %w", err)
		}
		if lastUsage != nil {
			events <- Event{Type: EventUsage, Use: lastUsage}
		}
		events <- Event{Type: EventDone, Finish: finish}
		return nil
	}), nil
}

// buildAnthropicMessages converts the conversation to Messages API params.
// Consecutive same-role messages are merged since the API rejects runs of
// the same role.
func buildAnthropicMessages(msgs []Message) (string, []anthropic.MessageParam) {
	system, rest := splitSystem(flattenMessages(msgs))

	var out []anthropic.MessageParam
	for _, m := range rest {
		role := anthropic.MessageParamRoleUser
		if m.role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content,
				anthropic.NewTextBlock("\n\n"+m.text))
			continue
		}
		switch role {
		case anthropic.MessageParamRoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.text)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.text)))
		}
	}
	return system, out
}

func mapAnthropicFinish(reason string) FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return FinishStop
	case "max_tokens":
		return FinishLength
	case "refusal":
		return FinishContentFilter
	default:
		return FinishUnknown
	}
}

func maxTokens(requested, fallback int) int64 {
	if requested > 0 {
		return int64(requested)
	}
	return int64(fallback)
}
