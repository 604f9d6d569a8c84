package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider over the Chat Completions API. It also
// serves OpenAI-compatible servers (Ollama, LM Studio, proxies) via a custom
// base URL.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	label  string
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: &client, model: model, label: "OpenAI"}
}

// NewOpenAICompatProvider targets any server speaking the Chat Completions
// protocol. Most local servers ignore the API key but the SDK requires one.
func NewOpenAICompatProvider(baseURL, apiKey, model, label string) *OpenAIProvider {
	if apiKey == "" {
		apiKey = "unused"
	}
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)
	return &OpenAIProvider{client: &client, model: model, label: label}
}

func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("%s (%s)", p.label, p.model)
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	system, rest := splitSystem(flattenMessages(req.Messages))
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(rest)+1)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, m := range rest {
		switch m.role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.text))
		default:
			messages = append(messages, openai.UserMessage(m.text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(float64(req.TopP))
	}

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		finish := FinishUnknown
		var usage *Usage
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				usage = &Usage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				events <- Event{Type: EventTextDelta, Text: choice.Delta.Content}
			}
			if choice.FinishReason != "" {
				finish = mapOpenAIFinish(choice.FinishReason)
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("openai stream: %w", err)
		}
		if usage != nil {
			events <- Event{Type: EventUsage, Use: usage}
		}
		events <- Event{Type: EventDone, Finish: finish}
		return nil
	}), nil
}

func mapOpenAIFinish(reason string) FinishReason {
	switch reason {
	case "stop", "end_turn":
		return FinishStop
	case "length", "max_tokens":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishUnknown
	}
}
