package llm

import (
	"context"
	"fmt"
)

// MockProvider is a scripted Provider for tests. Each queued response is
// streamed as a sequence of text-delta fragments followed by a done event.
type MockProvider struct {
	name      string
	responses [][]Event
	calls     int
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (p *MockProvider) Name() string { return p.name }

// AddTextResponse queues a response streamed as a single text fragment.
func (p *MockProvider) AddTextResponse(text string) *MockProvider {
	return p.AddFragments(text)
}

// AddFragments queues a response streamed fragment by fragment, letting
// tests control exactly how text is torn across deltas.
func (p *MockProvider) AddFragments(fragments ...string) *MockProvider {
	var events []Event
	for _, f := range fragments {
		if f != "" {
			events = append(events, Event{Type: EventTextDelta, Text: f})
		}
	}
	events = append(events, Event{Type: EventDone, Finish: FinishStop})
	p.responses = append(p.responses, events)
	return p
}

// AddEvents queues a raw event sequence.
func (p *MockProvider) AddEvents(events ...Event) *MockProvider {
	p.responses = append(p.responses, events)
	return p
}

// Calls reports how many times Stream was invoked.
func (p *MockProvider) Calls() int { return p.calls }

func (p *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if len(p.responses) == 0 {
		return nil, fmt.Errorf("mock provider %q: no scripted responses left", p.name)
	}
	events := p.responses[0]
	p.responses = p.responses[1:]
	p.calls++

	return newEventStream(ctx, func(ctx context.Context, out chan<- Event) error {
		for _, ev := range events {
			if ev.Type == EventError && ev.Err != nil {
				return ev.Err
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}), nil
}
