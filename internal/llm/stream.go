package llm

import (
	"context"
	"io"
)

// eventStream adapts a producer function to the pull-based Stream interface.
// The producer runs in its own goroutine and is cancelled when the stream is
// closed.
type eventStream struct {
	events <-chan Event
	errc   <-chan error
	cancel context.CancelFunc

	err  error
	done bool
}

// newEventStream starts run in a goroutine and returns a Stream over the
// events it sends. Recv returns io.EOF once run finishes without error.
func newEventStream(ctx context.Context, run func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	events := make(chan Event, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(events)
		errc <- run(ctx, events)
	}()
	return &eventStream{events: events, errc: errc, cancel: cancel}
}

func (s *eventStream) Recv() (Event, error) {
	if s.done {
		return Event{}, s.finishErr()
	}
	ev, ok := <-s.events
	if !ok {
		s.done = true
		return Event{}, s.finishErr()
	}
	return ev, nil
}

func (s *eventStream) finishErr() error {
	if s.err == nil {
		if err := <-s.errc; err != nil {
			s.err = err
		} else {
			s.err = io.EOF
		}
	}
	return s.err
}

func (s *eventStream) Close() error {
	s.cancel()
	// Drain so the producer goroutine is not blocked on a full channel.
	for range s.events {
	}
	s.done = true
	return nil
}
