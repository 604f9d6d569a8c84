package push

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type sinkOp struct {
	kind string // "create" or "edit"
	id   int
	text string
}

type fakeSink struct {
	mu        sync.Mutex
	ops       []sinkOp
	nextID    int
	createErr error
	editErr   error
}

func (s *fakeSink) Create(ctx context.Context, text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		err := s.createErr
		s.createErr = nil
		return 0, err
	}
	s.nextID++
	s.ops = append(s.ops, sinkOp{kind: "create", id: s.nextID, text: text})
	return s.nextID, nil
}

func (s *fakeSink) Edit(ctx context.Context, id int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editErr != nil {
		err := s.editErr
		s.editErr = nil
		return err
	}
	s.ops = append(s.ops, sinkOp{kind: "edit", id: id, text: text})
	return nil
}

// current returns the latest text per message id, in creation order.
func (s *fakeSink) current() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := map[int]string{}
	var order []int
	for _, op := range s.ops {
		if _, seen := byID[op.id]; !seen {
			order = append(order, op.id)
		}
		byID[op.id] = op.text
	}
	out := make([]string, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func (s *fakeSink) opCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

func TestPusherStreamingCursor(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, 100, nil)
	ctx := context.Background()

	p.Append("Hello")
	p.Sync(ctx)

	got := sink.current()
	if len(got) != 1 || got[0] != "Hello"+Cursor {
		t.Fatalf("messages = %v, want [Hello%s]", got, Cursor)
	}

	p.Finalize(ctx)
	got = sink.current()
	if len(got) != 1 || got[0] != "Hello" {
		t.Errorf("after finalize: %v", got)
	}
}

func TestPusherStatusDecoration(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, 200, nil)
	ctx := context.Background()

	p.Append("Working on it.")
	p.SetStatus("Running tool weather…")
	p.Sync(ctx)

	got := sink.current()
	want := "Working on it.\n\n🔧 Running tool weather… " + Cursor
	if len(got) != 1 || got[0] != want {
		t.Fatalf("messages = %v, want [%s]", got, want)
	}

	p.SetStatus("")
	p.Sync(ctx)
	got = sink.current()
	if got[0] != "Working on it."+Cursor {
		t.Errorf("after status clear: %q", got[0])
	}
}

func TestPusherAdoptsPlaceholder(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, 100, nil)
	p.AdoptMessage(42)

	p.Append("reply text")
	p.Sync(context.Background())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.ops) != 1 || sink.ops[0].kind != "edit" || sink.ops[0].id != 42 {
		t.Fatalf("ops = %v, want single edit of 42", sink.ops)
	}
}

func TestPusherSkipsUnchanged(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, 100, nil)
	ctx := context.Background()

	p.Append("stable")
	p.Sync(ctx)
	n := sink.opCount()
	p.Sync(ctx)
	if sink.opCount() != n {
		t.Errorf("unchanged sync issued sink calls: %d -> %d", n, sink.opCount())
	}
}

func TestPusherOverflowsIntoNewMessages(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, 32, nil)
	ctx := context.Background()

	p.Append(strings.Repeat("a", 32))
	p.Sync(ctx)
	p.Append(strings.Repeat("b", 8))
	p.Sync(ctx)
	p.Finalize(ctx)

	got := sink.current()
	if len(got) != 2 {
		t.Fatalf("messages = %d, want 2: %v", len(got), got)
	}
	if got[0] != strings.Repeat("a", 32) || got[1] != strings.Repeat("b", 8) {
		t.Errorf("final messages = %v", got)
	}
	if p.MessageCount() != 2 {
		t.Errorf("MessageCount = %d", p.MessageCount())
	}
}

func TestPusherFinalizeEmptyIsSilent(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, 100, nil)
	p.Finalize(context.Background())
	if sink.opCount() != 0 {
		t.Errorf("ops = %d, want 0", sink.opCount())
	}
}

func TestPusherCreateFailureRetriedNextSync(t *testing.T) {
	sink := &fakeSink{createErr: errors.New("flood control")}
	p := New(sink, 100, nil)
	ctx := context.Background()

	p.Append("text")
	p.Sync(ctx) // create fails, message not recorded
	if p.MessageCount() != 0 {
		t.Fatalf("MessageCount = %d after failed create", p.MessageCount())
	}
	p.Sync(ctx) // error consumed, this one lands
	got := sink.current()
	if len(got) != 1 || got[0] != "text"+Cursor {
		t.Errorf("messages = %v", got)
	}
}

func TestPusherEditFailureKeepsLastSent(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, 100, nil)
	ctx := context.Background()

	p.Append("v1")
	p.Sync(ctx)

	sink.mu.Lock()
	sink.editErr = errors.New("message is not modified")
	sink.mu.Unlock()

	p.Append(" v2")
	p.Sync(ctx) // edit fails silently
	p.Sync(ctx) // retried because lastSent was not updated

	got := sink.current()
	if len(got) != 1 || got[0] != "v1 v2"+Cursor {
		t.Errorf("messages = %v", got)
	}
}

func TestPusherMarkdownCompletedPerMessage(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, 100, nil)
	ctx := context.Background()

	p.Append("some **bold tex")
	p.Sync(ctx)

	got := sink.current()
	if len(got) != 1 {
		t.Fatalf("messages = %v", got)
	}
	// The unterminated ** is closed before display.
	if !strings.HasSuffix(strings.TrimSuffix(got[0], Cursor), "**") {
		t.Errorf("display not completed: %q", got[0])
	}
}
