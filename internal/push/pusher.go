// Package push keeps a set of platform messages in sync with a growing
// text stream. The splitter decides the message boundaries; the pusher owns
// which message holds which chunk and edits only what changed.
package push

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"llmgram/internal/markdown"
)

// Cursor is appended to the tail message while the stream is still open.
const Cursor = "▌"

// Sink abstracts the platform surface the pusher writes to.
type Sink interface {
	// Create posts a new message and returns its platform ID.
	Create(ctx context.Context, text string) (int, error)
	// Edit replaces the content of an existing message.
	Edit(ctx context.Context, id int, text string) error
}

type message struct {
	id       int
	lastSent string
}

// Pusher accumulates streamed text and mirrors it onto sink messages. Text
// and status updates arrive from the stream goroutine; Sync runs from the
// ticker loop. A sync that is still talking to the platform when the next
// tick fires is not overlapped, the tick is skipped.
type Pusher struct {
	sink   Sink
	maxLen int
	log    *logrus.Entry

	mu     sync.Mutex
	text   strings.Builder
	status string
	msgs   []message

	syncMu sync.Mutex // serializes Sync/Finalize bodies
	busy   bool
}

func New(sink Sink, maxLen int, log *logrus.Entry) *Pusher {
	if maxLen < 32 {
		maxLen = 32
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pusher{sink: sink, maxLen: maxLen, log: log}
}

// Append adds a streamed text fragment.
func (p *Pusher) Append(fragment string) {
	p.mu.Lock()
	p.text.WriteString(fragment)
	p.mu.Unlock()
}

// SetStatus sets the phase line shown under the streamed text, for example
// while a tool runs. Empty clears it.
func (p *Pusher) SetStatus(status string) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
}

// Text returns the full accumulated text.
func (p *Pusher) Text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text.String()
}

// Sync pushes the current state to the sink with a streaming cursor on the
// tail message. If a previous Sync is still in flight the call returns
// immediately; the next tick will catch up.
func (p *Pusher) Sync(ctx context.Context) {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return
	}
	p.busy = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.busy = false
		p.mu.Unlock()
	}()

	p.sync(ctx, true)
}

// Finalize pushes the terminal state: no cursor, no status. It blocks on
// any in-flight Sync so the final content always wins.
func (p *Pusher) Finalize(ctx context.Context) {
	p.mu.Lock()
	p.status = ""
	p.mu.Unlock()
	p.sync(ctx, false)
}

func (p *Pusher) sync(ctx context.Context, streaming bool) {
	p.syncMu.Lock()
	defer p.syncMu.Unlock()

	p.mu.Lock()
	text := p.text.String()
	status := p.status
	p.mu.Unlock()

	decoration := ""
	if streaming {
		decoration = tailDecoration(status)
	}
	if text == "" && decoration == "" {
		return
	}

	// Reserve tail-message room for the cursor and status line so the
	// decorated message still fits the platform limit.
	lastLen := p.maxLen - len(decoration)
	chunks := markdown.SplitWithBudgets(text, p.maxLen, lastLen)

	for i, chunk := range chunks {
		display := chunk.Display
		if i == len(chunks)-1 {
			display += decoration
		}
		if display == "" {
			continue
		}

		if i < len(p.msgs) {
			if p.msgs[i].lastSent == display {
				continue
			}
			if err := p.sink.Edit(ctx, p.msgs[i].id, display); err != nil {
				p.log.WithError(err).Debug("message edit failed")
				continue
			}
			p.msgs[i].lastSent = display
			continue
		}

		id, err := p.sink.Create(ctx, display)
		if err != nil {
			p.log.WithError(err).Warn("message create failed")
			return
		}
		p.msgs = append(p.msgs, message{id: id, lastSent: display})
	}
}

// AdoptMessage seeds the pusher with an already-created placeholder message
// so the first sync edits it instead of posting a second message.
func (p *Pusher) AdoptMessage(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.msgs) == 0 {
		p.msgs = append(p.msgs, message{id: id})
	}
}

// MessageCount reports how many platform messages the pusher has written.
func (p *Pusher) MessageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func tailDecoration(status string) string {
	if status == "" {
		return Cursor
	}
	return "\n\n🔧 " + status + " " + Cursor
}
