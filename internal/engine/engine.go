// Package engine defines the boundary to the opaque reasoning engine that
// consumes a message list and produces a stream of generation and tool
// events.
package engine

import (
	"context"
	"sync"

	"github.com/kazz187/deepagent/internal/model"
)

type EventKind string

const (
	EventToken     EventKind = "token"
	EventToolStart EventKind = "tool_start"
	EventToolEnd   EventKind = "tool_end"
)

// Event is one item of the reasoning engine's stream. Content is set for
// token events; Tool, Input and Output for tool events.
type Event struct {
	Kind    EventKind
	Content string
	Tool    string
	Input   string
	Output  string
}

// ToolDispatcher invokes one named tool on behalf of the reasoning engine.
// The result is raw text; callers inspect it for failure signals rather
// than relying on the error return alone.
type ToolDispatcher interface {
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
	Available() []string
}

// FeedbackBuffer carries observer feedback produced while a run is in
// flight back into the engine, so later steps see it in their prompt.
// Add and Drain are safe to call from different goroutines.
type FeedbackBuffer struct {
	mu    sync.Mutex
	notes []string
}

func (b *FeedbackBuffer) Add(note string) {
	if note == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notes = append(b.notes, note)
}

// Drain returns the accumulated notes and resets the buffer.
func (b *FeedbackBuffer) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	notes := b.notes
	b.notes = nil
	return notes
}

// Request configures one execution run.
type Request struct {
	Messages []model.Message
	ThreadID string
	UserID   string
	MaxSteps int
	Tools    ToolDispatcher
	Feedback *FeedbackBuffer
}

// Engine streams events for a run. The event channel closes when the stream
// ends; a value on the error channel means the stream itself failed and no
// further events will arrive. Consumers must tolerate arbitrary failures
// from the stream.
type Engine interface {
	Stream(ctx context.Context, req Request) (<-chan Event, <-chan error, error)
}
