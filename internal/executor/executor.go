// Package executor drives the reasoning engine's event stream, keeping the
// thread's task list in step with what the stream reports.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kazz187/deepagent/internal/engine"
	"github.com/kazz187/deepagent/internal/todo"
	"github.com/kazz187/deepagent/pkg/cerr"
)

// WriteTodosTool is the task-list-mutation tool. Its invocations update the
// list through the store directly, so the state machine only re-emits.
const WriteTodosTool = "write_todos"

const truncateLimit = 500

// Run event types emitted to the caller.
const (
	EventStatus      = "status"
	EventPlan        = "plan"
	EventTodos       = "todos"
	EventToken       = "token"
	EventToolStart   = "tool_start"
	EventToolEnd     = "tool_end"
	EventObservation = "observation"
	EventError       = "error"
	EventDone        = "done"
)

// RunEvent is one item of a run's outward event stream, suitable for a live
// UI to re-render from.
type RunEvent struct {
	Type     string      `json:"type"`
	Content  string      `json:"content,omitempty"`
	Tool     string      `json:"tool,omitempty"`
	Input    string      `json:"input,omitempty"`
	Output   string      `json:"output,omitempty"`
	Todos    []todo.Item `json:"todos,omitempty"`
	Steps    []string    `json:"plan,omitempty"`
	Summary  string      `json:"summary,omitempty"`
	Severity string      `json:"severity,omitempty"`
}

// Result is what a completed run produced.
type Result struct {
	Reply        string
	Observations []string
}

// TaskObserver critiques a finished task. Implementations must treat their
// own failure as "no feedback".
type TaskObserver interface {
	CritiqueTaskResult(ctx context.Context, task todo.Item, result string, remaining []todo.Item) string
}

// Executor owns the task state machine for execution runs.
type Executor struct {
	todos    *todo.Store
	observer TaskObserver
	logger   *slog.Logger
}

func New(todos *todo.Store, observer TaskObserver, logger *slog.Logger) *Executor {
	return &Executor{todos: todos, observer: observer, logger: logger}
}

// ExecutePlan consumes the engine's stream for one run, emitting run events
// and transitioning task statuses. On a stream failure every pending or
// in-progress item is marked failed and a classified error event is emitted
// before the error returns.
func (x *Executor) ExecutePlan(ctx context.Context, threadID string, eng engine.Engine, req engine.Request, emit func(RunEvent)) (Result, error) {
	events, errs, err := eng.Stream(ctx, req)
	if err != nil {
		return Result{}, x.abort(ctx, threadID, emit, err)
	}

	var reply strings.Builder
	var observations []string
	for {
		select {
		case <-ctx.Done():
			return Result{Reply: reply.String(), Observations: observations},
				x.abort(ctx, threadID, emit, ctx.Err())
		case streamErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return Result{Reply: reply.String(), Observations: observations},
				x.abort(ctx, threadID, emit, streamErr)
		case ev, ok := <-events:
			if !ok {
				// The stream may have closed right after queueing its
				// terminal error; that error decides the outcome.
				if errs != nil {
					if streamErr, pending := <-errs; pending && streamErr != nil {
						return Result{Reply: reply.String(), Observations: observations},
							x.abort(ctx, threadID, emit, streamErr)
					}
				}
				x.finalize(ctx, threadID, emit)
				emit(RunEvent{Type: EventDone})
				return Result{Reply: reply.String(), Observations: observations}, nil
			}
			obs := x.handleEvent(ctx, threadID, ev, &reply, emit)
			if obs != "" {
				observations = append(observations, obs)
				if req.Feedback != nil {
					req.Feedback.Add(obs)
				}
			}
		}
	}
}

func (x *Executor) handleEvent(ctx context.Context, threadID string, ev engine.Event, reply *strings.Builder, emit func(RunEvent)) string {
	switch ev.Kind {
	case engine.EventToken:
		if ev.Content != "" {
			reply.WriteString(ev.Content)
			emit(RunEvent{Type: EventToken, Content: ev.Content})
		}
	case engine.EventToolStart:
		emit(RunEvent{Type: EventToolStart, Tool: ev.Tool, Input: truncate(ev.Input)})
		emit(RunEvent{Type: EventStatus, Content: fmt.Sprintf("Running %s...", ev.Tool)})
		if ev.Tool != WriteTodosTool {
			x.startFirstPending(ctx, threadID, emit)
		}
	case engine.EventToolEnd:
		emit(RunEvent{Type: EventToolEnd, Tool: ev.Tool, Output: truncate(ev.Output)})
		emit(RunEvent{Type: EventStatus, Content: fmt.Sprintf("Finished %s", ev.Tool)})
		if ev.Tool == WriteTodosTool {
			x.reemit(ctx, threadID, emit)
			return ""
		}
		return x.settleInProgress(ctx, threadID, ev.Output, emit)
	}
	return ""
}

// startFirstPending moves the first pending item to in_progress.
func (x *Executor) startFirstPending(ctx context.Context, threadID string, emit func(RunEvent)) {
	items, err := x.todos.Get(ctx, threadID)
	if err != nil {
		x.logger.Warn("failed to read task list", "thread_id", threadID, "error", err)
		return
	}
	i := todo.FirstPending(items)
	if i < 0 {
		return
	}
	items[i].Status = todo.StatusInProgress
	x.write(ctx, threadID, items, emit)
}

// settleInProgress resolves the in-progress item from the tool's output and
// consults the observer once the task has a terminal status.
func (x *Executor) settleInProgress(ctx context.Context, threadID, output string, emit func(RunEvent)) string {
	items, err := x.todos.Get(ctx, threadID)
	if err != nil {
		x.logger.Warn("failed to read task list", "thread_id", threadID, "error", err)
		return ""
	}
	i := todo.InProgress(items)
	if i < 0 {
		return ""
	}
	if isToolFailed(output) {
		items[i].Status = todo.StatusFailed
	} else {
		items[i].Status = todo.StatusCompleted
	}
	x.write(ctx, threadID, items, emit)

	if x.observer == nil {
		return ""
	}
	var remaining []todo.Item
	for _, item := range items {
		if item.Status == todo.StatusPending {
			remaining = append(remaining, item)
		}
	}
	feedback := x.observer.CritiqueTaskResult(ctx, items[i], output, remaining)
	if feedback != "" {
		emit(RunEvent{Type: EventObservation, Content: feedback})
	}
	return feedback
}

func (x *Executor) reemit(ctx context.Context, threadID string, emit func(RunEvent)) {
	items, err := x.todos.Get(ctx, threadID)
	if err != nil {
		x.logger.Warn("failed to read task list", "thread_id", threadID, "error", err)
		return
	}
	emit(RunEvent{Type: EventTodos, Todos: items})
}

// finalize assumes success for anything still in progress when the stream
// ends without an error.
func (x *Executor) finalize(ctx context.Context, threadID string, emit func(RunEvent)) {
	items, err := x.todos.Get(ctx, threadID)
	if err != nil {
		x.logger.Warn("failed to read task list", "thread_id", threadID, "error", err)
		return
	}
	updated := false
	for i := range items {
		if items[i].Status == todo.StatusInProgress {
			items[i].Status = todo.StatusCompleted
			updated = true
		}
	}
	if updated {
		x.write(ctx, threadID, items, emit)
	}
}

// abort is the crash path: everything unfinished is marked failed and a
// classified error event is emitted.
func (x *Executor) abort(ctx context.Context, threadID string, emit func(RunEvent), cause error) error {
	// The run context may already be cancelled; cleanup still has to land.
	cleanupCtx := context.WithoutCancel(ctx)

	items, err := x.todos.Get(cleanupCtx, threadID)
	if err != nil {
		x.logger.Warn("failed to read task list during cleanup", "thread_id", threadID, "error", err)
	} else {
		updated := false
		for i := range items {
			if items[i].Status == todo.StatusPending || items[i].Status == todo.StatusInProgress {
				items[i].Status = todo.StatusFailed
				updated = true
			}
		}
		if updated {
			x.write(cleanupCtx, threadID, items, emit)
		}
	}

	runErr := cerr.RunErrorOf(cause)
	emit(RunEvent{Type: EventError, Content: runErr.Error(), Severity: runErr.Severity()})
	x.logger.Error("execution run aborted", "thread_id", threadID, "error", cause)
	return runErr
}

func (x *Executor) write(ctx context.Context, threadID string, items []todo.Item, emit func(RunEvent)) {
	written, err := x.todos.Write(ctx, threadID, items)
	if err != nil {
		x.logger.Warn("failed to write task list", "thread_id", threadID, "error", err)
		return
	}
	emit(RunEvent{Type: EventTodos, Todos: written})
}

func truncate(s string) string {
	if len(s) <= truncateLimit {
		return s
	}
	return s[:truncateLimit] + "..."
}
