package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kazz187/deepagent/internal/model"
)

const defaultMaxSteps = 25

type roleResolver interface {
	Resolve(role string) (model.Backend, error)
}

// ModelEngine drives a plain chat-completions backend through a bounded
// tool loop. Each step the backend either answers directly or requests one
// tool invocation as a JSON object; tool results are fed back as the next
// user message. Dispatch failures are folded into the tool output text so
// downstream failure detection sees them.
type ModelEngine struct {
	resolver roleResolver
	logger   *slog.Logger
}

func NewModelEngine(resolver roleResolver, logger *slog.Logger) *ModelEngine {
	return &ModelEngine{resolver: resolver, logger: logger}
}

type toolRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

func (e *ModelEngine) Stream(ctx context.Context, req Request) (<-chan Event, <-chan error, error) {
	backend, err := e.resolver.Resolve("chat")
	if err != nil {
		return nil, nil, err
	}

	events := make(chan Event, 8)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		defer close(errs)
		if err := e.run(ctx, backend, req, events); err != nil {
			errs <- err
		}
	}()
	return events, errs, nil
}

func (e *ModelEngine) run(ctx context.Context, backend model.Backend, req Request, events chan<- Event) error {
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	messages := append([]model.Message{}, req.Messages...)
	if req.Tools != nil {
		messages = append([]model.Message{{Role: "system", Content: toolProtocolPrompt(req.Tools.Available())}}, messages...)
	}

	for step := 0; step < maxSteps; step++ {
		if req.Feedback != nil {
			if notes := req.Feedback.Drain(); len(notes) > 0 {
				messages = append(messages, model.Message{
					Role:    "user",
					Content: "Observer feedback:\n- " + strings.Join(notes, "\n- "),
				})
			}
		}

		out, err := model.GenerateWithRetry(ctx, backend, messages)
		if err != nil {
			return err
		}

		call, ok := parseToolRequest(out)
		if !ok || req.Tools == nil {
			if out != "" {
				emit(ctx, events, Event{Kind: EventToken, Content: out})
			}
			return nil
		}

		input, _ := json.Marshal(call.Arguments)
		emit(ctx, events, Event{Kind: EventToolStart, Tool: call.Tool, Input: string(input)})

		result, err := req.Tools.Invoke(ctx, call.Tool, call.Arguments)
		if err != nil {
			result = fmt.Sprintf(`{"isError": true, "error": %q}`, err.Error())
		}
		emit(ctx, events, Event{Kind: EventToolEnd, Tool: call.Tool, Output: result})

		messages = append(messages,
			model.Message{Role: "assistant", Content: out},
			model.Message{Role: "user", Content: "Tool result:\n" + result},
		)
	}

	e.logger.Warn("step budget exhausted", "thread_id", req.ThreadID, "max_steps", maxSteps)
	emit(ctx, events, Event{Kind: EventToken, Content: "Step budget exhausted before the task finished."})
	return nil
}

func emit(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// parseToolRequest detects a tool invocation reply. The whole reply must be
// one JSON object with a "tool" key; prose replies fall through to the
// final answer path.
func parseToolRequest(out string) (toolRequest, bool) {
	trimmed := strings.TrimSpace(out)
	if !strings.HasPrefix(trimmed, "{") {
		return toolRequest{}, false
	}
	var call toolRequest
	if err := json.Unmarshal([]byte(trimmed), &call); err != nil || call.Tool == "" {
		return toolRequest{}, false
	}
	return call, true
}

func toolProtocolPrompt(tools []string) string {
	return fmt.Sprintf(`You can call the following tools: %s.
To call a tool, reply with ONLY a JSON object: {"tool": "<name>", "arguments": {...}}.
To answer the user directly, reply with plain text and no JSON object.
After a tool call you will receive its result as the next message.`, strings.Join(tools, ", "))
}
