package engine

import (
	"context"
	"errors"
	"strings"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"

	"github.com/kazz187/deepagent/internal/model"
)

// ClaudeCodeEngine runs a turn through the Claude Code CLI. The SDK call is
// synchronous, so the stream carries a single terminal token event with the
// full result text.
type ClaudeCodeEngine struct {
	workdir string
}

func NewClaudeCodeEngine(workdir string) *ClaudeCodeEngine {
	return &ClaudeCodeEngine{workdir: workdir}
}

func (e *ClaudeCodeEngine) Stream(ctx context.Context, req Request) (<-chan Event, <-chan error, error) {
	events := make(chan Event, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		system, prompt := splitMessages(req.Messages)
		opts := &claudeagent.ClaudeAgentOptions{
			SystemPrompt:   system,
			PermissionMode: claudeagent.PermissionModeBypassPermissions,
		}
		if e.workdir != "" {
			opts.Cwd = e.workdir
		}
		if req.MaxSteps > 0 {
			maxTurns := req.MaxSteps
			opts.MaxTurns = &maxTurns
		}

		result, err := claudeagent.RunQuerySync(ctx, prompt, opts)
		if err != nil {
			errs <- err
			return
		}
		if result.Result == nil {
			errs <- errors.New("engine returned no result")
			return
		}
		if result.Result.IsError {
			msg := result.Result.Result
			if msg == "" {
				msg = "engine returned an error"
			}
			errs <- errors.New(msg)
			return
		}
		select {
		case events <- Event{Kind: EventToken, Content: result.Result.Result}:
		case <-ctx.Done():
		}
	}()

	return events, errs, nil
}

// splitMessages folds system messages into the system prompt and the rest
// into the user prompt, preserving order.
func splitMessages(messages []model.Message) (system, prompt string) {
	var sys, usr []string
	for _, m := range messages {
		switch m.Role {
		case "system":
			sys = append(sys, m.Content)
		default:
			usr = append(usr, m.Content)
		}
	}
	return strings.Join(sys, "\n\n"), strings.Join(usr, "\n\n")
}
