// Package observer produces advisory critique text at plan and task-result
// checkpoints. Feedback never alters task state and its own failure never
// affects the run.
package observer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kazz187/deepagent/internal/model"
	"github.com/kazz187/deepagent/internal/todo"
)

type roleResolver interface {
	Resolve(role string) (model.Backend, error)
}

// Observer critiques plans and task results with the role="chat" backend.
type Observer struct {
	resolver roleResolver
	logger   *slog.Logger
}

func New(resolver roleResolver, logger *slog.Logger) *Observer {
	return &Observer{resolver: resolver, logger: logger}
}

// CritiquePlan returns advisory feedback on a freshly generated plan, or ""
// when the critique itself fails.
func (o *Observer) CritiquePlan(ctx context.Context, steps []string, todos []todo.Item) string {
	var plan strings.Builder
	for _, step := range steps {
		fmt.Fprintf(&plan, "- %s\n", step)
	}

	prompt := fmt.Sprintf(
		"Plan:\n%s\nTodos:\n%s\nPlease analyze this plan and provide suggestions for improvement.",
		plan.String(), formatTodos(todos))
	return o.critique(ctx, planAnalysisPrompt, prompt, "plan")
}

// CritiqueTaskResult returns advisory feedback on one finished task, or ""
// when the critique itself fails.
func (o *Observer) CritiqueTaskResult(ctx context.Context, task todo.Item, result string, remaining []todo.Item) string {
	prompt := fmt.Sprintf(
		"Completed Task:\n%s\n\nTask Result:\n%s\n\nRemaining Tasks:\n%s\nPlease analyze this task result and provide suggestions for adjusting the plan.",
		task.Title, result, formatTodos(remaining))
	return o.critique(ctx, taskAnalysisPrompt, prompt, "task_result")
}

func (o *Observer) critique(ctx context.Context, system, user, subject string) string {
	backend, err := o.resolver.Resolve("chat")
	if err != nil {
		o.logger.Warn("observer could not resolve backend", "subject", subject, "error", err)
		return ""
	}
	feedback, err := backend.Generate(ctx, []model.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	if err != nil {
		o.logger.Warn("observer critique failed", "subject", subject, "error", err)
		return ""
	}
	return strings.TrimSpace(feedback)
}

func formatTodos(todos []todo.Item) string {
	var b strings.Builder
	for _, item := range todos {
		fmt.Fprintf(&b, "- %s (status: %s)\n", item.Title, item.Status)
	}
	return b.String()
}
