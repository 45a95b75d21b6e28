// Package planner turns a free-text request into a structured plan with
// trackable task items.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kazz187/deepagent/internal/model"
	"github.com/kazz187/deepagent/internal/todo"
	"github.com/kazz187/deepagent/internal/toolprovider"
)

// Plan is immutable after creation. Steps seed the execution context,
// Todos seed the thread's task list.
type Plan struct {
	Steps   []string    `json:"plan"`
	Todos   []todo.Item `json:"todos"`
	Summary string      `json:"summary"`
}

type roleResolver interface {
	Resolve(role string) (model.Backend, error)
}

type toolDescriber interface {
	Descriptors() map[string][]toolprovider.ToolInfo
}

// Planner generates plans with the role="plan" backend.
type Planner struct {
	resolver roleResolver
	tools    toolDescriber
	logger   *slog.Logger
}

func New(resolver roleResolver, tools toolDescriber, logger *slog.Logger) *Planner {
	return &Planner{resolver: resolver, tools: tools, logger: logger}
}

// GeneratePlan never fails the turn: any backend or parse failure is logged
// and degrades to an empty plan.
func (p *Planner) GeneratePlan(ctx context.Context, message string) Plan {
	backend, err := p.resolver.Resolve("plan")
	if err != nil {
		p.logger.Error("failed to resolve plan backend", "error", err)
		return emptyPlan()
	}

	raw, err := model.GenerateWithRetry(ctx, backend, []model.Message{
		{Role: "system", Content: fmt.Sprintf(systemPrompt, p.toolsDescription())},
		{Role: "user", Content: message},
	})
	if err != nil {
		p.logger.Error("plan generation failed", "error", err)
		return emptyPlan()
	}

	plan, err := parsePlan(raw)
	if err != nil {
		p.logger.Error("failed to parse plan", "error", err, "response", raw)
		return emptyPlan()
	}
	return plan
}

func parsePlan(raw string) (Plan, error) {
	var parsed struct {
		Plan    []string    `json:"plan"`
		Todos   []todo.Item `json:"todos"`
		Summary string      `json:"summary"`
	}
	if err := json.Unmarshal([]byte(sanitize(raw)), &parsed); err != nil {
		return Plan{}, err
	}

	todos := make([]todo.Item, 0, len(parsed.Todos))
	for _, item := range parsed.Todos {
		if item.ID == "" {
			item.ID = todo.NewID()
		}
		if item.Status == "" {
			item.Status = todo.StatusPending
		}
		todos = append(todos, item)
	}
	// A plan with steps but no todos still needs trackable units.
	if len(todos) == 0 && len(parsed.Plan) > 0 {
		for _, step := range parsed.Plan {
			todos = append(todos, todo.Item{
				ID:     todo.NewID(),
				Title:  step,
				Status: todo.StatusPending,
			})
		}
	}

	steps := parsed.Plan
	if steps == nil {
		steps = []string{}
	}
	return Plan{Steps: steps, Todos: todos, Summary: parsed.Summary}, nil
}

func (p *Planner) toolsDescription() string {
	descriptors := p.tools.Descriptors()
	servers := make([]string, 0, len(descriptors))
	for server := range descriptors {
		servers = append(servers, server)
	}
	sort.Strings(servers)

	var lines []string
	for _, server := range servers {
		for _, t := range descriptors[server] {
			lines = append(lines, fmt.Sprintf("- %s (Server: %s): %s", t.Name, server, t.Description))
		}
	}
	if len(lines) == 0 {
		return "(none)"
	}
	return strings.Join(lines, "\n")
}

func emptyPlan() Plan {
	return Plan{Steps: []string{}, Todos: []todo.Item{}, Summary: ""}
}
