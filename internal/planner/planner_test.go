package planner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/deepagent/internal/model"
	"github.com/kazz187/deepagent/internal/todo"
	"github.com/kazz187/deepagent/internal/toolprovider"
)

type stubBackend struct {
	reply string
	err   error
}

func (s *stubBackend) Generate(_ context.Context, _ []model.Message) (string, error) {
	return s.reply, s.err
}

type stubResolver struct{ backend model.Backend }

func (s *stubResolver) Resolve(string) (model.Backend, error) { return s.backend, nil }

type stubTools struct{ tools map[string][]toolprovider.ToolInfo }

func (s *stubTools) Descriptors() map[string][]toolprovider.ToolInfo { return s.tools }

func newTestPlanner(reply string, err error) *Planner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(&stubResolver{&stubBackend{reply: reply, err: err}}, &stubTools{}, logger)
}

func TestSanitizeRecoversFencedJSON(t *testing.T) {
	cases := map[string]string{
		"plain":        `{"plan": ["a"]}`,
		"fenced":       "```json\n{\"plan\": [\"a\"]}\n```",
		"backticks":    "`{\"plan\": [\"a\"]}`",
		"leading text": `Here is your plan: {"plan": ["a"]}`,
		"both sides":   "Sure!\n```json\n{\"plan\": [\"a\"]}\n```\nLet me know.",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			assert.JSONEq(t, `{"plan": ["a"]}`, sanitize(input))
		})
	}
}

func TestGeneratePlanParsesWellFormedResponse(t *testing.T) {
	p := newTestPlanner(`{"plan": ["look up weather", "reply"], "todos": [{"id": "t1", "title": "look up weather", "status": "pending"}], "summary": "weather query"}`, nil)

	plan := p.GeneratePlan(context.Background(), "what's the weather")
	assert.Equal(t, []string{"look up weather", "reply"}, plan.Steps)
	require.Len(t, plan.Todos, 1)
	assert.Equal(t, "t1", plan.Todos[0].ID)
	assert.Equal(t, "weather query", plan.Summary)
}

func TestGeneratePlanFillsMissingIDAndStatus(t *testing.T) {
	p := newTestPlanner(`{"plan": ["a"], "todos": [{"title": "do a"}], "summary": ""}`, nil)

	plan := p.GeneratePlan(context.Background(), "do a")
	require.Len(t, plan.Todos, 1)
	assert.NotEmpty(t, plan.Todos[0].ID)
	assert.Equal(t, todo.StatusPending, plan.Todos[0].Status)
}

func TestGeneratePlanSynthesizesTodosFromSteps(t *testing.T) {
	p := newTestPlanner(`{"plan": ["first", "second"], "todos": [], "summary": "s"}`, nil)

	plan := p.GeneratePlan(context.Background(), "two things")
	require.Len(t, plan.Todos, 2)
	assert.Equal(t, "first", plan.Todos[0].Title)
	assert.Equal(t, "second", plan.Todos[1].Title)
	assert.NotEqual(t, plan.Todos[0].ID, plan.Todos[1].ID)
	for _, item := range plan.Todos {
		assert.Equal(t, todo.StatusPending, item.Status)
	}
}

func TestGeneratePlanDegradesToEmptyOnGarbage(t *testing.T) {
	for name, reply := range map[string]string{
		"prose":     "I cannot produce a plan right now.",
		"non-object": `["just", "a", "list"]`,
		"truncated": `{"plan": ["a"`,
	} {
		t.Run(name, func(t *testing.T) {
			p := newTestPlanner(reply, nil)
			plan := p.GeneratePlan(context.Background(), "hi")
			assert.Empty(t, plan.Steps)
			assert.Empty(t, plan.Todos)
			assert.Empty(t, plan.Summary)
		})
	}
}

func TestGeneratePlanDegradesToEmptyOnBackendError(t *testing.T) {
	p := newTestPlanner("", errors.New("backend down"))

	plan := p.GeneratePlan(context.Background(), "hi")
	assert.Empty(t, plan.Steps)
	assert.Empty(t, plan.Todos)
}

func TestToolsDescriptionListsRegisteredTools(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(&stubResolver{&stubBackend{}}, &stubTools{tools: map[string][]toolprovider.ToolInfo{
		"market": {{Name: "stock_price", Description: "fetch a quote"}},
	}}, logger)

	desc := p.toolsDescription()
	assert.Contains(t, desc, "stock_price")
	assert.Contains(t, desc, "Server: market")
}
