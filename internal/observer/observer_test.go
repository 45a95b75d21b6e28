package observer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kazz187/deepagent/internal/model"
	"github.com/kazz187/deepagent/internal/todo"
)

type stubBackend struct {
	reply   string
	err     error
	lastMsg []model.Message
}

func (s *stubBackend) Generate(_ context.Context, msgs []model.Message) (string, error) {
	s.lastMsg = msgs
	return s.reply, s.err
}

type stubResolver struct {
	backend model.Backend
	err     error
}

func (s *stubResolver) Resolve(string) (model.Backend, error) { return s.backend, s.err }

func newTestObserver(backend model.Backend, resolveErr error) *Observer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(&stubResolver{backend: backend, err: resolveErr}, logger)
}

func TestCritiquePlanIncludesStepsAndTodos(t *testing.T) {
	backend := &stubBackend{reply: "looks reasonable"}
	o := newTestObserver(backend, nil)

	feedback := o.CritiquePlan(context.Background(),
		[]string{"fetch data", "summarize"},
		[]todo.Item{{Title: "fetch data", Status: todo.StatusPending}})

	assert.Equal(t, "looks reasonable", feedback)
	assert.Contains(t, backend.lastMsg[1].Content, "fetch data")
	assert.Contains(t, backend.lastMsg[1].Content, "status: pending")
}

func TestCritiqueTaskResultIncludesResultAndRemaining(t *testing.T) {
	backend := &stubBackend{reply: "task succeeded"}
	o := newTestObserver(backend, nil)

	feedback := o.CritiqueTaskResult(context.Background(),
		todo.Item{Title: "fetch data", Status: todo.StatusCompleted},
		`{"rows": 10}`,
		[]todo.Item{{Title: "summarize", Status: todo.StatusPending}})

	assert.Equal(t, "task succeeded", feedback)
	assert.Contains(t, backend.lastMsg[1].Content, `{"rows": 10}`)
	assert.Contains(t, backend.lastMsg[1].Content, "summarize")
}

func TestCritiqueSwallowsBackendFailure(t *testing.T) {
	o := newTestObserver(&stubBackend{err: errors.New("down")}, nil)

	assert.Empty(t, o.CritiquePlan(context.Background(), []string{"a"}, nil))
}

func TestCritiqueSwallowsResolveFailure(t *testing.T) {
	o := newTestObserver(nil, errors.New("no adapter"))

	assert.Empty(t, o.CritiqueTaskResult(context.Background(), todo.Item{}, "", nil))
}
