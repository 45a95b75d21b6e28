package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/deepagent/internal/model"
)

// scriptedBackend replays canned replies and records the messages of each
// generation call.
type scriptedBackend struct {
	replies []string
	seen    [][]model.Message
}

func (s *scriptedBackend) Generate(_ context.Context, messages []model.Message) (string, error) {
	s.seen = append(s.seen, append([]model.Message{}, messages...))
	if len(s.seen) > len(s.replies) {
		return "", errors.New("script exhausted")
	}
	return s.replies[len(s.seen)-1], nil
}

type fixedResolver struct{ backend model.Backend }

func (f *fixedResolver) Resolve(string) (model.Backend, error) { return f.backend, nil }

type failingResolver struct{}

func (failingResolver) Resolve(string) (model.Backend, error) {
	return nil, errors.New("no backend")
}

// recordingDispatcher returns a fixed result per tool and records calls.
// onInvoke, when set, runs before returning.
type recordingDispatcher struct {
	results  map[string]string
	err      error
	onInvoke func()
	calls    []string
}

func (d *recordingDispatcher) Invoke(_ context.Context, name string, _ map[string]any) (string, error) {
	d.calls = append(d.calls, name)
	if d.onInvoke != nil {
		d.onInvoke()
	}
	if d.err != nil {
		return "", d.err
	}
	return d.results[name], nil
}

func (d *recordingDispatcher) Available() []string {
	return []string{"get_weather", "write_todos"}
}

func collectEvents(t *testing.T, events <-chan Event, errs <-chan error) ([]Event, error) {
	t.Helper()
	var out []Event
	deadline := time.After(5 * time.Second)
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			out = append(out, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return out, err
		case <-deadline:
			t.Fatal("stream did not close")
		}
	}
	return out, nil
}

func newModelEngine(backend model.Backend) *ModelEngine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewModelEngine(&fixedResolver{backend}, logger)
}

func TestModelEngineProseReplyIsSingleToken(t *testing.T) {
	backend := &scriptedBackend{replies: []string{"The answer is 42."}}
	dispatcher := &recordingDispatcher{}
	eng := newModelEngine(backend)

	events, errs, err := eng.Stream(context.Background(), Request{
		Messages: []model.Message{{Role: "user", Content: "what is the answer"}},
		MaxSteps: 5,
		Tools:    dispatcher,
	})
	require.NoError(t, err)

	all, streamErr := collectEvents(t, events, errs)
	require.NoError(t, streamErr)
	require.Len(t, all, 1)
	assert.Equal(t, EventToken, all[0].Kind)
	assert.Equal(t, "The answer is 42.", all[0].Content)
	assert.Empty(t, dispatcher.calls)
}

func TestModelEngineToolCallInvokesDispatcher(t *testing.T) {
	backend := &scriptedBackend{replies: []string{
		`{"tool": "get_weather", "arguments": {"city": "tokyo"}}`,
		"It is sunny in Tokyo.",
	}}
	dispatcher := &recordingDispatcher{results: map[string]string{"get_weather": `{"temp": 28}`}}
	eng := newModelEngine(backend)

	events, errs, err := eng.Stream(context.Background(), Request{
		Messages: []model.Message{{Role: "user", Content: "weather in tokyo"}},
		MaxSteps: 5,
		Tools:    dispatcher,
	})
	require.NoError(t, err)

	all, streamErr := collectEvents(t, events, errs)
	require.NoError(t, streamErr)
	require.Len(t, all, 3)

	assert.Equal(t, EventToolStart, all[0].Kind)
	assert.Equal(t, "get_weather", all[0].Tool)
	assert.Contains(t, all[0].Input, "tokyo")

	assert.Equal(t, EventToolEnd, all[1].Kind)
	assert.Equal(t, `{"temp": 28}`, all[1].Output)

	assert.Equal(t, EventToken, all[2].Kind)
	assert.Equal(t, "It is sunny in Tokyo.", all[2].Content)

	assert.Equal(t, []string{"get_weather"}, dispatcher.calls)

	// The tool result feeds the next generation step.
	require.Len(t, backend.seen, 2)
	last := backend.seen[1][len(backend.seen[1])-1]
	assert.Equal(t, "user", last.Role)
	assert.Contains(t, last.Content, `{"temp": 28}`)
}

func TestModelEngineFoldsDispatchErrorIntoOutput(t *testing.T) {
	backend := &scriptedBackend{replies: []string{
		`{"tool": "get_weather", "arguments": {}}`,
		"I could not fetch the weather.",
	}}
	dispatcher := &recordingDispatcher{err: errors.New("connection refused")}
	eng := newModelEngine(backend)

	events, errs, err := eng.Stream(context.Background(), Request{
		Messages: []model.Message{{Role: "user", Content: "weather"}},
		MaxSteps: 5,
		Tools:    dispatcher,
	})
	require.NoError(t, err)

	all, streamErr := collectEvents(t, events, errs)
	require.NoError(t, streamErr)

	var end *Event
	for i := range all {
		if all[i].Kind == EventToolEnd {
			end = &all[i]
		}
	}
	require.NotNil(t, end)
	assert.Contains(t, end.Output, `"isError": true`)
	assert.Contains(t, end.Output, "connection refused")
}

func TestModelEngineStepBudgetExhaustion(t *testing.T) {
	backend := &scriptedBackend{replies: []string{
		`{"tool": "get_weather", "arguments": {}}`,
		`{"tool": "get_weather", "arguments": {}}`,
	}}
	dispatcher := &recordingDispatcher{results: map[string]string{"get_weather": "{}"}}
	eng := newModelEngine(backend)

	events, errs, err := eng.Stream(context.Background(), Request{
		Messages: []model.Message{{Role: "user", Content: "loop forever"}},
		MaxSteps: 2,
		Tools:    dispatcher,
	})
	require.NoError(t, err)

	all, streamErr := collectEvents(t, events, errs)
	require.NoError(t, streamErr)
	require.NotEmpty(t, all)
	terminal := all[len(all)-1]
	assert.Equal(t, EventToken, terminal.Kind)
	assert.Contains(t, terminal.Content, "Step budget exhausted")
	assert.Len(t, dispatcher.calls, 2)
}

func TestModelEngineAppendsFeedbackToPrompt(t *testing.T) {
	backend := &scriptedBackend{replies: []string{
		`{"tool": "get_weather", "arguments": {}}`,
		"done",
	}}
	feedback := &FeedbackBuffer{}
	dispatcher := &recordingDispatcher{
		results:  map[string]string{"get_weather": "{}"},
		onInvoke: func() { feedback.Add("double-check the units") },
	}
	eng := newModelEngine(backend)

	events, errs, err := eng.Stream(context.Background(), Request{
		Messages: []model.Message{{Role: "user", Content: "weather"}},
		MaxSteps: 5,
		Tools:    dispatcher,
		Feedback: feedback,
	})
	require.NoError(t, err)

	_, streamErr := collectEvents(t, events, errs)
	require.NoError(t, streamErr)

	require.Len(t, backend.seen, 2)
	var found bool
	for _, m := range backend.seen[1] {
		if m.Role == "user" && strings.Contains(m.Content, "Observer feedback:") &&
			strings.Contains(m.Content, "double-check the units") {
			found = true
		}
	}
	assert.True(t, found, "feedback added mid-run appears in the next step's prompt")
	assert.Empty(t, feedback.Drain(), "feedback is consumed once")
}

func TestModelEngineResolveFailureFailsStream(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := NewModelEngine(failingResolver{}, logger)

	_, _, err := eng.Stream(context.Background(), Request{
		Messages: []model.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
}
