// Package agent orchestrates a conversational run: plan, execute, observe,
// remember.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc"

	"github.com/kazz187/deepagent/internal/engine"
	"github.com/kazz187/deepagent/internal/executor"
	"github.com/kazz187/deepagent/internal/memory"
	"github.com/kazz187/deepagent/internal/model"
	"github.com/kazz187/deepagent/internal/observer"
	"github.com/kazz187/deepagent/internal/planner"
	"github.com/kazz187/deepagent/internal/session"
	"github.com/kazz187/deepagent/internal/skill"
	"github.com/kazz187/deepagent/internal/todo"
	"github.com/kazz187/deepagent/internal/toolprovider"
)

const summarizeTimeout = 2 * time.Minute

// runContext travels down the subagent call chain. Depth is capped at one
// level of nesting to bound fan-out.
type runContext struct {
	depth int
}

type Config struct {
	MaxConcurrency int
	MaxSteps       int
}

// Agent wires the pipeline together and admits a bounded number of
// concurrent runs.
type Agent struct {
	cfg        Config
	eng        engine.Engine
	planner    *planner.Planner
	observer   *observer.Observer
	executor   *executor.Executor
	todos      *todo.Store
	ledger     *memory.Ledger
	summarizer *memory.Summarizer
	sessions   *session.Store
	providers  *toolprovider.Registry
	skills     *skill.Registry
	logger     *slog.Logger

	sem chan struct{}
	bg  *conc.WaitGroup
}

func New(
	cfg Config,
	eng engine.Engine,
	pl *planner.Planner,
	obs *observer.Observer,
	exec *executor.Executor,
	todos *todo.Store,
	ledger *memory.Ledger,
	summarizer *memory.Summarizer,
	sessions *session.Store,
	providers *toolprovider.Registry,
	skills *skill.Registry,
	logger *slog.Logger,
) *Agent {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	return &Agent{
		cfg:        cfg,
		eng:        eng,
		planner:    pl,
		observer:   obs,
		executor:   exec,
		todos:      todos,
		ledger:     ledger,
		summarizer: summarizer,
		sessions:   sessions,
		providers:  providers,
		skills:     skills,
		logger:     logger,
		sem:        make(chan struct{}, cfg.MaxConcurrency),
		bg:         conc.NewWaitGroup(),
	}
}

// NewThreadID returns a fresh conversation thread id.
func NewThreadID() string {
	return ulid.Make().String()
}

// ChatStream runs one conversational turn and returns its event stream.
// The call blocks until the run is admitted; the stream closes after the
// terminal done or error event.
func (a *Agent) ChatStream(ctx context.Context, threadID, userID, message string) (<-chan executor.RunEvent, error) {
	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	events := make(chan executor.RunEvent, 64)
	go func() {
		defer func() { <-a.sem }()
		defer close(events)
		a.run(ctx, threadID, userID, message, events)
	}()
	return events, nil
}

func (a *Agent) run(ctx context.Context, threadID, userID, message string, events chan<- executor.RunEvent) {
	emit := func(ev executor.RunEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	emit(executor.RunEvent{Type: executor.EventStatus, Content: "Analyzing request..."})
	if err := a.sessions.Add(ctx, userID, threadID); err != nil {
		a.logger.Warn("failed to record session", "thread_id", threadID, "error", err)
	}

	plan := a.planner.GeneratePlan(ctx, message)
	emit(executor.RunEvent{Type: executor.EventPlan, Steps: plan.Steps, Summary: plan.Summary})

	planContext := ""
	if len(plan.Todos) > 0 {
		if _, err := a.todos.Write(ctx, threadID, plan.Todos); err != nil {
			a.logger.Warn("failed to seed task list", "thread_id", threadID, "error", err)
		} else {
			emit(executor.RunEvent{Type: executor.EventTodos, Todos: plan.Todos})
		}
		var lines []string
		for _, item := range plan.Todos {
			lines = append(lines, fmt.Sprintf("- %s (ID: %s)", item.Title, item.ID))
		}
		planContext = fmt.Sprintf(planContextTemplate, strings.Join(lines, "\n"))
	}

	feedback := ""
	if a.observer != nil && len(plan.Steps) > 0 {
		feedback = a.observer.CritiquePlan(ctx, plan.Steps, plan.Todos)
		if feedback != "" {
			emit(executor.RunEvent{Type: executor.EventObservation, Content: feedback})
		}
	}

	emit(executor.RunEvent{Type: executor.EventStatus, Content: "Thinking..."})

	tb := &toolbox{agent: a, rc: runContext{}, threadID: threadID, userID: userID}
	req := engine.Request{
		Messages: []model.Message{
			{Role: "system", Content: a.systemContext(ctx, userID, message, planContext, feedback)},
			{Role: "user", Content: message},
		},
		ThreadID: threadID,
		UserID:   userID,
		MaxSteps: a.cfg.MaxSteps,
		Tools:    tb,
		Feedback: &engine.FeedbackBuffer{},
	}

	result, err := a.executor.ExecutePlan(ctx, threadID, a.eng, req, emit)
	if err != nil {
		// The executor already emitted the classified error event.
		a.logger.Error("run failed", "thread_id", threadID, "user_id", userID, "error", err)
		return
	}

	recordCtx := context.WithoutCancel(ctx)
	if _, err := a.ledger.Append(recordCtx, userID, memory.Value{
		Type:        memory.TypeConversation,
		ThreadID:    threadID,
		UserMessage: message,
		AgentReply:  result.Reply,
		PlanSummary: plan.Summary,
	}); err != nil {
		a.logger.Warn("failed to record conversation", "user_id", userID, "error", err)
	}

	// Summarization must never delay the reply.
	a.bg.Go(func() {
		bctx, cancel := context.WithTimeout(recordCtx, summarizeTimeout)
		defer cancel()
		if err := a.summarizer.MaybeSummarize(bctx, userID); err != nil {
			a.logger.Warn("summarization failed", "user_id", userID, "error", err)
		}
	})
}

// runSubagent executes a focused task on an isolated thread. Depth is
// capped at one level; deeper spawns return a fixed limit message instead
// of recursing.
func (a *Agent) runSubagent(ctx context.Context, rc runContext, userID, task string) (string, error) {
	if rc.depth >= 1 {
		return "Subagent limit reached", nil
	}
	subThread := "sub-" + ulid.Make().String()
	a.logger.Info("spawning subagent", "thread_id", subThread, "depth", rc.depth+1)

	tb := &toolbox{
		agent:    a,
		rc:       runContext{depth: rc.depth + 1},
		threadID: subThread,
		userID:   userID,
	}
	req := engine.Request{
		Messages: []model.Message{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, "")},
			{Role: "user", Content: task},
		},
		ThreadID: subThread,
		UserID:   userID,
		MaxSteps: a.cfg.MaxSteps,
		Tools:    tb,
	}
	result, err := a.executor.ExecutePlan(ctx, subThread, a.eng, req, func(executor.RunEvent) {})
	if err != nil {
		return "", err
	}
	return result.Reply, nil
}

// systemContext builds the per-turn system prompt: base identity, available
// external tools, relevant memory, the current plan, and plan feedback.
func (a *Agent) systemContext(ctx context.Context, userID, message, planContext, feedback string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf(systemPrompt, a.externalToolsSection()))

	facts, err := a.ledger.Search(ctx, userID, message, 8)
	if err != nil {
		a.logger.Warn("memory search failed", "user_id", userID, "error", err)
	} else if len(facts) > 0 {
		b.WriteString("\n\nRelevant memory:\n")
		for _, rec := range facts {
			b.WriteString("- " + memoryLine(rec.Value) + "\n")
		}
	}

	b.WriteString(planContext)
	if feedback != "" {
		b.WriteString("\n\nPlan review feedback:\n" + feedback)
	}
	return b.String()
}

func (a *Agent) externalToolsSection() string {
	descriptors := a.providers.Descriptors()
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
	for _, name := range a.skills.Names() {
		lines = append(lines, fmt.Sprintf("- %s (Skill)", name))
	}
	if len(lines) == 0 {
		return ""
	}
	return "\nAvailable MCP Tools:\n" + strings.Join(lines, "\n") + "\n"
}

func memoryLine(v memory.Value) string {
	switch v.Type {
	case memory.TypeSummary:
		return v.Summary
	case memory.TypeConversation:
		return fmt.Sprintf("user: %s / assistant: %s", v.UserMessage, v.AgentReply)
	default:
		if v.Content != "" {
			return v.Content
		}
		return v.Summary
	}
}

// Close drains background work. Call on shutdown.
func (a *Agent) Close() {
	a.bg.Wait()
}
