package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kazz187/deepagent/internal/memory"
	"github.com/kazz187/deepagent/internal/todo"
)

// toolbox exposes the agent's built-in tools to the reasoning engine for
// one run. It is bound to the run's thread and user.
type toolbox struct {
	agent    *Agent
	rc       runContext
	threadID string
	userID   string
}

var toolNames = []string{
	"write_todos",
	"spawn_subagent",
	"memory_put",
	"memory_search",
	"mcp_call",
	"mcp_list_tools",
	"skill_call",
}

func (t *toolbox) Available() []string {
	return toolNames
}

func (t *toolbox) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "write_todos":
		return t.writeTodos(ctx, args)
	case "spawn_subagent":
		return t.spawnSubagent(ctx, args)
	case "memory_put":
		return t.memoryPut(ctx, args)
	case "memory_search":
		return t.memorySearch(ctx, args)
	case "mcp_call":
		return t.mcpCall(ctx, args)
	case "mcp_list_tools":
		return t.mcpListTools(ctx, args)
	case "skill_call":
		return t.skillCall(ctx, args)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// writeTodos replaces the thread's task list. Items missing an id or status
// get the same defaults the planner applies.
func (t *toolbox) writeTodos(ctx context.Context, args map[string]any) (string, error) {
	raw, err := json.Marshal(args["todos"])
	if err != nil {
		return "", fmt.Errorf("encode todos argument: %w", err)
	}
	var items []todo.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return "", fmt.Errorf("todos argument must be a list of items: %w", err)
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = todo.NewID()
		}
		if items[i].Status == "" {
			items[i].Status = todo.StatusPending
		}
	}
	written, err := t.agent.todos.Write(ctx, t.threadID, items)
	if err != nil {
		return "", err
	}
	return marshalResult(written)
}

func (t *toolbox) spawnSubagent(ctx context.Context, args map[string]any) (string, error) {
	task, _ := args["task"].(string)
	if task == "" {
		return "", fmt.Errorf("spawn_subagent requires a task")
	}
	return t.agent.runSubagent(ctx, t.rc, t.userID, task)
}

func (t *toolbox) memoryPut(ctx context.Context, args map[string]any) (string, error) {
	userID := t.userID
	if id, ok := args["user_id"].(string); ok && id != "" {
		userID = id
	}
	raw, err := json.Marshal(args["value"])
	if err != nil {
		return "", fmt.Errorf("encode value argument: %w", err)
	}
	var value memory.Value
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("value argument must be a memory value: %w", err)
	}
	if value.Type == "" {
		value.Type = memory.TypeFact
	}
	if value.ThreadID == "" {
		value.ThreadID = t.threadID
	}
	key, err := t.agent.ledger.Append(ctx, userID, value)
	if err != nil {
		return "", err
	}
	return key, nil
}

func (t *toolbox) memorySearch(ctx context.Context, args map[string]any) (string, error) {
	userID := t.userID
	if id, ok := args["user_id"].(string); ok && id != "" {
		userID = id
	}
	query, _ := args["query"].(string)
	limit := 5
	if n, ok := args["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}
	records, err := t.agent.ledger.Search(ctx, userID, query, limit)
	if err != nil {
		return "", err
	}
	return marshalResult(records)
}

func (t *toolbox) mcpCall(ctx context.Context, args map[string]any) (string, error) {
	server, _ := args["server_name"].(string)
	tool, _ := args["tool_name"].(string)
	if server == "" || tool == "" {
		return "", fmt.Errorf("mcp_call requires server_name and tool_name")
	}
	toolArgs, _ := args["arguments"].(map[string]any)
	result, err := t.agent.providers.CallTool(ctx, server, tool, toolArgs)
	if err != nil {
		return "", err
	}
	return string(result), nil
}

func (t *toolbox) mcpListTools(ctx context.Context, args map[string]any) (string, error) {
	server, _ := args["server_name"].(string)
	if server == "" {
		return "", fmt.Errorf("mcp_list_tools requires server_name")
	}
	tools, err := t.agent.providers.ListTools(ctx, server)
	if err != nil {
		return "", err
	}
	return marshalResult(tools)
}

func (t *toolbox) skillCall(ctx context.Context, args map[string]any) (string, error) {
	name, _ := args["skill_name"].(string)
	if name == "" {
		return "", fmt.Errorf("skill_call requires skill_name")
	}
	payload, _ := args["payload"].(map[string]any)
	result, err := t.agent.skills.Call(ctx, name, payload)
	if err != nil {
		return "", err
	}
	return string(result), nil
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(data), nil
}
