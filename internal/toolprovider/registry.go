package toolprovider

import (
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"sync"

	"github.com/kazz187/deepagent/pkg/cerr"
)

type client interface {
	CallTool(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error)
	ListTools(ctx context.Context) ([]ToolInfo, error)
	Close() error
}

type entry struct {
	cfg    ProviderConfig
	client client
}

// Registry routes tool calls to named providers. Configure may be called
// again at runtime to apply a changed configuration; removed or modified
// providers are closed and rebuilt.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Configure applies a provider set. Providers with an unchanged config keep
// their live client (and any running subprocess).
func (r *Registry) Configure(cfgs []ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*entry, len(cfgs))
	for _, cfg := range cfgs {
		if !cfg.enabled() {
			continue
		}
		if old, ok := r.entries[cfg.Name]; ok && reflect.DeepEqual(old.cfg, cfg) {
			next[cfg.Name] = old
			continue
		}
		next[cfg.Name] = &entry{cfg: cfg, client: r.newClient(cfg)}
	}
	for name, old := range r.entries {
		if _, kept := next[name]; kept {
			continue
		}
		if err := old.client.Close(); err != nil {
			r.logger.Warn("failed to close tool provider", "provider", name, "error", err)
		}
		r.logger.Info("tool provider removed", "provider", name)
	}
	r.entries = next
}

func (r *Registry) newClient(cfg ProviderConfig) client {
	switch cfg.Transport {
	case TransportStdio:
		return newStdioClient(cfg, r.logger)
	default:
		return newHTTPClient(cfg)
	}
}

func (r *Registry) lookup(name string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "tool provider not found: "+name, nil)
	}
	return e, nil
}

// CallTool invokes one tool on a named provider.
func (r *Registry) CallTool(ctx context.Context, server, tool string, args map[string]any) (json.RawMessage, error) {
	e, err := r.lookup(server)
	if err != nil {
		return nil, err
	}
	return e.client.CallTool(ctx, tool, args)
}

// ListTools returns the tools a named provider exposes.
func (r *Registry) ListTools(ctx context.Context, server string) ([]ToolInfo, error) {
	e, err := r.lookup(server)
	if err != nil {
		return nil, err
	}
	return e.client.ListTools(ctx)
}

// Descriptors returns the statically declared tools per provider without
// touching any transport. Used to describe available tools to the planner.
func (r *Registry) Descriptors() map[string][]ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]ToolInfo, len(r.entries))
	for name, e := range r.entries {
		out[name] = e.cfg.Tools
	}
	return out
}

// Close shuts down every provider. Safe to call more than once.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, e := range r.entries {
		if err := e.client.Close(); err != nil {
			r.logger.Warn("failed to close tool provider", "provider", name, "error", err)
		}
	}
	r.entries = make(map[string]*entry)
}
