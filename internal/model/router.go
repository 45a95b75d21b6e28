package model

import (
	"log/slog"
	"sync"

	"github.com/kazz187/deepagent/pkg/cerr"
)

// Router maps role names to backends, constructing each at most once.
type Router struct {
	cfg      *Config
	adapters map[string]Adapter

	mu    sync.Mutex
	cache map[string]Backend
}

func NewRouter(cfg *Config) *Router {
	return &Router{
		cfg:      cfg,
		adapters: defaultAdapters(),
		cache:    make(map[string]Backend),
	}
}

// Resolve returns the backend for a role. An unknown role uses the default
// spec; an unknown provider logs a warning and falls back to the default
// spec's provider, failing only when that has no adapter either.
func (r *Router) Resolve(role string) (Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.cache[role]; ok {
		return b, nil
	}

	spec, ok := r.cfg.Roles[role]
	if !ok {
		spec = r.cfg.Defaults
	}
	adapter, ok := r.adapters[spec.Provider]
	if !ok {
		slog.Warn("unsupported provider for role, falling back to defaults",
			"provider", spec.Provider, "role", role, "default_provider", r.cfg.Defaults.Provider)
		spec = r.cfg.Defaults
		adapter, ok = r.adapters[spec.Provider]
		if !ok {
			return nil, cerr.NewError(cerr.FailedPrecondition,
				"no adapter available for default provider: "+spec.Provider, nil)
		}
	}

	b, err := adapter.Create(spec)
	if err != nil {
		return nil, cerr.NewError(cerr.FailedPrecondition,
			"failed to construct backend for role "+role, err)
	}
	r.cache[role] = b
	return b, nil
}
