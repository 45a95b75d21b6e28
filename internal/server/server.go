// Package server exposes the agent over HTTP: a streaming chat endpoint
// plus task-list, memory, and session APIs.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/deepagent/internal/agent"
	"github.com/kazz187/deepagent/internal/config"
	"github.com/kazz187/deepagent/internal/memory"
	"github.com/kazz187/deepagent/internal/session"
	"github.com/kazz187/deepagent/internal/todo"
	"github.com/kazz187/deepagent/pkg/clog"
)

type Server struct {
	server   *http.Server
	env      *config.Env
	agent    *agent.Agent
	todos    *todo.Store
	ledger   *memory.Ledger
	sessions *session.Store
	logger   *slog.Logger
}

func NewServer(
	env *config.Env,
	ag *agent.Agent,
	todos *todo.Store,
	ledger *memory.Ledger,
	sessions *session.Store,
	logger *slog.Logger,
) *Server {
	return &Server{
		env:      env,
		agent:    ag,
		todos:    todos,
		ledger:   ledger,
		sessions: sessions,
		logger:   logger,
	}
}

// ListenAndServe starts the HTTP server. The provided context is the base
// context of every request, so cancelling it on shutdown also cancels any
// in-flight chat streams.
func (s *Server) ListenAndServe(ctx context.Context) error {
	r := s.routes()
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	s.logger.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr: addr,
		Handler: h2c.NewHandler(cors.New(cors.Options{
			AllowedOrigins:   s.corsOrigins(),
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(r), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(clog.NewChiMiddleware(s.logger, clog.WithFilter(func(r *http.Request) bool {
		return r.URL.Path != "/api/health"
	})))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/chat", s.handleChat)
		r.Get("/todos", s.handleGetTodos)
		r.Post("/todos", s.handleWriteTodos)
		r.Get("/memory", s.handleMemorySearch)
		r.Post("/memory", s.handleMemoryPut)
		r.Get("/sessions", s.handleListSessions)
	})
	s.mountFrontend(r)
	return r
}

func (s *Server) corsOrigins() []string {
	raw := strings.Split(s.env.CORSOrigins, ",")
	origins := make([]string, 0, len(raw))
	for _, o := range raw {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}

func (s *Server) mountFrontend(r chi.Router) {
	info, err := os.Stat(s.env.FrontendDist)
	if err != nil || !info.IsDir() {
		return
	}
	fs := http.FileServer(http.Dir(s.env.FrontendDist))
	r.Handle("/*", fs)
	s.logger.Info("serving frontend", "dir", s.env.FrontendDist)
}
