package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/kazz187/deepagent/internal/agent"
	"github.com/kazz187/deepagent/internal/memory"
	"github.com/kazz187/deepagent/internal/session"
	"github.com/kazz187/deepagent/internal/todo"
	"github.com/kazz187/deepagent/pkg/cerr"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
}

// handleChat runs one conversational turn and streams its run events back as
// server-sent events. The stream ends with a [DONE] sentinel.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}
	if req.ThreadID == "" {
		req.ThreadID = agent.NewThreadID()
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, err := s.agent.ChatStream(r.Context(), req.ThreadID, req.UserID, req.Message)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Thread-ID", req.ThreadID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Warn("failed to encode run event", "thread_id", req.ThreadID, "error", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleGetTodos(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		writeError(w, http.StatusBadRequest, "thread_id is required")
		return
	}
	items, err := s.todos.Get(r.Context(), threadID)
	if err != nil {
		handleError(w, err)
		return
	}
	if items == nil {
		items = []todo.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"todos": items})
}

type writeTodosRequest struct {
	ThreadID string      `json:"thread_id"`
	Todos    []todo.Item `json:"todos"`
}

func (s *Server) handleWriteTodos(w http.ResponseWriter, r *http.Request) {
	var req writeTodosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ThreadID == "" {
		writeError(w, http.StatusBadRequest, "thread_id is required")
		return
	}
	written, err := s.todos.Write(r.Context(), req.ThreadID, req.Todos)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"todos": written})
}

type memoryPutRequest struct {
	UserID string       `json:"user_id"`
	Value  memory.Value `json:"value"`
}

func (s *Server) handleMemoryPut(w http.ResponseWriter, r *http.Request) {
	var req memoryPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Value.Type == "" {
		req.Value.Type = memory.TypeFact
	}
	key, err := s.ledger.Append(r.Context(), req.UserID, req.Value)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": key})
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	records, err := s.ledger.Search(r.Context(), userID, r.URL.Query().Get("query"), limit)
	if err != nil {
		handleError(w, err)
		return
	}
	if records == nil {
		records = []memory.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	sessions, err := s.sessions.List(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already out by this point, so encoding errors are moot.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleError maps a coded error to its HTTP status and user-facing
// message. Uncoded errors collapse to a 500 with a generic body so
// internals stay out of responses.
func handleError(w http.ResponseWriter, err error) {
	writeError(w, cerr.HTTPStatus(err), cerr.MessageOf(err))
}
