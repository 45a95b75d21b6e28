// Package session tracks which threads belong to which user.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/kazz187/deepagent/pkg/cerr"
	"github.com/kazz187/deepagent/pkg/storage"
)

const sessionsPath = "sessions.json"

// Session is one user/thread pairing.
type Session struct {
	UserID    string    `json:"user_id"`
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists the session index as one JSON document.
type Store struct {
	storage storage.Storage

	mu sync.Mutex
}

func NewStore(s storage.Storage) *Store {
	return &Store{storage: s}
}

func (s *Store) load(ctx context.Context) ([]Session, error) {
	data, err := s.storage.Read(ctx, sessionsPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, cerr.NewError(cerr.Internal, "failed to read sessions", err)
	}
	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, cerr.NewError(cerr.Internal, "failed to decode sessions", err)
	}
	return sessions, nil
}

// Add records a thread for a user. Re-adding an existing pair is a no-op.
func (s *Store) Add(ctx context.Context, userID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load(ctx)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if sess.UserID == userID && sess.ThreadID == threadID {
			return nil
		}
	}
	sessions = append(sessions, Session{
		UserID:    userID,
		ThreadID:  threadID,
		CreatedAt: time.Now().UTC(),
	})

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to encode sessions", err)
	}
	if err := s.storage.Write(ctx, sessionsPath, data); err != nil {
		return cerr.NewError(cerr.Internal, "failed to write sessions", err)
	}
	return nil
}

// List returns the user's sessions in creation order.
func (s *Store) List(ctx context.Context, userID string) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Session
	for _, sess := range sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	return out, nil
}
