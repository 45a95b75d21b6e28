package todo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kazz187/deepagent/pkg/cerr"
	"github.com/kazz187/deepagent/pkg/storage"
)

const todosPrefix = "todos"

// Store persists thread task lists as keyed JSON documents.
// Write is a full replace; the design assumes one active run per thread,
// so last writer wins.
type Store struct {
	storage storage.Storage
}

func NewStore(s storage.Storage) *Store {
	return &Store{storage: s}
}

func path(threadID string) string {
	return fmt.Sprintf("%s/%s.json", todosPrefix, threadID)
}

// Get returns the task list for a thread, empty when none was written yet.
func (s *Store) Get(ctx context.Context, threadID string) ([]Item, error) {
	data, err := s.storage.Read(ctx, path(threadID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, cerr.NewError(cerr.Internal, "failed to read task list", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, cerr.NewError(cerr.Internal, "failed to decode task list", err)
	}
	return items, nil
}

// Write replaces the task list for a thread and returns the stored items.
func (s *Store) Write(ctx context.Context, threadID string, items []Item) ([]Item, error) {
	if items == nil {
		items = []Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "failed to encode task list", err)
	}
	if err := s.storage.Write(ctx, path(threadID), data); err != nil {
		return nil, cerr.NewError(cerr.Internal, "failed to write task list", err)
	}
	return items, nil
}
