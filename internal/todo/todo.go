// Package todo persists the per-thread task list that execution runs
// mutate as they make progress.
package todo

import (
	"github.com/oklog/ulid/v2"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Item is one trackable unit of work within a thread.
// Identity is the ID; title and status are mutable.
type Item struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status Status `json:"status"`
}

// NewID returns a fresh unique item id.
func NewID() string {
	return ulid.Make().String()
}

// FirstPending returns the index of the first pending item in thread order,
// or -1 when none is pending.
func FirstPending(items []Item) int {
	for i := range items {
		if items[i].Status == StatusPending {
			return i
		}
	}
	return -1
}

// InProgress returns the index of the item currently in progress, or -1.
// A single sequential run keeps at most one item in progress at a time.
func InProgress(items []Item) int {
	for i := range items {
		if items[i].Status == StatusInProgress {
			return i
		}
	}
	return -1
}
