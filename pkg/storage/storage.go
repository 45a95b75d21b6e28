// Package storage provides a key-value style document store used for all
// persisted agent state (task lists, memory records, sessions).
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested path does not exist.
var ErrNotFound = errors.New("not found")

// Storage abstracts file-like persistence. Paths are slash-separated keys
// relative to the store root.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}
