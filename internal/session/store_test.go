package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/deepagent/pkg/storage"
)

func TestStoreAddAndList(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	s := NewStore(local)

	require.NoError(t, s.Add(ctx, "alice", "t1"))
	require.NoError(t, s.Add(ctx, "alice", "t2"))
	require.NoError(t, s.Add(ctx, "bob", "t3"))
	require.NoError(t, s.Add(ctx, "alice", "t1"), "re-adding must be a no-op")

	sessions, err := s.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "t1", sessions[0].ThreadID)
	assert.Equal(t, "t2", sessions[1].ThreadID)

	others, err := s.List(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, others)
}
