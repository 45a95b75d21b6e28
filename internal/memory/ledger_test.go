package memory

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/deepagent/internal/model"
	"github.com/kazz187/deepagent/pkg/storage"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	s, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return NewLedger(s)
}

func TestLedgerAppendAndAll(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	key, err := l.Append(ctx, "alice", Value{
		Type:        TypeConversation,
		ThreadID:    "t1",
		UserMessage: "hello",
		AgentReply:  "hi there",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	records, err := l.All(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, key, records[0].Key)
	assert.Equal(t, "hello", records[0].Value.UserMessage)
	assert.False(t, records[0].Value.Timestamp.IsZero())

	others, err := l.All(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestLedgerSearchRanksByOccurrence(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.Append(ctx, "alice", Value{Type: TypeConversation, UserMessage: "tell me about go"})
	require.NoError(t, err)
	_, err = l.Append(ctx, "alice", Value{Type: TypeConversation, UserMessage: "go go go modules"})
	require.NoError(t, err)
	_, err = l.Append(ctx, "alice", Value{Type: TypeConversation, UserMessage: "weather tomorrow"})
	require.NoError(t, err)

	hits, err := l.Search(ctx, "alice", "GO", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Contains(t, hits[0].Value.UserMessage, "go go go")
}

func TestLedgerSearchEmptyQueryReturnsMostRecent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	for i := 0; i < 4; i++ {
		_, err := l.Append(ctx, "alice", Value{Type: TypeConversation, UserMessage: fmt.Sprintf("turn %d", i)})
		require.NoError(t, err)
	}

	hits, err := l.Search(ctx, "alice", "", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "turn 3", hits[0].Value.UserMessage)
	assert.Equal(t, "turn 2", hits[1].Value.UserMessage)
}

type fixedBackend struct {
	reply string
	calls int
}

func (f *fixedBackend) Generate(_ context.Context, _ []model.Message) (string, error) {
	f.calls++
	return f.reply, nil
}

type fixedResolver struct{ backend *fixedBackend }

func (f *fixedResolver) Resolve(string) (model.Backend, error) { return f.backend, nil }

func appendTurns(t *testing.T, l *Ledger, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := l.Append(context.Background(), userID, Value{
			Type:        TypeConversation,
			UserMessage: fmt.Sprintf("question %d", i),
			AgentReply:  fmt.Sprintf("answer %d", i),
		})
		require.NoError(t, err)
	}
}

func TestSummarizerBelowThresholdDoesNothing(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	backend := &fixedBackend{reply: "summary"}
	s := NewSummarizer(l, &fixedResolver{backend}, slog.Default())

	appendTurns(t, l, "alice", 7)
	require.NoError(t, s.MaybeSummarize(ctx, "alice"))
	assert.Zero(t, backend.calls)
}

func TestSummarizerCreatesOneSummaryAtEightTurns(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	backend := &fixedBackend{reply: "they talked about the weather"}
	s := NewSummarizer(l, &fixedResolver{backend}, slog.Default())

	appendTurns(t, l, "alice", 8)
	require.NoError(t, s.MaybeSummarize(ctx, "alice"))
	assert.Equal(t, 1, backend.calls)

	records, err := l.All(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 9)
	last := records[len(records)-1]
	assert.Equal(t, TypeSummary, last.Value.Type)
	assert.Equal(t, 8, last.Value.ConversationCount)
	assert.Equal(t, "they talked about the weather", last.Value.Summary)

	// Running again without new turns must not summarize twice.
	require.NoError(t, s.MaybeSummarize(ctx, "alice"))
	assert.Equal(t, 1, backend.calls)
}

func TestSummarizerWatermarkIsMonotonic(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	backend := &fixedBackend{reply: "condensed"}
	s := NewSummarizer(l, &fixedResolver{backend}, slog.Default())

	appendTurns(t, l, "alice", 8)
	require.NoError(t, s.MaybeSummarize(ctx, "alice"))
	appendTurns(t, l, "alice", 8)
	require.NoError(t, s.MaybeSummarize(ctx, "alice"))

	records, err := l.All(ctx, "alice")
	require.NoError(t, err)
	var marks []int
	for _, rec := range records {
		if rec.Value.Type == TypeSummary {
			marks = append(marks, rec.Value.ConversationCount)
		}
	}
	require.Equal(t, []int{8, 16}, marks)
}

func TestSummarizerSkipsEmptySummaryText(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	backend := &fixedBackend{reply: "   "}
	s := NewSummarizer(l, &fixedResolver{backend}, slog.Default())

	appendTurns(t, l, "alice", 8)
	require.NoError(t, s.MaybeSummarize(ctx, "alice"))

	records, err := l.All(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, records, 8)
}
