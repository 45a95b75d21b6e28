// Package memory keeps an append-only per-user record log with search and
// a derived summarization watermark over the conversation history.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/deepagent/pkg/cerr"
	"github.com/kazz187/deepagent/pkg/storage"
)

const memoryPrefix = "memory"

// Record types stored in the ledger.
const (
	TypeConversation = "conversation"
	TypeSummary      = "summary"
	TypeFact         = "fact"
)

// Value is the payload of one ledger record. Fields are sparse; which ones
// are set depends on Type.
type Value struct {
	Type              string    `json:"type"`
	ThreadID          string    `json:"thread_id,omitempty"`
	UserMessage       string    `json:"user_message,omitempty"`
	AgentReply        string    `json:"agent_reply,omitempty"`
	PlanSummary       string    `json:"plan_summary,omitempty"`
	Summary           string    `json:"summary,omitempty"`
	Content           string    `json:"content,omitempty"`
	ConversationCount int       `json:"conversation_count,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Record is one entry in a user's ledger.
type Record struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Ledger is the append-only per-user record log. Appends to the same user
// are serialized; readers see the last written document.
type Ledger struct {
	storage storage.Storage

	mu sync.Mutex
}

func NewLedger(s storage.Storage) *Ledger {
	return &Ledger{storage: s}
}

func ledgerPath(userID string) string {
	return fmt.Sprintf("%s/%s.json", memoryPrefix, userID)
}

// All returns every record for a user in append order.
func (l *Ledger) All(ctx context.Context, userID string) ([]Record, error) {
	data, err := l.storage.Read(ctx, ledgerPath(userID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, cerr.NewError(cerr.Internal, "failed to read memory ledger", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, cerr.NewError(cerr.Internal, "failed to decode memory ledger", err)
	}
	return records, nil
}

// Append adds one record to a user's ledger and returns its key. A missing
// key or timestamp is filled in.
func (l *Ledger) Append(ctx context.Context, userID string, value Value) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.All(ctx, userID)
	if err != nil {
		return "", err
	}
	rec := Record{Key: ulid.Make().String(), Value: value}
	if rec.Value.Timestamp.IsZero() {
		rec.Value.Timestamp = time.Now().UTC()
	}
	records = append(records, rec)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", cerr.NewError(cerr.Internal, "failed to encode memory ledger", err)
	}
	if err := l.storage.Write(ctx, ledgerPath(userID), data); err != nil {
		return "", cerr.NewError(cerr.Internal, "failed to write memory ledger", err)
	}
	return rec.Key, nil
}

// Search returns up to limit records ranked by case-insensitive occurrence
// count of the query terms, most recent first among equal scores. An empty
// query returns the most recent records.
func (l *Ledger) Search(ctx context.Context, userID, query string, limit int) ([]Record, error) {
	records, err := l.All(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	terms := strings.Fields(strings.ToLower(query))
	type scored struct {
		rec   Record
		score int
		idx   int
	}
	var hits []scored
	for i, rec := range records {
		haystack := strings.ToLower(searchText(rec.Value))
		score := 0
		for _, term := range terms {
			score += strings.Count(haystack, term)
		}
		if len(terms) > 0 && score == 0 {
			continue
		}
		hits = append(hits, scored{rec: rec, score: score, idx: i})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].idx > hits[j].idx
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Record, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.rec)
	}
	return out, nil
}

func searchText(v Value) string {
	return strings.Join([]string{v.UserMessage, v.AgentReply, v.PlanSummary, v.Summary, v.Content}, "\n")
}
