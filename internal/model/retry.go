package model

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

var retryBaseDelay = time.Second

const defaultMaxRetries = 3

// retryBudget lets a backend carry its configured attempt budget.
type retryBudget interface {
	MaxRetries() int
}

// GenerateWithRetry retries rate-limited calls with doubling delay and a
// small jitter. Other errors return immediately. The attempt budget comes
// from the backend's configuration when it exposes one.
func GenerateWithRetry(ctx context.Context, b Backend, messages []Message) (string, error) {
	maxRetries := defaultMaxRetries
	if rb, ok := b.(retryBudget); ok && rb.MaxRetries() > 0 {
		maxRetries = rb.MaxRetries()
	}
	delay := retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		out, err := b.Generate(ctx, messages)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !errors.Is(err, ErrRateLimited) || attempt == maxRetries {
			return "", err
		}
		wait := delay + time.Duration(rand.Int63n(int64(300*time.Millisecond)))
		slog.Warn("backend rate limited, backing off", "attempt", attempt, "wait", wait)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
	return "", lastErr
}
