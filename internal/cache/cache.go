package cache

import (
	"context"
	"time"
)

// IntentCache remembers which sale a payment intent reconciled to, so webhook
// retries can short-circuit before hitting the database. It is advisory only:
// a miss or an error just means the store's unique index does the work.
type IntentCache interface {
	Get(ctx context.Context, intentID string) (string, bool, error)
	Set(ctx context.Context, intentID string, saleID string, ttl time.Duration) error
}

type NoopIntentCache struct{}

func (NoopIntentCache) Get(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

func (NoopIntentCache) Set(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}
