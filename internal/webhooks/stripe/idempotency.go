package stripewebhook

import (
	"context"
	"time"

	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/redis"
)

const (
	// DefaultDedupTTL covers Stripe's three day retry schedule with margin.
	DefaultDedupTTL = 30 * 24 * time.Hour
	dedupScope      = "stripe-webhook"
)

// EventDeduper remembers delivered event ids so retried deliveries are
// acknowledged without being applied twice.
type EventDeduper struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

// NewEventDeduper falls back to DefaultDedupTTL when ttl is not positive.
func NewEventDeduper(store redis.IdempotencyStore, ttl time.Duration) (*EventDeduper, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency store required")
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &EventDeduper{store: store, ttl: ttl, now: time.Now}, nil
}

// Claim records eventID and reports whether it had already been claimed.
func (d *EventDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	key, err := d.key(eventID)
	if err != nil {
		return false, err
	}
	claimed, err := d.store.SetNX(ctx, key, d.now().UTC().Format(time.RFC3339), d.ttl)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event")
	}
	return !claimed, nil
}

// Release forgets eventID so Stripe's next retry is processed again.
func (d *EventDeduper) Release(ctx context.Context, eventID string) error {
	key, err := d.key(eventID)
	if err != nil {
		return err
	}
	if err := d.store.Del(ctx, key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stripe event")
	}
	return nil
}

func (d *EventDeduper) key(eventID string) (string, error) {
	if eventID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "stripe event id required")
	}
	return d.store.IdempotencyKey(dedupScope, eventID), nil
}
