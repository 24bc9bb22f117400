// Package idempotency decides whether a provider event has already been
// handled. The unique processed-event insert is the source of truth; the
// optional Redis lock only keeps concurrent redeliveries from doing the
// same provider lookups twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/subsync/internal/subscription/domain"
	"go.uber.org/zap"
)

var ErrInFlight = errors.New("event_in_flight")

type ClaimResult int

const (
	Claimed ClaimResult = iota + 1
	AlreadyProcessed
)

func (r ClaimResult) String() string {
	switch r {
	case Claimed:
		return "claimed"
	case AlreadyProcessed:
		return "already_processed"
	default:
		return "unknown"
	}
}

type Guard struct {
	store  domain.Store
	locker *Locker
	log    *zap.Logger
}

func NewGuard(store domain.Store, locker *Locker, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{store: store, locker: locker, log: log.Named("idempotency")}
}

// Seen returns the stored record when eventID was already processed.
func (g *Guard) Seen(ctx context.Context, eventID string) (*domain.ProcessedEventRecord, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, errors.New("event id is required")
	}
	record, err := g.store.FindProcessedEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return record, nil
}

// Claim inserts record inside tx. Exactly one of any number of concurrent
// claims for the same event ID observes Claimed.
func (g *Guard) Claim(ctx context.Context, tx domain.Tx, record *domain.ProcessedEventRecord) (ClaimResult, error) {
	if record == nil || strings.TrimSpace(record.EventID) == "" {
		return 0, errors.New("processed event record requires an event id")
	}
	inserted, err := tx.InsertProcessedEvent(ctx, record)
	if err != nil {
		return 0, err
	}
	if !inserted {
		return AlreadyProcessed, nil
	}
	return Claimed, nil
}

// Acquire takes the in-flight lock for eventID. The returned release func
// is always non-nil. Lock backend failures are logged and ignored.
func (g *Guard) Acquire(ctx context.Context, eventID string, ttl time.Duration) (func(), error) {
	noop := func() {}
	if g.locker == nil || ttl <= 0 {
		return noop, nil
	}

	token, ok, err := g.locker.TryLock(ctx, eventID, ttl)
	if err != nil {
		g.log.Warn("inflight lock unavailable", zap.String("event_id", eventID), zap.Error(err))
		return noop, nil
	}
	if !ok {
		return noop, ErrInFlight
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := g.locker.Release(releaseCtx, eventID, token); err != nil {
			g.log.Warn("inflight lock release failed", zap.String("event_id", eventID), zap.Error(err))
		}
	}, nil
}
