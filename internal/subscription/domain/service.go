package domain

import (
	"context"

	"github.com/smallbiznis/subsync/internal/webhook/event"
)

type Service interface {
	Reconcile(ctx context.Context, evt *event.VerifiedEvent) (*ReconciliationResult, error)
}

// ReconciliationResult describes what a single event did to a record.
type ReconciliationResult struct {
	EventID  string
	Kind     event.Kind
	UserID   string
	Outcome  Outcome
	Reason   string
	Previous *SubscriptionRecord
	Current  *SubscriptionRecord
}

// Changed reports whether the status moved.
func (r *ReconciliationResult) Changed() bool {
	if r == nil || r.Outcome != OutcomeApplied {
		return false
	}
	return StatusOf(r.Previous) != StatusOf(r.Current)
}

// Notifier receives committed changes. It is invoked after the write and
// never influences the webhook outcome.
type Notifier interface {
	Notify(ctx context.Context, result ReconciliationResult) error
}
