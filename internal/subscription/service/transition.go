package service

import (
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/subsync/internal/providers/payment/domain"
	"github.com/smallbiznis/subsync/internal/subscription/domain"
	"github.com/smallbiznis/subsync/internal/webhook/event"
)

// Skip reasons recorded on the processed event.
const (
	ReasonNotSubscriptionCheckout = "checkout_not_subscription_mode"
	ReasonPaymentNotPaid          = "checkout_payment_not_paid"
	ReasonNoSubscription          = "no_subscription_record"
	ReasonSubscriptionMismatch    = "subscription_ref_mismatch"
	ReasonStaleEvent              = "older_than_last_applied_event"
	ReasonSubscriptionClosed      = "subscription_closed"
)

// Decision is the result of applying one event to one record.
type Decision struct {
	Next   *domain.SubscriptionRecord
	Reason string
	// Pending marks an event that cannot be applied yet and must not be
	// claimed, so a redelivery can apply it once its record exists.
	Pending bool
}

func (d Decision) Skipped() bool {
	return d.Next == nil && !d.Pending
}

func skip(reason string) Decision {
	return Decision{Reason: reason}
}

func pending(reason string) Decision {
	return Decision{Reason: reason, Pending: true}
}

// Apply computes the record that results from evt. It performs no I/O:
// provider data must be fetched by the caller and passed as lookup, which
// may be nil. current is never modified.
func Apply(current *domain.SubscriptionRecord, evt *event.VerifiedEvent, userID string, lookup *paymentdomain.ProviderSubscription, now time.Time) Decision {
	p := evt.Payload

	if evt.Kind == event.KindCheckoutCompleted {
		if p.Mode != event.CheckoutModeSubscribe {
			return skip(ReasonNotSubscriptionCheckout)
		}
		if p.PaymentStatus != event.PaymentStatusPaid {
			return skip(ReasonPaymentNotPaid)
		}
		if current != nil && evt.OccurredAt.Before(current.LastEventAt) {
			return skip(ReasonStaleEvent)
		}
		return activate(current, evt, userID, lookup, now)
	}

	switch {
	case current == nil:
		return pending(ReasonNoSubscription)
	case current.ProviderSubscriptionID != p.SubscriptionRef:
		return skip(ReasonSubscriptionMismatch)
	case evt.OccurredAt.Before(current.LastEventAt):
		return skip(ReasonStaleEvent)
	}

	next := current.Clone()
	switch evt.Kind {
	case event.KindInvoicePaymentFailed:
		if current.Status == domain.StatusCanceled {
			return skip(ReasonSubscriptionClosed)
		}
		next.Status = domain.StatusPastDue

	case event.KindInvoicePaymentSucceeded:
		if current.Status == domain.StatusCanceled {
			return skip(ReasonSubscriptionClosed)
		}
		next.Status = domain.StatusActive
		if p.PeriodEnd != nil {
			next.CurrentPeriodEnd = laterOf(next.CurrentPeriodEnd, p.PeriodEnd)
		}

	case event.KindSubscriptionUpdated:
		status, cancelAtEnd, periodEnd, planID, cycle := p.Status, p.CancelAtPeriodEnd, p.PeriodEnd, p.PlanID, p.BillingCycle
		if lookup != nil {
			if periodEnd == nil {
				periodEnd = lookup.PeriodEnd
			}
			if planID == "" {
				planID = lookup.PlanID
			}
			if cycle == "" {
				cycle = lookup.BillingCycle
			}
			if status == "" {
				status = lookup.Status
			}
		}
		if mapped, ok := MapProviderStatus(status); ok {
			next.Status = mapped
		}
		if cancelAtEnd != nil {
			next.CancelAtPeriodEnd = *cancelAtEnd
		}
		if periodEnd != nil {
			next.CurrentPeriodEnd = copyTime(periodEnd)
		}
		if planID != "" {
			next.PlanID = planID
		}
		if cycle != "" {
			next.BillingCycle = cycle
		}
		if p.Amount > 0 {
			next.Amount = p.Amount
			next.Currency = p.Currency
		}

	case event.KindSubscriptionDeleted:
		next.Status = domain.StatusCanceled
		next.CancelAtPeriodEnd = false
		if p.PeriodEnd != nil {
			next.CurrentPeriodEnd = copyTime(p.PeriodEnd)
		}

	default:
		return skip("unsupported_kind")
	}

	stamp(next, evt, now)
	return Decision{Next: next}
}

func activate(current *domain.SubscriptionRecord, evt *event.VerifiedEvent, userID string, lookup *paymentdomain.ProviderSubscription, now time.Time) Decision {
	p := evt.Payload

	next := current.Clone()
	if next == nil {
		next = &domain.SubscriptionRecord{UserID: userID, CreatedAt: now}
	}
	// A checkout for a different subscription replaces the previous one.
	if next.ProviderSubscriptionID != p.SubscriptionRef {
		next.CurrentPeriodEnd = nil
		next.CancelAtPeriodEnd = false
	}

	next.Status = domain.StatusActive
	if lookup != nil {
		if mapped, ok := MapProviderStatus(lookup.Status); ok {
			next.Status = mapped
		}
	}
	next.ProviderCustomerID = p.CustomerRef
	next.ProviderSubscriptionID = p.SubscriptionRef
	next.PlanID = firstNonEmpty(p.PlanID, lookupPlan(lookup), next.PlanID)
	next.BillingCycle = firstNonEmpty(p.BillingCycle, lookupCycle(lookup), next.BillingCycle)
	if p.Amount > 0 {
		next.Amount = p.Amount
		next.Currency = p.Currency
	} else if lookup != nil && lookup.Amount > 0 {
		next.Amount = lookup.Amount
		next.Currency = lookup.Currency
	}
	switch {
	case p.PeriodEnd != nil:
		next.CurrentPeriodEnd = copyTime(p.PeriodEnd)
	case lookup != nil && lookup.PeriodEnd != nil:
		next.CurrentPeriodEnd = copyTime(lookup.PeriodEnd)
	}
	if lookup != nil {
		next.CancelAtPeriodEnd = lookup.CancelAtPeriodEnd
	}

	stamp(next, evt, now)
	return Decision{Next: next}
}

// MapProviderStatus folds the provider's subscription statuses onto the
// four entitlement states.
func MapProviderStatus(raw string) (domain.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "trialing":
		return domain.StatusActive, true
	case "past_due", "unpaid", "incomplete", "paused":
		return domain.StatusPastDue, true
	case "canceled", "cancelled", "incomplete_expired":
		return domain.StatusCanceled, true
	default:
		return "", false
	}
}

func stamp(next *domain.SubscriptionRecord, evt *event.VerifiedEvent, now time.Time) {
	next.LastEventID = evt.ID
	next.LastEventAt = evt.OccurredAt
	next.UpdatedAt = now
}

func laterOf(a, b *time.Time) *time.Time {
	if a == nil || (b != nil && b.After(*a)) {
		return copyTime(b)
	}
	return copyTime(a)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func lookupPlan(lookup *paymentdomain.ProviderSubscription) string {
	if lookup == nil {
		return ""
	}
	return lookup.PlanID
}

func lookupCycle(lookup *paymentdomain.ProviderSubscription) string {
	if lookup == nil {
		return ""
	}
	return lookup.BillingCycle
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
