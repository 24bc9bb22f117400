package event

import (
	"errors"
	"time"
)

var (
	ErrUnrecognizedEventKind = errors.New("unrecognized_event_kind")
	ErrMalformedPayload      = errors.New("malformed_payload")
)

type Kind string

const (
	KindCheckoutCompleted       Kind = "checkout_completed"
	KindInvoicePaymentFailed    Kind = "invoice_payment_failed"
	KindInvoicePaymentSucceeded Kind = "invoice_payment_succeeded"
	KindSubscriptionUpdated     Kind = "subscription_updated"
	KindSubscriptionDeleted     Kind = "subscription_deleted"
)

const (
	PaymentStatusPaid     = "paid"
	CheckoutModeSubscribe = "subscription"
)

// VerifiedEvent is a provider event decoded from a signature-verified body.
type VerifiedEvent struct {
	ID           string
	Kind         Kind
	ProviderType string
	OccurredAt   time.Time
	Livemode     bool
	Payload      Payload
	Raw          []byte
}

// Payload carries the kind-specific fields the reconciler needs. Fields a
// kind does not define are left zero.
type Payload struct {
	ObjectID          string
	CustomerRef       string
	SubscriptionRef   string
	UserID            string
	PlanID            string
	BillingCycle      string
	Amount            int64
	Currency          string
	PaymentStatus     string
	Mode              string
	Status            string
	PeriodEnd         *time.Time
	CancelAtPeriodEnd *bool
}

// IsSummary reports whether the payload lacks the subscription fields
// that must then be fetched from the provider.
func (p Payload) IsSummary() bool {
	return p.PeriodEnd == nil || p.PlanID == ""
}
