package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var providerKinds = map[string]Kind{
	"checkout.session.completed":    KindCheckoutCompleted,
	"invoice.payment_failed":        KindInvoicePaymentFailed,
	"invoice.payment_succeeded":     KindInvoicePaymentSucceeded,
	"invoice.paid":                  KindInvoicePaymentSucceeded,
	"customer.subscription.created": KindSubscriptionUpdated,
	"customer.subscription.updated": KindSubscriptionUpdated,
	"customer.subscription.deleted": KindSubscriptionDeleted,
}

var userIDKeys = []string{"user_id", "userId", "uid"}

// Parser decodes verified webhook bodies into VerifiedEvent values.
type Parser struct {
	validate *validator.Validate
}

func NewParser() *Parser {
	return &Parser{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Parse decodes rawBody. It must only be called once the body's signature
// has been verified. Unknown provider types yield ErrUnrecognizedEventKind
// together with the envelope fields so callers can log and acknowledge.
func (p *Parser) Parse(rawBody []byte) (*VerifiedEvent, error) {
	var env envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	env.ID = strings.TrimSpace(env.ID)
	env.Type = strings.TrimSpace(env.Type)
	if env.ID == "" || env.Type == "" || env.Created <= 0 {
		return nil, fmt.Errorf("%w: envelope requires id, type and created", ErrMalformedPayload)
	}

	evt := &VerifiedEvent{
		ID:           env.ID,
		ProviderType: env.Type,
		OccurredAt:   time.Unix(env.Created, 0).UTC(),
		Livemode:     env.Livemode,
		Raw:          rawBody,
	}

	kind, ok := providerKinds[env.Type]
	if !ok {
		return evt, ErrUnrecognizedEventKind
	}
	evt.Kind = kind
	if len(env.Data.Object) == 0 || string(env.Data.Object) == "null" {
		return nil, fmt.Errorf("%w: data.object is required", ErrMalformedPayload)
	}

	var (
		payload Payload
		err     error
	)
	switch kind {
	case KindCheckoutCompleted:
		payload, err = p.parseCheckoutSession(env.Data.Object)
	case KindInvoicePaymentFailed, KindInvoicePaymentSucceeded:
		payload, err = p.parseInvoice(env.Data.Object)
	case KindSubscriptionUpdated, KindSubscriptionDeleted:
		payload, err = p.parseSubscription(env.Data.Object)
	}
	if err != nil {
		return nil, err
	}
	evt.Payload = payload
	return evt, nil
}

type checkoutRequired struct {
	SessionID       string `validate:"required"`
	PaymentStatus   string `validate:"required"`
	Mode            string `validate:"required"`
	CustomerRef     string `validate:"required_if=Mode subscription"`
	SubscriptionRef string `validate:"required_if=Mode subscription"`
	UserID          string `validate:"required_if=Mode subscription"`
}

type subscriptionRequired struct {
	SubscriptionRef string `validate:"required"`
	CustomerRef     string `validate:"required"`
	Status          string `validate:"required"`
}

type invoiceRequired struct {
	InvoiceID   string `validate:"required"`
	CustomerRef string `validate:"required"`
}

func (p *Parser) parseCheckoutSession(raw json.RawMessage) (Payload, error) {
	var session checkoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	userID := metadataValue(session.Metadata, userIDKeys...)
	if userID == "" {
		userID = strings.TrimSpace(session.ClientReferenceID)
	}
	payload := Payload{
		ObjectID:        strings.TrimSpace(session.ID),
		CustomerRef:     session.Customer.ID,
		SubscriptionRef: session.Subscription.ID,
		UserID:          userID,
		PlanID:          metadataValue(session.Metadata, "plan_id", "planId"),
		BillingCycle:    normalizeCycle(metadataValue(session.Metadata, "billing_cycle", "billingCycle")),
		Amount:          session.AmountTotal,
		Currency:        strings.ToUpper(strings.TrimSpace(session.Currency)),
		PaymentStatus:   strings.TrimSpace(session.PaymentStatus),
		Mode:            strings.TrimSpace(session.Mode),
	}

	if err := p.check(checkoutRequired{
		SessionID:       payload.ObjectID,
		PaymentStatus:   payload.PaymentStatus,
		Mode:            payload.Mode,
		CustomerRef:     payload.CustomerRef,
		SubscriptionRef: payload.SubscriptionRef,
		UserID:          payload.UserID,
	}); err != nil {
		return Payload{}, err
	}
	return payload, nil
}

func (p *Parser) parseSubscription(raw json.RawMessage) (Payload, error) {
	var sub subscriptionObject
	if err := json.Unmarshal(raw, &sub); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	cancel := sub.CancelAtPeriodEnd
	payload := Payload{
		ObjectID:          strings.TrimSpace(sub.ID),
		CustomerRef:       sub.Customer.ID,
		SubscriptionRef:   strings.TrimSpace(sub.ID),
		UserID:            metadataValue(sub.Metadata, userIDKeys...),
		PlanID:            metadataValue(sub.Metadata, "plan_id", "planId"),
		BillingCycle:      normalizeCycle(metadataValue(sub.Metadata, "billing_cycle", "billingCycle")),
		Status:            strings.TrimSpace(sub.Status),
		PeriodEnd:         sub.periodEnd(),
		CancelAtPeriodEnd: &cancel,
	}
	if item := sub.firstItem(); item != nil {
		if payload.PlanID == "" {
			payload.PlanID = item.priceID()
		}
		if payload.BillingCycle == "" {
			payload.BillingCycle = normalizeCycle(item.interval())
		}
		payload.Amount = item.Price.UnitAmount * max(item.Quantity, 1)
		payload.Currency = strings.ToUpper(strings.TrimSpace(item.Price.Currency))
	}

	if err := p.check(subscriptionRequired{
		SubscriptionRef: payload.SubscriptionRef,
		CustomerRef:     payload.CustomerRef,
		Status:          payload.Status,
	}); err != nil {
		return Payload{}, err
	}
	return payload, nil
}

func (p *Parser) parseInvoice(raw json.RawMessage) (Payload, error) {
	var inv invoiceObject
	if err := json.Unmarshal(raw, &inv); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	subscriptionRef := inv.Subscription.ID
	metadata := inv.SubscriptionDetails.Metadata
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		if subscriptionRef == "" {
			subscriptionRef = inv.Parent.SubscriptionDetails.Subscription.ID
		}
		if len(metadata) == 0 {
			metadata = inv.Parent.SubscriptionDetails.Metadata
		}
	}

	payload := Payload{
		ObjectID:        strings.TrimSpace(inv.ID),
		CustomerRef:     inv.Customer.ID,
		SubscriptionRef: subscriptionRef,
		UserID:          metadataValue(metadata, userIDKeys...),
		Amount:          inv.AmountDue,
		Currency:        strings.ToUpper(strings.TrimSpace(inv.Currency)),
		PaymentStatus:   strings.TrimSpace(inv.Status),
		PeriodEnd:       inv.linesPeriodEnd(),
	}

	if err := p.check(invoiceRequired{
		InvoiceID:   payload.ObjectID,
		CustomerRef: payload.CustomerRef,
	}); err != nil {
		return Payload{}, err
	}
	return payload, nil
}

func (p *Parser) check(required any) error {
	err := p.validate.Struct(required)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		names := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			names = append(names, fe.Field())
		}
		return fmt.Errorf("%w: missing %s", ErrMalformedPayload, strings.Join(names, ", "))
	}
	return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
}

func metadataValue(metadata map[string]string, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(metadata[key]); value != "" {
			return value
		}
	}
	return ""
}

func normalizeCycle(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "month", "monthly":
		return "monthly"
	case "year", "yearly", "annual", "annually":
		return "yearly"
	case "week", "weekly":
		return "weekly"
	case "day", "daily":
		return "daily"
	default:
		return strings.ToLower(strings.TrimSpace(raw))
	}
}
