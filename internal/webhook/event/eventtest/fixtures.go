// Package eventtest builds provider webhook bodies for tests.
package eventtest

import (
	"encoding/json"
	"time"
)

type Checkout struct {
	EventID         string
	SessionID       string
	UserID          string
	CustomerRef     string
	SubscriptionRef string
	PlanID          string
	PaymentStatus   string
	Mode            string
	Created         time.Time
}

func CheckoutCompleted(c Checkout) []byte {
	if c.PaymentStatus == "" {
		c.PaymentStatus = "paid"
	}
	if c.Mode == "" {
		c.Mode = "subscription"
	}
	if c.SessionID == "" {
		c.SessionID = "cs_" + c.EventID
	}
	metadata := map[string]any{}
	if c.UserID != "" {
		metadata["user_id"] = c.UserID
	}
	if c.PlanID != "" {
		metadata["plan_id"] = c.PlanID
	}
	return envelope(c.EventID, "checkout.session.completed", c.Created, map[string]any{
		"id":             c.SessionID,
		"object":         "checkout.session",
		"mode":           c.Mode,
		"payment_status": c.PaymentStatus,
		"customer":       c.CustomerRef,
		"subscription":   c.SubscriptionRef,
		"amount_total":   1999,
		"currency":       "usd",
		"metadata":       metadata,
	})
}

type Subscription struct {
	EventID           string
	Type              string
	SubscriptionRef   string
	CustomerRef       string
	UserID            string
	Status            string
	PriceID           string
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	Created           time.Time
}

func SubscriptionEvent(s Subscription) []byte {
	if s.Type == "" {
		s.Type = "customer.subscription.updated"
	}
	if s.PriceID == "" {
		s.PriceID = "price_pro_monthly"
	}
	metadata := map[string]any{}
	if s.UserID != "" {
		metadata["user_id"] = s.UserID
	}
	item := map[string]any{
		"id":       "si_" + s.SubscriptionRef,
		"quantity": 1,
		"price": map[string]any{
			"id":          s.PriceID,
			"unit_amount": 1999,
			"currency":    "usd",
			"recurring":   map[string]any{"interval": "month"},
		},
	}
	if !s.PeriodEnd.IsZero() {
		item["current_period_end"] = s.PeriodEnd.Unix()
	}
	return envelope(s.EventID, s.Type, s.Created, map[string]any{
		"id":                   s.SubscriptionRef,
		"object":               "subscription",
		"customer":             s.CustomerRef,
		"status":               s.Status,
		"cancel_at_period_end": s.CancelAtPeriodEnd,
		"metadata":             metadata,
		"items":                map[string]any{"data": []any{item}},
	})
}

type Invoice struct {
	EventID         string
	Type            string
	InvoiceID       string
	CustomerRef     string
	SubscriptionRef string
	PeriodEnd       time.Time
	Created         time.Time
}

func InvoiceEvent(i Invoice) []byte {
	if i.Type == "" {
		i.Type = "invoice.payment_failed"
	}
	if i.InvoiceID == "" {
		i.InvoiceID = "in_" + i.EventID
	}
	object := map[string]any{
		"id":         i.InvoiceID,
		"object":     "invoice",
		"customer":   i.CustomerRef,
		"status":     "open",
		"amount_due": 1999,
		"currency":   "usd",
		"parent": map[string]any{
			"subscription_details": map[string]any{
				"subscription": i.SubscriptionRef,
			},
		},
	}
	if !i.PeriodEnd.IsZero() {
		object["lines"] = map[string]any{
			"data": []any{map[string]any{"period": map[string]any{"end": i.PeriodEnd.Unix()}}},
		}
	}
	return envelope(i.EventID, i.Type, i.Created, object)
}

func Unrecognized(eventID string, created time.Time) []byte {
	return envelope(eventID, "customer.tax_id.created", created, map[string]any{
		"id":     "txi_" + eventID,
		"object": "tax_id",
	})
}

func envelope(id, eventType string, created time.Time, object map[string]any) []byte {
	if created.IsZero() {
		created = time.Now()
	}
	body, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     created.Unix(),
		"livemode":    false,
		"api_version": "2025-03-31.basil",
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		panic(err)
	}
	return body
}

// WithLivemode returns body with its livemode flag set to live.
func WithLivemode(body []byte, live bool) []byte {
	var env map[string]any
	if err := json.Unmarshal(body, &env); err != nil {
		panic(err)
	}
	env["livemode"] = live
	out, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	return out
}
