package event_test

import (
	"testing"
	"time"

	"github.com/smallbiznis/subsync/internal/webhook/event"
	"github.com/smallbiznis/subsync/internal/webhook/event/eventtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

func TestParseRecognizedKinds(t *testing.T) {
	periodEnd := created.AddDate(0, 1, 0)

	tests := []struct {
		name     string
		body     []byte
		wantKind event.Kind
		check    func(t *testing.T, p event.Payload)
	}{{
		name: "checkout.session.completed",
		body: eventtest.CheckoutCompleted(eventtest.Checkout{
			EventID:         "evt_checkout",
			UserID:          "user_1",
			CustomerRef:     "cus_1",
			SubscriptionRef: "sub_1",
			PlanID:          "pro",
			Created:         created,
		}),
		wantKind: event.KindCheckoutCompleted,
		check: func(t *testing.T, p event.Payload) {
			assert.Equal(t, "user_1", p.UserID)
			assert.Equal(t, "cus_1", p.CustomerRef)
			assert.Equal(t, "sub_1", p.SubscriptionRef)
			assert.Equal(t, "pro", p.PlanID)
			assert.Equal(t, event.PaymentStatusPaid, p.PaymentStatus)
			assert.Equal(t, event.CheckoutModeSubscribe, p.Mode)
			assert.Equal(t, "USD", p.Currency)
			assert.Nil(t, p.PeriodEnd)
			assert.True(t, p.IsSummary())
		},
	}, {
		name: "customer.subscription.updated",
		body: eventtest.SubscriptionEvent(eventtest.Subscription{
			EventID:           "evt_sub",
			SubscriptionRef:   "sub_1",
			CustomerRef:       "cus_1",
			Status:            "active",
			PeriodEnd:         periodEnd,
			CancelAtPeriodEnd: true,
			Created:           created,
		}),
		wantKind: event.KindSubscriptionUpdated,
		check: func(t *testing.T, p event.Payload) {
			require.NotNil(t, p.PeriodEnd)
			assert.True(t, periodEnd.Equal(*p.PeriodEnd))
			require.NotNil(t, p.CancelAtPeriodEnd)
			assert.True(t, *p.CancelAtPeriodEnd)
			assert.Equal(t, "price_pro_monthly", p.PlanID)
			assert.Equal(t, "monthly", p.BillingCycle)
			assert.Equal(t, int64(1999), p.Amount)
			assert.False(t, p.IsSummary())
		},
	}, {
		name: "customer.subscription.created maps to updated",
		body: eventtest.SubscriptionEvent(eventtest.Subscription{
			EventID:         "evt_sub_created",
			Type:            "customer.subscription.created",
			SubscriptionRef: "sub_1",
			CustomerRef:     "cus_1",
			Status:          "trialing",
			Created:         created,
		}),
		wantKind: event.KindSubscriptionUpdated,
	}, {
		name: "customer.subscription.deleted",
		body: eventtest.SubscriptionEvent(eventtest.Subscription{
			EventID:         "evt_sub_deleted",
			Type:            "customer.subscription.deleted",
			SubscriptionRef: "sub_1",
			CustomerRef:     "cus_1",
			Status:          "canceled",
			Created:         created,
		}),
		wantKind: event.KindSubscriptionDeleted,
	}, {
		name: "invoice.payment_failed",
		body: eventtest.InvoiceEvent(eventtest.Invoice{
			EventID:         "evt_inv",
			CustomerRef:     "cus_1",
			SubscriptionRef: "sub_1",
			Created:         created,
		}),
		wantKind: event.KindInvoicePaymentFailed,
		check: func(t *testing.T, p event.Payload) {
			assert.Equal(t, "sub_1", p.SubscriptionRef)
			assert.Equal(t, "cus_1", p.CustomerRef)
			assert.Empty(t, p.UserID)
		},
	}, {
		name: "invoice.paid",
		body: eventtest.InvoiceEvent(eventtest.Invoice{
			EventID:         "evt_inv_paid",
			Type:            "invoice.paid",
			CustomerRef:     "cus_1",
			SubscriptionRef: "sub_1",
			PeriodEnd:       periodEnd,
			Created:         created,
		}),
		wantKind: event.KindInvoicePaymentSucceeded,
		check: func(t *testing.T, p event.Payload) {
			require.NotNil(t, p.PeriodEnd)
			assert.True(t, periodEnd.Equal(*p.PeriodEnd))
		},
	}}

	parser := event.NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := parser.Parse(tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, evt.Kind)
			assert.True(t, created.Equal(evt.OccurredAt))
			assert.Equal(t, tt.body, evt.Raw)
			if tt.check != nil {
				tt.check(t, evt.Payload)
			}
		})
	}
}

func TestParseUnrecognizedKind(t *testing.T) {
	evt, err := event.NewParser().Parse(eventtest.Unrecognized("evt_unknown", created))
	require.ErrorIs(t, err, event.ErrUnrecognizedEventKind)
	require.NotNil(t, evt)
	assert.Equal(t, "evt_unknown", evt.ID)
	assert.Equal(t, "customer.tax_id.created", evt.ProviderType)
}

func TestParseMalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte(`{"id":`)},
		{"missing id", []byte(`{"type":"invoice.payment_failed","created":1700000000,"data":{"object":{}}}`)},
		{"missing created", []byte(`{"id":"evt_1","type":"invoice.payment_failed","data":{"object":{}}}`)},
		{"null object", []byte(`{"id":"evt_1","type":"invoice.payment_failed","created":1700000000,"data":{"object":null}}`)},
		{"checkout without user", eventtest.CheckoutCompleted(eventtest.Checkout{
			EventID:         "evt_no_user",
			CustomerRef:     "cus_1",
			SubscriptionRef: "sub_1",
			Created:         created,
		})},
		{"checkout without subscription", eventtest.CheckoutCompleted(eventtest.Checkout{
			EventID:     "evt_no_sub",
			UserID:      "user_1",
			CustomerRef: "cus_1",
			Created:     created,
		})},
		{"subscription without customer", eventtest.SubscriptionEvent(eventtest.Subscription{
			EventID:         "evt_sub_no_customer",
			SubscriptionRef: "sub_1",
			Status:          "active",
			Created:         created,
		})},
		{"invoice without customer", eventtest.InvoiceEvent(eventtest.Invoice{
			EventID:         "evt_inv_no_customer",
			SubscriptionRef: "sub_1",
			Created:         created,
		})},
	}

	parser := event.NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(tt.body)
			assert.ErrorIs(t, err, event.ErrMalformedPayload)
		})
	}
}

func TestParseCheckoutOutsideSubscriptionModeNeedsNoUser(t *testing.T) {
	body := eventtest.CheckoutCompleted(eventtest.Checkout{
		EventID: "evt_one_off",
		Mode:    "payment",
		Created: created,
	})
	evt, err := event.NewParser().Parse(body)
	require.NoError(t, err)
	assert.Equal(t, "payment", evt.Payload.Mode)
}

func TestParseExpandedCustomerObject(t *testing.T) {
	body := []byte(`{"id":"evt_exp","type":"customer.subscription.updated","created":1700000000,
		"data":{"object":{"id":"sub_9","customer":{"id":"cus_9","object":"customer"},"status":"past_due",
		"current_period_end":1702592000,"items":{"data":[]}}}}`)
	evt, err := event.NewParser().Parse(body)
	require.NoError(t, err)
	assert.Equal(t, "cus_9", evt.Payload.CustomerRef)
	require.NotNil(t, evt.Payload.PeriodEnd)
	assert.Equal(t, int64(1702592000), evt.Payload.PeriodEnd.Unix())
}
