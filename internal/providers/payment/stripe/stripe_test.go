package stripe

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/subsync/internal/providers/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v82"
)

func TestToProviderSubscriptionUsesLatestItemPeriodEnd(t *testing.T) {
	sub := &stripego.Subscription{
		ID:                "sub_123",
		Status:            stripego.SubscriptionStatusActive,
		CancelAtPeriodEnd: true,
		Customer:          &stripego.Customer{ID: "cus_123"},
		Items: &stripego.SubscriptionItemList{Data: []*stripego.SubscriptionItem{
			{
				CurrentPeriodEnd: 1_760_000_000,
				Quantity:         2,
				Price: &stripego.Price{
					ID:         "price_pro",
					UnitAmount: 1500,
					Currency:   stripego.CurrencyUSD,
					Recurring:  &stripego.PriceRecurring{Interval: stripego.PriceRecurringIntervalMonth},
				},
			},
			{CurrentPeriodEnd: 1_770_000_000},
		}},
	}

	got := toProviderSubscription(sub)
	require.NotNil(t, got)
	assert.Equal(t, "sub_123", got.ID)
	assert.Equal(t, "cus_123", got.CustomerRef)
	assert.Equal(t, "active", got.Status)
	assert.Equal(t, "price_pro", got.PlanID)
	assert.Equal(t, "monthly", got.BillingCycle)
	assert.Equal(t, int64(3000), got.Amount)
	assert.Equal(t, "USD", got.Currency)
	assert.True(t, got.CancelAtPeriodEnd)
	require.NotNil(t, got.PeriodEnd)
	assert.Equal(t, time.Unix(1_770_000_000, 0).UTC(), *got.PeriodEnd)
}

func TestToProviderSubscriptionMetadataPlanWins(t *testing.T) {
	got := toProviderSubscription(&stripego.Subscription{
		ID:       "sub_1",
		Metadata: map[string]string{"plan_id": "team"},
		Items: &stripego.SubscriptionItemList{Data: []*stripego.SubscriptionItem{
			{Price: &stripego.Price{ID: "price_x"}},
		}},
	})
	assert.Equal(t, "team", got.PlanID)
	assert.Nil(t, got.PeriodEnd)
}

func TestMapError(t *testing.T) {
	notFound := &stripego.Error{HTTPStatusCode: http.StatusNotFound, Msg: "No such subscription"}
	assert.ErrorIs(t, mapError(notFound), domain.ErrSubscriptionNotFound)

	throttled := &stripego.Error{HTTPStatusCode: http.StatusTooManyRequests}
	assert.ErrorIs(t, mapError(throttled), domain.ErrUnavailable)

	outage := &stripego.Error{HTTPStatusCode: http.StatusBadGateway}
	assert.ErrorIs(t, mapError(outage), domain.ErrUnavailable)

	assert.ErrorIs(t, mapError(errors.New("dial tcp: refused")), domain.ErrUnavailable)
}
