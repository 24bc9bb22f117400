package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/subsync/internal/providers/payment/domain"
	"github.com/smallbiznis/subsync/internal/webhook/signature"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"
)

const providerName = "stripe"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Name() string {
	return providerName
}

func (f *Factory) NewClient(cfg domain.ClientConfig) (domain.Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("%w: stripe api key is required", domain.ErrNotConfigured)
	}
	return &Client{
		secrets: cleanSecrets(cfg.WebhookSecrets),
		subs:    &subscription.Client{B: stripego.GetBackend(stripego.APIBackend), Key: key},
	}, nil
}

// Client talks to the Stripe API with stripe-go.
type Client struct {
	secrets []string
	subs    *subscription.Client
}

func (c *Client) Provider() string {
	return providerName
}

func (c *Client) Verify(payload []byte, header string, tolerance time.Duration, now time.Time) error {
	return signature.VerifyAny(payload, header, c.secrets, tolerance, now)
}

func (c *Client) FetchSubscription(ctx context.Context, ref string) (*domain.ProviderSubscription, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.ErrSubscriptionNotFound
	}

	params := &stripego.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := c.subs.Get(ref, params)
	if err != nil {
		return nil, mapError(err)
	}
	return toProviderSubscription(sub), nil
}

func mapError(err error) error {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == http.StatusNotFound,
			stripeErr.Code == stripego.ErrorCodeResourceMissing:
			return fmt.Errorf("%w: %s", domain.ErrSubscriptionNotFound, stripeErr.Msg)
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %s", domain.ErrUnavailable, stripeErr.Msg)
		}
		return fmt.Errorf("stripe: %s", stripeErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
}

func toProviderSubscription(sub *stripego.Subscription) *domain.ProviderSubscription {
	if sub == nil {
		return nil
	}
	out := &domain.ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		Currency:          strings.ToUpper(string(sub.Currency)),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerRef = sub.Customer.ID
	}

	var end int64
	if sub.Items != nil {
		for i, item := range sub.Items.Data {
			if item == nil {
				continue
			}
			if item.CurrentPeriodEnd > end {
				end = item.CurrentPeriodEnd
			}
			if i != 0 || item.Price == nil {
				continue
			}
			out.PlanID = item.Price.ID
			out.Amount = item.Price.UnitAmount * max(item.Quantity, 1)
			if out.Currency == "" {
				out.Currency = strings.ToUpper(string(item.Price.Currency))
			}
			if item.Price.Recurring != nil {
				out.BillingCycle = cycleOf(string(item.Price.Recurring.Interval))
			}
		}
	}
	if end > 0 {
		ts := time.Unix(end, 0).UTC()
		out.PeriodEnd = &ts
	}
	if plan := strings.TrimSpace(sub.Metadata["plan_id"]); plan != "" {
		out.PlanID = plan
	}
	return out
}

func cycleOf(interval string) string {
	switch interval {
	case "month":
		return "monthly"
	case "year":
		return "yearly"
	case "week":
		return "weekly"
	case "day":
		return "daily"
	default:
		return interval
	}
}

func cleanSecrets(secrets []string) []string {
	out := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
