package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClientNotFound       = errors.New("payment_client_not_found")
	ErrNotConfigured        = errors.New("payment_client_not_configured")
	ErrSubscriptionNotFound = errors.New("provider_subscription_not_found")
	ErrUnavailable          = errors.New("payment_provider_unavailable")
)

// ClientConfig is what a factory needs to build a Client.
type ClientConfig struct {
	Provider       string
	APIKey         string
	WebhookSecrets []string
}

//go:generate mockgen -source=client.go -destination=../mocks/mock_client.go -package=mocks

// Client is the narrow provider capability used by the webhook pipeline.
type Client interface {
	Provider() string
	// Verify authenticates a raw webhook body against its signature header.
	Verify(payload []byte, header string, tolerance time.Duration, now time.Time) error
	// FetchSubscription returns the provider's current view of a subscription.
	FetchSubscription(ctx context.Context, ref string) (*ProviderSubscription, error)
}

type ClientFactory interface {
	Name() string
	NewClient(cfg ClientConfig) (Client, error)
}

// ProviderSubscription is the provider-side subscription projection.
type ProviderSubscription struct {
	ID                string
	CustomerRef       string
	Status            string
	PlanID            string
	BillingCycle      string
	Amount            int64
	Currency          string
	PeriodEnd         *time.Time
	CancelAtPeriodEnd bool
	Metadata          map[string]string
}
