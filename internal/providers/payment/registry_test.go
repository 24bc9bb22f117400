package payment

import (
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/subsync/internal/providers/payment/domain"
	"github.com/smallbiznis/subsync/internal/providers/payment/fake"
	"github.com/smallbiznis/subsync/internal/providers/payment/mocks"
	"github.com/smallbiznis/subsync/internal/providers/payment/stripe"
	"github.com/smallbiznis/subsync/internal/webhook/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesByName(t *testing.T) {
	ctrl := gomock.NewController(t)
	factory := mocks.NewMockClientFactory(ctrl)
	client := mocks.NewMockClient(ctrl)

	factory.EXPECT().Name().Return(" Custom ")
	factory.EXPECT().NewClient(domain.ClientConfig{APIKey: "k"}).Return(client, nil)

	registry := NewRegistry(factory, nil)
	require.True(t, registry.Exists("custom"))

	got, err := registry.NewClient("CUSTOM", domain.ClientConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Same(t, client, got)
}

func TestRegistryUnknownClient(t *testing.T) {
	registry := NewRegistry(fake.NewFactory())
	_, err := registry.NewClient("paypal", domain.ClientConfig{})
	assert.ErrorIs(t, err, domain.ErrClientNotFound)

	var nilRegistry *Registry
	_, err = nilRegistry.NewClient("fake", domain.ClientConfig{})
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
}

func TestStripeFactoryRequiresAPIKey(t *testing.T) {
	registry := NewRegistry(stripe.NewFactory())
	_, err := registry.NewClient("stripe", domain.ClientConfig{WebhookSecrets: []string{"whsec"}})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	client, err := registry.NewClient("stripe", domain.ClientConfig{APIKey: "sk_test_123", WebhookSecrets: []string{" whsec "}})
	require.NoError(t, err)
	assert.Equal(t, "stripe", client.Provider())

	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1"}`)
	assert.NoError(t, client.Verify(body, signature.Sign(body, "whsec", now), time.Minute, now))
}

func TestFakeClientServesSubscriptions(t *testing.T) {
	registry := NewRegistry(fake.NewFactory())
	client, err := registry.NewClient("fake", domain.ClientConfig{WebhookSecrets: []string{"whsec"}})
	require.NoError(t, err)

	fc := client.(*fake.Client)
	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	fc.Put(domain.ProviderSubscription{ID: "sub_1", PlanID: "pro", PeriodEnd: &end})

	sub, err := client.FetchSubscription(t.Context(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "pro", sub.PlanID)
	assert.Equal(t, end, *sub.PeriodEnd)

	_, err = client.FetchSubscription(t.Context(), "sub_missing")
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
	assert.Equal(t, 2, fc.Calls())
}
