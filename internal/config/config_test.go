package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLivemode(t *testing.T) {
	t.Setenv("STRIPE_LIVEMODE", "")
	assert.Nil(t, Load().Payment.Livemode, "unset accepts both modes")

	t.Setenv("STRIPE_LIVEMODE", "true")
	live := Load().Payment.Livemode
	require.NotNil(t, live)
	assert.True(t, *live)

	t.Setenv("STRIPE_LIVEMODE", "off")
	live = Load().Payment.Livemode
	require.NotNil(t, live)
	assert.False(t, *live)

	t.Setenv("STRIPE_LIVEMODE", "sometimes")
	assert.Nil(t, Load().Payment.Livemode)
}

func TestLoadWebhookSecretsList(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("STRIPE_WEBHOOK_SECRETS", " whsec_a, ,whsec_b ")
	assert.Equal(t, []string{"whsec_a", "whsec_b"}, Load().Payment.WebhookSecrets)
}
