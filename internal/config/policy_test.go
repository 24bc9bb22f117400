package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateWebhookPolicy(t *testing.T) {
	require.NoError(t, validateWebhookPolicy(DefaultWebhookPolicy()))

	tests := []struct {
		name   string
		mutate func(p *WebhookPolicy)
	}{
		{"negative tolerance", func(p *WebhookPolicy) { p.Tolerance = -time.Second }},
		{"zero processing timeout", func(p *WebhookPolicy) { p.ProcessingTimeout = 0 }},
		{"zero lookup timeout", func(p *WebhookPolicy) { p.LookupTimeout = 0 }},
		{"lookup exceeds processing", func(p *WebhookPolicy) { p.LookupTimeout = p.ProcessingTimeout + time.Second }},
		{"zero body limit", func(p *WebhookPolicy) { p.MaxBodyBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := DefaultWebhookPolicy()
			tt.mutate(&policy)
			assert.Error(t, validateWebhookPolicy(policy))
		})
	}
}

func TestLoadParsesWebhookSecrets(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRETS", "whsec_old, whsec_new,,")
	t.Setenv("DATASTORE", "Memory")
	t.Setenv("PAYMENT_CLIENT", "fake")
	t.Setenv("REDIS_ADDR", "")

	cfg := Load()
	assert.Equal(t, []string{"whsec_old", "whsec_new"}, cfg.Payment.WebhookSecrets)
	assert.Equal(t, DatastoreMemory, cfg.Datastore)
	assert.Equal(t, PaymentClientFake, cfg.Payment.Client)
	assert.False(t, cfg.Redis.Enabled())
}

func TestStaticPolicyHolder(t *testing.T) {
	policy := DefaultWebhookPolicy()
	policy.Tolerance = time.Minute
	holder := NewStaticPolicy(policy)
	assert.Equal(t, time.Minute, holder.Get().Tolerance)
}
