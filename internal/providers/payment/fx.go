package payment

import (
	"fmt"

	"github.com/smallbiznis/subsync/internal/config"
	"github.com/smallbiznis/subsync/internal/providers/payment/domain"
	"github.com/smallbiznis/subsync/internal/providers/payment/fake"
	"github.com/smallbiznis/subsync/internal/providers/payment/stripe"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.client",
	fx.Provide(func() *Registry {
		return NewRegistry(stripe.NewFactory(), fake.NewFactory())
	}),
	fx.Provide(NewClient),
)

// NewClient builds the client selected by PAYMENT_CLIENT.
func NewClient(cfg config.Config, registry *Registry, log *zap.Logger) (domain.Client, error) {
	client, err := registry.NewClient(cfg.Payment.Client, domain.ClientConfig{
		Provider:       cfg.Payment.Provider,
		APIKey:         cfg.Payment.APIKey,
		WebhookSecrets: cfg.Payment.WebhookSecrets,
	})
	if err != nil {
		return nil, fmt.Errorf("payment client %q: %w", cfg.Payment.Client, err)
	}
	log.Named("payment").Info("payment client ready",
		zap.String("client", cfg.Payment.Client),
		zap.String("provider", client.Provider()),
		zap.Int("webhook_secrets", len(cfg.Payment.WebhookSecrets)),
	)
	return client, nil
}
