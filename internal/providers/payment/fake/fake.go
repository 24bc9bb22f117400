// Package fake is an in-memory payment client for local runs and tests.
package fake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/subsync/internal/providers/payment/domain"
	"github.com/smallbiznis/subsync/internal/webhook/signature"
)

const providerName = "fake"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Name() string {
	return providerName
}

func (f *Factory) NewClient(cfg domain.ClientConfig) (domain.Client, error) {
	return New(cfg.WebhookSecrets...), nil
}

// Client verifies signatures for real and serves subscriptions from memory.
type Client struct {
	secrets []string

	mu    sync.RWMutex
	subs  map[string]domain.ProviderSubscription
	err   error
	calls int
}

func New(secrets ...string) *Client {
	return &Client{
		secrets: secrets,
		subs:    map[string]domain.ProviderSubscription{},
	}
}

func (c *Client) Provider() string {
	return providerName
}

func (c *Client) Verify(payload []byte, header string, tolerance time.Duration, now time.Time) error {
	return signature.VerifyAny(payload, header, c.secrets, tolerance, now)
}

func (c *Client) FetchSubscription(ctx context.Context, ref string) (*domain.ProviderSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	sub, ok := c.subs[strings.TrimSpace(ref)]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	out := sub
	if sub.PeriodEnd != nil {
		end := *sub.PeriodEnd
		out.PeriodEnd = &end
	}
	return &out, nil
}

// Put stores or replaces a subscription.
func (c *Client) Put(sub domain.ProviderSubscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[sub.ID] = sub
}

// FailWith makes every fetch return err until cleared with nil.
func (c *Client) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *Client) Calls() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls
}
