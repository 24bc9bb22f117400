package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/subsync/internal/clock"
	"github.com/smallbiznis/subsync/internal/config"
	"github.com/smallbiznis/subsync/internal/idempotency"
	paymentdomain "github.com/smallbiznis/subsync/internal/providers/payment/domain"
	"github.com/smallbiznis/subsync/internal/providers/payment/fake"
	subscriptiondomain "github.com/smallbiznis/subsync/internal/subscription/domain"
	"github.com/smallbiznis/subsync/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/subsync/internal/subscription/service"
	"github.com/smallbiznis/subsync/internal/webhook/domain"
	"github.com/smallbiznis/subsync/internal/webhook/event"
	"github.com/smallbiznis/subsync/internal/webhook/event/eventtest"
	"github.com/smallbiznis/subsync/internal/webhook/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "whsec_test"

var base = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

type pipeline struct {
	svc    *Service
	store  *repository.Memory
	client *fake.Client
	clock  *clock.FakeClock
}

type pipelineOptions struct {
	reconciler subscriptiondomain.Service
	locker     *idempotency.Locker
	livemode   *bool
}

type pipelineOption func(*pipelineOptions)

func withReconciler(r subscriptiondomain.Service) pipelineOption {
	return func(o *pipelineOptions) { o.reconciler = r }
}

func withLocker(l *idempotency.Locker) pipelineOption {
	return func(o *pipelineOptions) { o.locker = l }
}

func withLivemode(live bool) pipelineOption {
	return func(o *pipelineOptions) { o.livemode = &live }
}

func newPipeline(t *testing.T, opts ...pipelineOption) *pipeline {
	t.Helper()

	var o pipelineOptions
	for _, opt := range opts {
		opt(&o)
	}

	store := repository.NewMemory()
	client := fake.New(secret)
	fc := clock.NewFakeClock(base.Add(time.Minute))
	policy := config.NewStaticPolicy(config.DefaultWebhookPolicy())
	guard := idempotency.NewGuard(store, o.locker, zap.NewNop())

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	var reconciler subscriptiondomain.Service = subscriptionservice.New(subscriptionservice.Params{
		Store:  store,
		Guard:  guard,
		Client: client,
		Clock:  fc,
		Policy: policy,
		GenID:  node,
		Log:    zap.NewNop(),
	})
	if o.reconciler != nil {
		reconciler = o.reconciler
	}

	params := Params{
		Client:     client,
		Parser:     event.NewParser(),
		Guard:      guard,
		Reconciler: reconciler,
		Clock:      fc,
		Policy:     policy,
		Log:        zap.NewNop(),
		Config:     config.Config{Payment: config.PaymentConfig{Livemode: o.livemode}},
	}

	end := base.Add(30 * 24 * time.Hour)
	client.Put(paymentdomain.ProviderSubscription{
		ID:           "sub_1",
		CustomerRef:  "cus_1",
		Status:       "active",
		PlanID:       "price_pro_monthly",
		BillingCycle: "monthly",
		PeriodEnd:    &end,
	})

	return &pipeline{svc: New(params), store: store, client: client, clock: fc}
}

func (p *pipeline) signed(body []byte) domain.InboundRequest {
	return domain.InboundRequest{
		Body:            body,
		SignatureHeader: signature.Sign(body, secret, p.clock.Now()),
	}
}

func checkoutBody(eventID string) []byte {
	return eventtest.CheckoutCompleted(eventtest.Checkout{
		EventID: eventID, UserID: "user_1", CustomerRef: "cus_1",
		SubscriptionRef: "sub_1", PlanID: "pro", Created: base,
	})
}

func requireClass(t *testing.T, err error, class domain.ErrorClass, code string) {
	t.Helper()
	target, ok := domain.AsError(err)
	require.True(t, ok, "expected classified error, got %v", err)
	assert.Equal(t, class, target.Class)
	assert.Equal(t, code, target.Code)
}

func TestHandleDoubleSubmitAppliesOnce(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	req := p.signed(checkoutBody("evt_double"))

	first, err := p.svc.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, first.Status)
	assert.Equal(t, "user_1", first.UserID)

	second, err := p.svc.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDuplicate, second.Status)
	assert.True(t, second.NoOp())

	record, err := p.store.GetSubscription(ctx, "user_1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, subscriptiondomain.StatusActive, record.Status)
	assert.Equal(t, int64(1), record.Version)
	assert.Equal(t, 1, p.client.Calls())
}

func TestHandleConcurrentSubmitsApplyOnce(t *testing.T) {
	p := newPipeline(t)
	req := p.signed(checkoutBody("evt_parallel"))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[domain.Status]int{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.svc.Handle(context.Background(), req)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			statuses[out.Status]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, statuses[domain.StatusProcessed])
	assert.Equal(t, 7, statuses[domain.StatusDuplicate])
}

func TestHandleStaleSignatureIsRejectedWithoutWrites(t *testing.T) {
	p := newPipeline(t)
	body := checkoutBody("evt_stale")
	req := domain.InboundRequest{
		Body:            body,
		SignatureHeader: signature.Sign(body, secret, p.clock.Now().Add(-10*time.Minute)),
	}

	out, err := p.svc.Handle(context.Background(), req)
	assert.Nil(t, out)
	requireClass(t, err, domain.ClassSecurity, "stale_signature_timestamp")

	claimed, err := p.store.FindProcessedEvent(context.Background(), "evt_stale")
	require.NoError(t, err)
	assert.Nil(t, claimed)
	assert.Zero(t, p.client.Calls())
}

func TestHandleTamperedBodyIsRejected(t *testing.T) {
	p := newPipeline(t)
	req := p.signed(checkoutBody("evt_tampered"))
	req.Body = append([]byte{}, req.Body...)
	req.Body[len(req.Body)-2] ^= 0x01

	_, err := p.svc.Handle(context.Background(), req)
	requireClass(t, err, domain.ClassSecurity, "invalid_signature")
}

func TestHandleMissingHeaderIsRejected(t *testing.T) {
	p := newPipeline(t)
	req := p.signed(checkoutBody("evt_noheader"))
	req.SignatureHeader = ""

	_, err := p.svc.Handle(context.Background(), req)
	requireClass(t, err, domain.ClassSecurity, "malformed_signature_header")
}

func TestHandleUnresolvableUserIsRetryableWithoutClaim(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	body := eventtest.InvoiceEvent(eventtest.Invoice{
		EventID: "evt_orphan", Type: "invoice.payment_failed", InvoiceID: "in_1",
		CustomerRef: "cus_unknown", Created: base,
	})

	_, err := p.svc.Handle(ctx, p.signed(body))
	requireClass(t, err, domain.ClassData, "unresolvable_user")
	target, _ := domain.AsError(err)
	assert.True(t, target.Retryable())

	claimed, err := p.store.FindProcessedEvent(ctx, "evt_orphan")
	require.NoError(t, err)
	assert.Nil(t, claimed)

	// once the customer is linked, a redelivery succeeds
	p.store.PutUser(subscriptiondomain.User{ID: "user_9", Email: "u9@example.com", ProviderCustomerID: "cus_unknown"})
	out, err := p.svc.Handle(ctx, p.signed(body))
	require.NoError(t, err)
	assert.Equal(t, "user_9", out.UserID)
}

func TestHandleLifecycleBeforeCheckoutIsRetryable(t *testing.T) {
	p := newPipeline(t)
	p.store.PutUser(subscriptiondomain.User{ID: "user_1", ProviderCustomerID: "cus_1"})
	ctx := context.Background()
	updated := eventtest.SubscriptionEvent(eventtest.Subscription{
		EventID: "evt_updated", SubscriptionRef: "sub_1", CustomerRef: "cus_1", UserID: "user_1",
		Status: "past_due", CancelAtPeriodEnd: true, PeriodEnd: base.Add(30 * 24 * time.Hour),
		Created: base.Add(30 * time.Second),
	})

	_, err := p.svc.Handle(ctx, p.signed(updated))
	requireClass(t, err, domain.ClassData, "subscription_pending")
	target, _ := domain.AsError(err)
	assert.True(t, target.Retryable())

	claimed, err := p.store.FindProcessedEvent(ctx, "evt_updated")
	require.NoError(t, err)
	assert.Nil(t, claimed)

	_, err = p.svc.Handle(ctx, p.signed(checkoutBody("evt_checkout")))
	require.NoError(t, err)

	out, err := p.svc.Handle(ctx, p.signed(updated))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, out.Status)

	record, err := p.store.GetSubscription(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusPastDue, record.Status)
	assert.True(t, record.CancelAtPeriodEnd)
	assert.Equal(t, "evt_updated", record.LastEventID)
}

func TestHandleLivemodeMismatchIsIgnored(t *testing.T) {
	p := newPipeline(t, withLivemode(true))
	ctx := context.Background()

	out, err := p.svc.Handle(ctx, p.signed(checkoutBody("evt_test_mode")))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIgnored, out.Status)
	assert.Equal(t, ReasonLivemodeMismatch, out.Reason)
	assert.Zero(t, p.client.Calls())

	claimed, err := p.store.FindProcessedEvent(ctx, "evt_test_mode")
	require.NoError(t, err)
	assert.Nil(t, claimed)

	live := eventtest.WithLivemode(checkoutBody("evt_live"), true)
	out, err = p.svc.Handle(ctx, p.signed(live))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, out.Status)
}

func TestHandleUnrecognizedKindIsIgnored(t *testing.T) {
	p := newPipeline(t)
	body := eventtest.Unrecognized("evt_other", base)

	out, err := p.svc.Handle(context.Background(), p.signed(body))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIgnored, out.Status)
	assert.Equal(t, "evt_other", out.EventID)

	claimed, err := p.store.FindProcessedEvent(context.Background(), "evt_other")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestHandleMalformedPayloadIsDataError(t *testing.T) {
	p := newPipeline(t)
	body := []byte(`{"id":"evt_bad","type":"checkout.session.completed","created":1788256800,"data":{"object":{"id":"cs_1"}}}`)

	_, err := p.svc.Handle(context.Background(), p.signed(body))
	requireClass(t, err, domain.ClassData, "malformed_payload")
}

func TestHandleCanceledBeforeVerification(t *testing.T) {
	p := newPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.svc.Handle(ctx, p.signed(checkoutBody("evt_gone")))
	requireClass(t, err, domain.ClassCanceled, "client_closed_request")
}

func TestHandleIgnoresCancellationAfterVerification(t *testing.T) {
	started := make(chan struct{})
	block := make(chan struct{})
	p := newPipeline(t, withReconciler(reconcilerFunc(func(ctx context.Context, evt *event.VerifiedEvent) (*subscriptiondomain.ReconciliationResult, error) {
		close(started)
		<-block
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &subscriptiondomain.ReconciliationResult{EventID: evt.ID, Outcome: subscriptiondomain.OutcomeApplied}, nil
	})))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.svc.Handle(ctx, p.signed(checkoutBody("evt_detached")))
		done <- err
	}()
	<-started
	cancel()
	close(block)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not return")
	}
}

func TestHandleInfrastructureFailureIsRetryable(t *testing.T) {
	p := newPipeline(t, withReconciler(reconcilerFunc(func(ctx context.Context, evt *event.VerifiedEvent) (*subscriptiondomain.ReconciliationResult, error) {
		return nil, fmt.Errorf("%w: connection refused", subscriptiondomain.ErrStoreUnavailable)
	})))

	_, err := p.svc.Handle(context.Background(), p.signed(checkoutBody("evt_down")))
	requireClass(t, err, domain.ClassInfrastructure, "store_unavailable")
}

func TestHandleProviderOutageIsRetryable(t *testing.T) {
	p := newPipeline(t)
	p.client.FailWith(paymentdomain.ErrUnavailable)

	_, err := p.svc.Handle(context.Background(), p.signed(checkoutBody("evt_outage")))
	requireClass(t, err, domain.ClassInfrastructure, "provider_unavailable")

	claimed, err := p.store.FindProcessedEvent(context.Background(), "evt_outage")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestHandleInFlightEventIsRetryable(t *testing.T) {
	client := testRedis(t)
	locker := idempotency.NewLocker(client)
	p := newPipeline(t, withLocker(locker))
	ctx := context.Background()

	eventID := fmt.Sprintf("evt_inflight_%d", time.Now().UnixNano())
	token, ok, err := locker.TryLock(ctx, eventID, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = locker.Release(ctx, eventID, token) }()

	_, err = p.svc.Handle(ctx, p.signed(checkoutBody(eventID)))
	requireClass(t, err, domain.ClassData, "event_in_flight")
}

type reconcilerFunc func(ctx context.Context, evt *event.VerifiedEvent) (*subscriptiondomain.ReconciliationResult, error)

func (f reconcilerFunc) Reconcile(ctx context.Context, evt *event.VerifiedEvent) (*subscriptiondomain.ReconciliationResult, error) {
	return f(ctx, evt)
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping Redis-dependent test: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
