package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/subsync/internal/clock"
	"github.com/smallbiznis/subsync/internal/config"
	"github.com/smallbiznis/subsync/internal/idempotency"
	"github.com/smallbiznis/subsync/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/subsync/internal/providers/payment/domain"
	"github.com/smallbiznis/subsync/internal/subscription/domain"
	"github.com/smallbiznis/subsync/internal/webhook/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const lookupRetryDelay = 100 * time.Millisecond

type Params struct {
	fx.In

	Store    domain.Store
	Guard    *idempotency.Guard
	Client   paymentdomain.Client
	Clock    clock.Clock
	Policy   *config.PolicyHolder
	GenID    *snowflake.Node
	Log      *zap.Logger
	Notifier domain.Notifier  `optional:"true"`
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	store    domain.Store
	guard    *idempotency.Guard
	client   paymentdomain.Client
	clock    clock.Clock
	policy   *config.PolicyHolder
	genID    *snowflake.Node
	log      *zap.Logger
	notifier domain.Notifier
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

func NewService(p Params) domain.Service {
	return New(p)
}

func New(p Params) *Service {
	return &Service{
		store:    p.Store,
		guard:    p.Guard,
		client:   p.Client,
		clock:    p.Clock,
		policy:   p.Policy,
		genID:    p.GenID,
		log:      p.Log.Named("subscription.service"),
		notifier: p.Notifier,
		metrics:  p.Metrics,
		tracer:   otel.Tracer("subsync/subscription"),
	}
}

// Reconcile applies evt to its user's subscription record exactly once.
// The processed-event claim and the record write share one transaction.
func (s *Service) Reconcile(ctx context.Context, evt *event.VerifiedEvent) (*domain.ReconciliationResult, error) {
	if evt == nil || strings.TrimSpace(evt.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	ctx, span := s.tracer.Start(ctx, "webhook.reconcile", trace.WithAttributes(
		attribute.String("event.id", evt.ID),
		attribute.String("event.kind", string(evt.Kind)),
	))
	defer span.End()

	result, err := s.reconcile(ctx, evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("reconcile.outcome", string(result.Outcome)),
		attribute.String("reconcile.user_id", result.UserID),
	)
	return result, nil
}

func (s *Service) reconcile(ctx context.Context, evt *event.VerifiedEvent) (*domain.ReconciliationResult, error) {
	policy := s.policy.Get()

	userID, err := s.resolveUser(ctx, evt, policy.LookupTimeout)
	if err != nil {
		return nil, err
	}

	var lookup *paymentdomain.ProviderSubscription
	if needsLookup(evt) {
		lookup, err = s.fetchSubscription(ctx, evt.Payload.SubscriptionRef, policy.LookupTimeout)
		if err != nil {
			return nil, err
		}
	}

	result := &domain.ReconciliationResult{
		EventID: evt.ID,
		Kind:    evt.Kind,
		UserID:  userID,
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		current, err := tx.GetSubscription(ctx, userID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		decision := Apply(current, evt, userID, lookup, now)
		if decision.Pending {
			return fmt.Errorf("%w: %s for user %s", domain.ErrSubscriptionPending, decision.Reason, userID)
		}

		record := &domain.ProcessedEventRecord{
			EventID:         evt.ID,
			Provider:        s.client.Provider(),
			Kind:            string(evt.Kind),
			Outcome:         domain.OutcomeApplied,
			Reason:          decision.Reason,
			UserID:          userID,
			SubscriptionRef: evt.Payload.SubscriptionRef,
			Payload:         datatypes.JSON(evt.Raw),
			OccurredAt:      evt.OccurredAt,
			ProcessedAt:     now,
		}
		if decision.Skipped() {
			record.Outcome = domain.OutcomeSkipped
		}

		claim, err := s.guard.Claim(ctx, tx, record)
		if err != nil {
			return err
		}
		if claim == idempotency.AlreadyProcessed {
			result.Outcome = domain.OutcomeDuplicate
			return nil
		}

		result.Outcome = record.Outcome
		result.Reason = decision.Reason
		result.Previous = current
		if decision.Skipped() {
			return nil
		}

		next := decision.Next
		if next.ID == 0 {
			next.ID = s.genID.Generate()
		}
		if err := tx.SetSubscription(ctx, next); err != nil {
			return err
		}
		result.Current = next
		return nil
	})
	if err != nil {
		return nil, classifyStoreErr(err)
	}

	s.log.Debug("event reconciled",
		zap.String("event_id", evt.ID),
		zap.String("kind", string(evt.Kind)),
		zap.String("user_id", userID),
		zap.String("outcome", string(result.Outcome)),
		zap.String("reason", result.Reason),
	)
	if result.Outcome == domain.OutcomeApplied {
		s.notify(ctx, *result, policy.NotifyTimeout)
	}
	return result, nil
}

// resolveUser prefers the user ID carried in metadata and otherwise
// requires exactly one user linked to the provider customer.
func (s *Service) resolveUser(ctx context.Context, evt *event.VerifiedEvent, timeout time.Duration) (string, error) {
	if userID := strings.TrimSpace(evt.Payload.UserID); userID != "" {
		return userID, nil
	}
	customerRef := strings.TrimSpace(evt.Payload.CustomerRef)
	if customerRef == "" {
		return "", fmt.Errorf("%w: no user id or customer reference", domain.ErrUnresolvableUser)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ids, err := s.store.FindUserIDsByCustomer(lookupCtx, customerRef)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	switch len(ids) {
	case 1:
		return ids[0], nil
	case 0:
		return "", fmt.Errorf("%w: no user for customer %s", domain.ErrUnresolvableUser, customerRef)
	default:
		return "", fmt.Errorf("%w: %d users for customer %s", domain.ErrUnresolvableUser, len(ids), customerRef)
	}
}

func needsLookup(evt *event.VerifiedEvent) bool {
	p := evt.Payload
	if p.SubscriptionRef == "" || !p.IsSummary() {
		return false
	}
	switch evt.Kind {
	case event.KindCheckoutCompleted:
		return p.Mode == event.CheckoutModeSubscribe && p.PaymentStatus == event.PaymentStatusPaid
	case event.KindSubscriptionUpdated:
		return p.PeriodEnd == nil
	default:
		return false
	}
}

// fetchSubscription bounds every attempt by timeout and retries once.
func (s *Service) fetchSubscription(ctx context.Context, ref string, timeout time.Duration) (*paymentdomain.ProviderSubscription, error) {
	ctx, span := s.tracer.Start(ctx, "payment.fetch_subscription", trace.WithAttributes(
		attribute.String("subscription.ref", ref),
	))
	defer span.End()

	operation := func() (*paymentdomain.ProviderSubscription, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		sub, err := s.client.FetchSubscription(attemptCtx, ref)
		if errors.Is(err, paymentdomain.ErrSubscriptionNotFound) {
			return nil, backoff.Permanent(err)
		}
		return sub, err
	}

	sub, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(lookupRetryDelay)),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, paymentdomain.ErrSubscriptionNotFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	return sub, nil
}

func (s *Service) notify(ctx context.Context, result domain.ReconciliationResult, timeout time.Duration) {
	if s.notifier == nil {
		return
	}
	notifyCtx := context.WithoutCancel(ctx)
	go func() {
		if timeout > 0 {
			var cancel context.CancelFunc
			notifyCtx, cancel = context.WithTimeout(notifyCtx, timeout)
			defer cancel()
		}
		if err := s.notifier.Notify(notifyCtx, result); err != nil {
			s.metrics.RecordNotifyFailure(notifyCtx, notifyFailureReason(err))
			s.log.Warn("subscription notification failed",
				zap.String("event_id", result.EventID),
				zap.String("user_id", result.UserID),
				zap.Error(err),
			)
		}
	}()
}

func notifyFailureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "send_failed"
}

func classifyStoreErr(err error) error {
	switch {
	case errors.Is(err, domain.ErrConcurrentUpdate),
		errors.Is(err, domain.ErrSubscriptionPending),
		errors.Is(err, domain.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
}
