package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/subsync/internal/clock"
	"github.com/smallbiznis/subsync/internal/config"
	"github.com/smallbiznis/subsync/internal/idempotency"
	obscontext "github.com/smallbiznis/subsync/internal/observability/context"
	obslogger "github.com/smallbiznis/subsync/internal/observability/logger"
	"github.com/smallbiznis/subsync/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/subsync/internal/providers/payment/domain"
	subscriptiondomain "github.com/smallbiznis/subsync/internal/subscription/domain"
	"github.com/smallbiznis/subsync/internal/webhook/domain"
	"github.com/smallbiznis/subsync/internal/webhook/event"
	"github.com/smallbiznis/subsync/internal/webhook/signature"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ReasonLivemodeMismatch marks an event from the other provider mode.
const ReasonLivemodeMismatch = "livemode_mismatch"

type Params struct {
	fx.In

	Client     paymentdomain.Client
	Parser     *event.Parser
	Guard      *idempotency.Guard
	Reconciler subscriptiondomain.Service
	Clock      clock.Clock
	Policy     *config.PolicyHolder
	Log        *zap.Logger
	Metrics    *metrics.Metrics `optional:"true"`
	Config     config.Config    `optional:"true"`
}

type Service struct {
	client     paymentdomain.Client
	parser     *event.Parser
	guard      *idempotency.Guard
	reconciler subscriptiondomain.Service
	clock      clock.Clock
	policy     *config.PolicyHolder
	log        *zap.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	livemode   *bool
}

func NewService(p Params) domain.Service {
	return New(p)
}

func New(p Params) *Service {
	parser := p.Parser
	if parser == nil {
		parser = event.NewParser()
	}
	return &Service{
		client:     p.Client,
		parser:     parser,
		guard:      p.Guard,
		reconciler: p.Reconciler,
		clock:      p.Clock,
		policy:     p.Policy,
		log:        p.Log.Named("webhook.service"),
		metrics:    p.Metrics,
		tracer:     otel.Tracer("subsync/webhook"),
		livemode:   p.Config.Payment.Livemode,
	}
}

// Handle runs one delivery through verify, parse, dedupe and reconcile.
// The caller's context only governs the request until the signature is
// verified; the rest runs to completion under ProcessingTimeout.
func (s *Service) Handle(ctx context.Context, req domain.InboundRequest) (*domain.Outcome, error) {
	policy := s.policy.Get()

	if err := ctx.Err(); err != nil {
		return nil, domain.NewCanceledError(err)
	}
	if err := s.verify(ctx, req, policy); err != nil {
		s.report(ctx, "", err)
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	if policy.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.ProcessingTimeout)
		defer cancel()
	}

	evt, err := s.parser.Parse(req.Body)
	switch {
	case errors.Is(err, event.ErrUnrecognizedEventKind):
		outcome := &domain.Outcome{EventID: evt.ID, Kind: evt.ProviderType, Status: domain.StatusIgnored}
		s.acknowledge(obscontext.WithEventID(ctx, evt.ID), outcome)
		return outcome, nil
	case err != nil:
		derr := domain.NewDataError("malformed_payload", err)
		s.report(ctx, "", derr)
		return nil, derr
	}

	ctx = obscontext.WithEventID(ctx, evt.ID)
	kind := string(evt.Kind)

	if s.livemode != nil && evt.Livemode != *s.livemode {
		outcome := &domain.Outcome{EventID: evt.ID, Kind: kind, Status: domain.StatusIgnored, Reason: ReasonLivemodeMismatch}
		s.acknowledge(ctx, outcome)
		return outcome, nil
	}

	seen, err := s.guard.Seen(ctx, evt.ID)
	if err != nil {
		ierr := domain.NewInfrastructureError("store_unavailable", err)
		s.report(ctx, kind, ierr)
		return nil, ierr
	}
	if seen != nil {
		outcome := &domain.Outcome{EventID: evt.ID, Kind: kind, Status: domain.StatusDuplicate, UserID: seen.UserID}
		s.acknowledge(ctx, outcome)
		return outcome, nil
	}

	release, err := s.guard.Acquire(ctx, evt.ID, policy.InflightTTL)
	if err != nil {
		s.metrics.RecordInflightConflict(ctx, kind)
		derr := domain.NewDataError("event_in_flight", err)
		s.report(ctx, kind, derr)
		return nil, derr
	}
	defer release()

	result, err := s.reconciler.Reconcile(ctx, evt)
	if err != nil {
		cerr := classifyReconcileErr(err)
		s.report(ctx, kind, cerr)
		return nil, cerr
	}

	outcome := &domain.Outcome{
		EventID: evt.ID,
		Kind:    kind,
		Status:  statusOf(result.Outcome),
		Reason:  result.Reason,
		UserID:  result.UserID,
	}
	s.acknowledge(ctx, outcome)
	return outcome, nil
}

func (s *Service) verify(ctx context.Context, req domain.InboundRequest, policy config.WebhookPolicy) error {
	_, span := s.tracer.Start(ctx, "webhook.verify", trace.WithAttributes(
		attribute.String("payment.provider", s.client.Provider()),
	))
	defer span.End()

	now := req.ReceivedAt
	if now.IsZero() {
		now = s.clock.Now()
	}

	err := s.client.Verify(req.Body, req.SignatureHeader, policy.Tolerance, now)
	if err == nil {
		return nil
	}
	span.SetStatus(codes.Error, "verification failed")

	if errors.Is(err, signature.ErrNoSecret) {
		return domain.NewInfrastructureError("webhook_secret_missing", err)
	}
	code := "invalid_signature"
	switch {
	case errors.Is(err, signature.ErrMalformedHeader):
		code = "malformed_signature_header"
	case errors.Is(err, signature.ErrStaleTimestamp):
		code = "stale_signature_timestamp"
	}
	s.metrics.RecordSignatureFailure(ctx, s.client.Provider(), code)
	return domain.NewSecurityError(code, err)
}

func (s *Service) acknowledge(ctx context.Context, outcome *domain.Outcome) {
	s.metrics.RecordWebhookEvent(ctx, outcome.Kind, string(outcome.Status))

	log := obslogger.WithEvent(obslogger.WithContext(ctx, s.log), outcome.EventID, outcome.Kind)
	fields := []zap.Field{
		zap.String("status", string(outcome.Status)),
		zap.String("reason", outcome.Reason),
		zap.String("user_id", outcome.UserID),
	}
	if outcome.NoOp() {
		log.Debug("webhook acknowledged", fields...)
		return
	}
	log.Info("webhook processed", fields...)
}

func (s *Service) report(ctx context.Context, kind string, err error) {
	class := domain.ClassOf(err)
	s.metrics.RecordWebhookEvent(ctx, kind, string(class))

	log := obslogger.WithContext(ctx, s.log)
	fields := []zap.Field{
		zap.String("event_kind", kind),
		zap.String("error_class", string(class)),
		zap.Error(err),
	}
	if target, ok := domain.AsError(err); ok {
		fields = append(fields, zap.String("error_code", target.Code))
	}

	switch class {
	case domain.ClassSecurity:
		log.Warn("webhook rejected", append(fields, zap.Bool("potential_attack", true))...)
	case domain.ClassData:
		log.Warn("webhook needs operator attention", fields...)
	case domain.ClassCanceled:
		log.Info("webhook canceled by client", fields...)
	default:
		log.Error("webhook processing failed", fields...)
	}
}

func classifyReconcileErr(err error) error {
	switch {
	case errors.Is(err, subscriptiondomain.ErrInvalidEvent):
		return domain.NewDataError("invalid_event", err)
	case errors.Is(err, subscriptiondomain.ErrUnresolvableUser):
		return domain.NewDataError("unresolvable_user", err)
	case errors.Is(err, subscriptiondomain.ErrConcurrentUpdate):
		return domain.NewDataError("concurrent_update", err)
	case errors.Is(err, subscriptiondomain.ErrSubscriptionPending):
		return domain.NewDataError("subscription_pending", err)
	case errors.Is(err, subscriptiondomain.ErrProviderUnavailable):
		return domain.NewInfrastructureError("provider_unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewInfrastructureError("processing_timeout", err)
	default:
		return domain.NewInfrastructureError("store_unavailable", err)
	}
}

func statusOf(outcome subscriptiondomain.Outcome) domain.Status {
	switch outcome {
	case subscriptiondomain.OutcomeApplied:
		return domain.StatusProcessed
	case subscriptiondomain.OutcomeDuplicate:
		return domain.StatusDuplicate
	default:
		return domain.StatusSkipped
	}
}
