package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/subsync/internal/providers/email"
	"github.com/smallbiznis/subsync/internal/subscription/domain"
	"github.com/smallbiznis/subsync/pkg/log"
	"go.uber.org/zap"
)

// EmailNotifier mails the user when their entitlement status moves.
type EmailNotifier struct {
	store  domain.Store
	mailer email.Provider
	log    *zap.Logger
}

func NewEmailNotifier(store domain.Store, mailer email.Provider, log *zap.Logger) domain.Notifier {
	return &EmailNotifier{store: store, mailer: mailer, log: log.Named("subscription.notifier")}
}

func (n *EmailNotifier) Notify(ctx context.Context, result domain.ReconciliationResult) error {
	if !result.Changed() || result.Current == nil {
		return nil
	}

	var templateName string
	switch result.Current.Status {
	case domain.StatusActive:
		if domain.StatusOf(result.Previous) == domain.StatusPastDue {
			return nil
		}
		templateName = email.TemplateWelcome
	case domain.StatusPastDue:
		templateName = email.TemplatePaymentFailed
	case domain.StatusCanceled:
		templateName = email.TemplateCanceled
	default:
		return nil
	}

	user, err := n.store.FindUser(ctx, result.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil || user.Email == "" {
		log.With(ctx, n.log).Debug("no email on file", zap.String("user_id", result.UserID))
		return nil
	}

	data := email.TemplateData{PlanID: result.Current.PlanID}
	if end := result.Current.CurrentPeriodEnd; end != nil {
		data.PeriodEnd = end.Format("January 2, 2006")
	}
	if err := n.mailer.SendTemplate(ctx, []string{user.Email}, templateName, data); err != nil {
		return fmt.Errorf("send %s email: %w", templateName, err)
	}
	log.With(ctx, n.log).Info("subscription email sent",
		zap.String("user_id", result.UserID),
		zap.String("template", templateName),
		zap.String("event_id", result.EventID),
	)
	return nil
}
