package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/subsync/internal/providers/email"
	"github.com/smallbiznis/subsync/internal/subscription/domain"
	"github.com/smallbiznis/subsync/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMail struct {
	to       []string
	template string
	data     email.TemplateData
}

type captureMailer struct {
	email.NoOpProvider
	sent []sentMail
}

func (m *captureMailer) SendTemplate(ctx context.Context, to []string, templateName string, data email.TemplateData) error {
	m.sent = append(m.sent, sentMail{to: to, template: templateName, data: data})
	return nil
}

func TestEmailNotifierTemplates(t *testing.T) {
	store := repository.NewMemory()
	store.PutUser(domain.User{ID: "user_1", Email: "user@example.com"})

	end := at(1000)
	cases := []struct {
		name     string
		previous *domain.SubscriptionRecord
		status   domain.Status
		want     string
	}{
		{"activation", nil, domain.StatusActive, email.TemplateWelcome},
		{"recovery is silent", &domain.SubscriptionRecord{Status: domain.StatusPastDue}, domain.StatusActive, ""},
		{"payment failed", &domain.SubscriptionRecord{Status: domain.StatusActive}, domain.StatusPastDue, email.TemplatePaymentFailed},
		{"canceled", &domain.SubscriptionRecord{Status: domain.StatusActive}, domain.StatusCanceled, email.TemplateCanceled},
		{"unchanged", &domain.SubscriptionRecord{Status: domain.StatusActive}, domain.StatusActive, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mailer := &captureMailer{}
			n := NewEmailNotifier(store, mailer, zap.NewNop())

			err := n.Notify(context.Background(), domain.ReconciliationResult{
				EventID:  "evt_1",
				UserID:   "user_1",
				Outcome:  domain.OutcomeApplied,
				Previous: tc.previous,
				Current:  &domain.SubscriptionRecord{Status: tc.status, PlanID: "pro", CurrentPeriodEnd: &end},
			})
			require.NoError(t, err)

			if tc.want == "" {
				assert.Empty(t, mailer.sent)
				return
			}
			require.Len(t, mailer.sent, 1)
			assert.Equal(t, tc.want, mailer.sent[0].template)
			assert.Equal(t, []string{"user@example.com"}, mailer.sent[0].to)
			assert.Equal(t, "pro", mailer.sent[0].data.PlanID)
		})
	}
}

func TestEmailNotifierSkipsUnknownUser(t *testing.T) {
	mailer := &captureMailer{}
	n := NewEmailNotifier(repository.NewMemory(), mailer, zap.NewNop())

	err := n.Notify(context.Background(), domain.ReconciliationResult{
		UserID:  "ghost",
		Outcome: domain.OutcomeApplied,
		Current: &domain.SubscriptionRecord{Status: domain.StatusActive},
	})
	require.NoError(t, err)
	assert.Empty(t, mailer.sent)
}
