package email

import "context"

// Template names shipped in templates/.
const (
	TemplateWelcome       = "welcome"
	TemplatePaymentFailed = "payment_failed"
	TemplateCanceled      = "canceled"
)

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data TemplateData) error
}

// TemplateData is the view model every template renders.
type TemplateData struct {
	Subject   string
	PlanID    string
	PeriodEnd string
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, templateName string, data TemplateData) error {
	return nil
}
