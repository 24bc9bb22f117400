package webhook

import (
	"github.com/smallbiznis/subsync/internal/webhook/event"
	"github.com/smallbiznis/subsync/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(event.NewParser),
	fx.Provide(service.NewService),
)
