package subscription

import (
	"github.com/smallbiznis/subsync/internal/subscription/repository"
	"github.com/smallbiznis/subsync/internal/subscription/service"
	"go.uber.org/fx"
)

// Module wires the reconciler against the SQL store.
var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewEmailNotifier),
	fx.Provide(service.NewService),
)

// MemoryModule wires the reconciler against the in-process store.
var MemoryModule = fx.Module("subscription.service.memory",
	fx.Provide(repository.ProvideMemory),
	fx.Provide(service.NewEmailNotifier),
	fx.Provide(service.NewService),
)
