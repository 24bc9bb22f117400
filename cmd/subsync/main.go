package main

import (
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subsync/internal/clock"
	"github.com/smallbiznis/subsync/internal/config"
	"github.com/smallbiznis/subsync/internal/idempotency"
	"github.com/smallbiznis/subsync/internal/migration"
	"github.com/smallbiznis/subsync/internal/observability"
	"github.com/smallbiznis/subsync/internal/providers/email"
	"github.com/smallbiznis/subsync/internal/providers/payment"
	"github.com/smallbiznis/subsync/internal/seed"
	"github.com/smallbiznis/subsync/internal/server"
	"github.com/smallbiznis/subsync/internal/subscription"
	"github.com/smallbiznis/subsync/internal/webhook"
	"github.com/smallbiznis/subsync/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "replay" {
		if err := runReplay(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	app := fx.New(modules(config.Load())...)
	app.Run()
}

func modules(cfg config.Config) []fx.Option {
	opts := []fx.Option{
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(RegisterSnowflake),
		clock.Module,
		idempotency.Module,
		payment.Module,
		email.Module,
	}

	if cfg.Datastore == config.DatastoreMemory {
		opts = append(opts, subscription.MemoryModule)
	} else {
		opts = append(opts,
			db.Module,
			migration.Module,
			subscription.Module,
		)
	}

	return append(opts,
		seed.Module,
		webhook.Module,
		server.Module,
	)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
