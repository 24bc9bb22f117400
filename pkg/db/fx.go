package db

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/subsync/internal/config"
	obslogger "github.com/smallbiznis/subsync/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprom "gorm.io/plugin/prometheus"
)

const (
	openAttempts = 5
	openDelay    = 2 * time.Second
)

var Module = fx.Module("db",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Config     config.Config
	Log        *zap.Logger
	GormLogger *obslogger.GormLoggerConfig `optional:"true"`
}

// New opens the configured database with tracing and pool metrics attached.
func New(p Params) (*gorm.DB, error) {
	cfg := FromAppConfig(p.Config)
	log := p.Log.Named("db")
	gormLog := obslogger.DefaultGormLoggerConfig()
	if p.GormLogger != nil {
		gormLog = *p.GormLogger
	}

	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	var conn *gorm.DB
	for attempt := 1; attempt <= openAttempts; attempt++ {
		conn, err = gorm.Open(dialector, &gorm.Config{
			Logger:         obslogger.NewGormLogger(log, gormLog),
			TranslateError: true,
			NowFunc:        func() time.Time { return time.Now().UTC() },
		})
		if err == nil {
			break
		}
		log.Warn("database connect failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < openAttempts {
			time.Sleep(openDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Type, err)
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Name))); err != nil {
		return nil, fmt.Errorf("otelgorm plugin: %w", err)
	}
	if err := conn.Use(gormprom.New(gormprom.Config{
		DBName:          cfg.Name,
		RefreshInterval: 15,
	})); err != nil {
		return nil, fmt.Errorf("prometheus plugin: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return sqlDB.Close()
		},
	})
	log.Info("database ready", zap.String("type", cfg.Type), zap.String("name", cfg.Name))
	return conn, nil
}
