package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/subsync/internal/clock"
	"github.com/smallbiznis/subsync/internal/config"
	"github.com/smallbiznis/subsync/internal/observability"
	obsmiddleware "github.com/smallbiznis/subsync/internal/observability/logger"
	obstracing "github.com/smallbiznis/subsync/internal/observability/tracing"
	webhookdomain "github.com/smallbiznis/subsync/internal/webhook/domain"
	"github.com/smallbiznis/subsync/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, metrics *telemetry.Metrics, gatherer prometheus.Gatherer) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
		QuietRoutes:     obsCfg.QuietRoutes,
		SlowThreshold:   obsCfg.SlowRequestThreshold,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(MetricsMiddleware(metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

func registerGin(obsCfg observability.Config, metrics *telemetry.Metrics, gatherer prometheus.Gatherer) *gin.Engine {
	return NewEngine(obsCfg, metrics, gatherer)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	webhookSvc webhookdomain.Service
	policy     *config.PolicyHolder
	clock      clock.Clock
	metrics    *telemetry.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	WebhookSvc webhookdomain.Service
	Policy     *config.PolicyHolder
	Clock      clock.Clock
	Metrics    *telemetry.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		webhookSvc: p.WebhookSvc,
		policy:     p.Policy,
		clock:      p.Clock,
		metrics:    p.Metrics,
	}

	svc.registerWebhookRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	webhooks := s.engine.Group("/webhooks")
	webhooks.POST("/stripe", s.HandleStripeWebhook)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
