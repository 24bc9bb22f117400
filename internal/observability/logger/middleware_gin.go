package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/subsync/internal/observability/context"
	"github.com/smallbiznis/subsync/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
	// QuietRoutes are logged at debug level.
	QuietRoutes []string
	// SlowThreshold escalates otherwise successful requests to warn. Zero
	// disables it.
	SlowThreshold time.Duration
}

// GinMiddleware logs each request with correlation identifiers and safe fields.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = correlation.ContextWithCorrelationID(ctx, c.GetHeader(correlation.HeaderName))
		ctx, cid := correlation.EnsureCorrelationID(ctx)
		c.Header(correlation.HeaderName, cid)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		elapsed := time.Since(start)
		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
			zap.Int64("bytes_in", normalizeBytes(c.Request.ContentLength)),
			zap.Int("bytes_out", normalizeSize(c.Writer.Size())),
		}
		if eventID := strings.TrimSpace(c.GetString("event_id")); eventID != "" {
			fields = append(fields, zap.String("event_id", eventID))
		}

		var errorType, errorCode string
		if lastErr := c.Errors.Last(); lastErr != nil {
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.Error(lastErr.Err))
			}
		}

		level := requestLevel(cfg, route, status, elapsed)
		if level == zap.WarnLevel && status < http.StatusBadRequest {
			fields = append(fields, zap.Bool("slow", true))
		}
		if log := FromContext(c.Request.Context()); log != nil {
			log.Log(level, "http_request", fields...)
		}
	}
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader("X-Request-Id"))
	if requestID == "" {
		requestID = strings.TrimSpace(c.GetString("request_id"))
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	c.Set("request_id", requestID)
	c.Header("X-Request-Id", requestID)
	return requestID
}

func requestLevel(cfg MiddlewareConfig, route string, status int, elapsed time.Duration) zapcore.Level {
	switch {
	case isQuiet(cfg.QuietRoutes, route):
		return zap.DebugLevel
	case status >= http.StatusInternalServerError:
		return zap.ErrorLevel
	case status >= http.StatusBadRequest:
		return zap.WarnLevel
	case cfg.SlowThreshold > 0 && elapsed >= cfg.SlowThreshold:
		return zap.WarnLevel
	default:
		return zap.InfoLevel
	}
}

func isQuiet(routes []string, route string) bool {
	route = strings.TrimSpace(route)
	for _, quiet := range routes {
		if strings.EqualFold(route, quiet) {
			return true
		}
	}
	return false
}

func normalizeBytes(value int64) int64 {
	if value < 0 {
		return 0
	}
	return value
}

func normalizeSize(value int) int {
	if value < 0 {
		return 0
	}
	return value
}
