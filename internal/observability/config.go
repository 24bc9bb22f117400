package observability

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/subsync/internal/config"
)

// WebhookRoutePrefix is the path prefix of provider webhook endpoints.
const WebhookRoutePrefix = "/webhooks/"

// Config holds the logging and tracing settings of the webhook service.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string
	// QuietRoutes are logged at debug level regardless of status.
	QuietRoutes []string
	// SlowRequestThreshold escalates successful requests to warn.
	SlowRequestThreshold time.Duration
	DBSlowThreshold      time.Duration

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	// OtelSamplingRatio applies to root spans outside WebhookRoutePrefix.
	OtelSamplingRatio float64
	// WebhookSamplingRatio applies to root spans of webhook deliveries.
	WebhookSamplingRatio float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "subsync"
	}
	otlpProtocol := strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	if tracesProtocol := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); tracesProtocol != "" {
		otlpProtocol = strings.ToLower(tracesProtocol)
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          getenv("DEPLOYMENT_ENV", strings.TrimSpace(cfg.Environment)),
		Version:              getenv("SERVICE_VERSION", strings.TrimSpace(cfg.AppVersion)),
		LogLevel:             strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(getenv("LOG_FORMAT", "json")),
		QuietRoutes:          splitRoutes(getenv("LOG_QUIET_ROUTES", "/health,/metrics")),
		SlowRequestThreshold: getenvMillis("LOG_SLOW_REQUEST_MS", 2*time.Second),
		DBSlowThreshold:      getenvMillis("LOG_DB_SLOW_MS", 200*time.Millisecond),
		OtelEnabled:          getenvBool("OTEL_ENABLED", true),
		OtelExporterEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", strings.TrimSpace(cfg.OTLPEndpoint)),
		OtelExporterProtocol: otlpProtocol,
		OtelSamplingRatio:    getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		WebhookSamplingRatio: getenvFloat("OTEL_WEBHOOK_SAMPLING_RATIO", 1),
	}
}

func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func splitRoutes(raw string) []string {
	var routes []string
	for _, route := range strings.Split(raw, ",") {
		if route = strings.TrimSpace(route); route != "" {
			routes = append(routes, route)
		}
	}
	return routes
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvMillis(key string, def time.Duration) time.Duration {
	ms, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
