package logger

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestRequestLevel(t *testing.T) {
	cfg := MiddlewareConfig{QuietRoutes: []string{"/health", "/metrics"}, SlowThreshold: time.Second}

	tests := []struct {
		name    string
		route   string
		status  int
		elapsed time.Duration
		want    zapcore.Level
	}{
		{"quiet route", "/health", http.StatusServiceUnavailable, 0, zap.DebugLevel},
		{"server error", "/webhooks/stripe", http.StatusServiceUnavailable, 0, zap.ErrorLevel},
		{"rejected delivery", "/webhooks/stripe", http.StatusBadRequest, 0, zap.WarnLevel},
		{"slow delivery", "/webhooks/stripe", http.StatusOK, 2 * time.Second, zap.WarnLevel},
		{"fast delivery", "/webhooks/stripe", http.StatusOK, time.Millisecond, zap.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, requestLevel(cfg, tt.route, tt.status, tt.elapsed))
		})
	}

	assert.Equal(t, zap.InfoLevel, requestLevel(MiddlewareConfig{}, "/health", http.StatusOK, time.Hour),
		"no quiet routes and no slow threshold")
}
