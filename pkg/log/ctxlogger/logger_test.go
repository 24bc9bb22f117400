package ctxlogger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/subsync/internal/observability/context"
	"github.com/smallbiznis/subsync/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsIdentifiers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetServiceName("subsync")

	ctx := correlation.ContextWithCorrelationID(context.Background(), "01HZX")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	ctx = obscontext.WithEventID(ctx, "evt_1")
	ctx = correlation.ContextWithRemoteSpan(ctx, "4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7")

	WithContext(ctx, zap.New(core)).Info("hello")

	entry := logs.All()[0].ContextMap()
	assert.Equal(t, "01HZX", entry["correlation_id"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "evt_1", entry["event_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "subsync", entry["service_name"])
}

func TestWithContextOmitsMissingFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	WithContext(context.Background(), zap.New(core)).Info("hello")

	entry := logs.All()[0].ContextMap()
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "request_id")
}
