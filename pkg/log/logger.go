package log

import (
	"context"

	"github.com/smallbiznis/subsync/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

// With enriches base with the context's correlation and tracing metadata.
func With(ctx context.Context, base *zap.Logger) *zap.Logger {
	return ctxlogger.WithContext(ctx, base)
}
