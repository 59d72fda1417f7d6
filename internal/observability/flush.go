package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Flush pushes metrics (when a Pushgateway is configured), flushes spans and
// syncs the logger. Call once before process exit. Every step runs even if an
// earlier one fails; the first error is returned.
func Flush(ctx context.Context, logger *zap.Logger, pushgatewayURL, instance string, shutdownTracing func(context.Context) error) error {
	var first error
	if err := PushMetrics(ctx, pushgatewayURL, instance); err != nil {
		first = err
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(ctx); err != nil && first == nil {
			first = fmt.Errorf("flush traces: %w", err)
		}
	}
	if logger != nil {
		// Sync on stderr fails on some platforms; not worth reporting.
		_ = logger.Sync()
	}
	return first
}
