package observability

import "context"

type runIDKey struct{}

// WithRunID attaches the run ID. Outgoing requests carry it as X-Correlation-ID
// and Kafka messages as a run_id header.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run ID set by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey{}).(string); ok {
		return v
	}
	return ""
}
