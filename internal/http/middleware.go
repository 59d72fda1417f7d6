package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-monitor/internal/observability"
)

type ctxKey int

const (
	correlationIDKey ctxKey = iota
	loggerKey
)

// CorrelationIDMiddleware reuses the caller's X-Correlation-ID or mints one, echoes
// it on the response and attaches a request-scoped logger.
func CorrelationIDMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := r.Header.Get("X-Correlation-ID")
			if corrID == "" {
				corrID = uuid.New().String()
			}
			w.Header().Set("X-Correlation-ID", corrID)

			ctx := context.WithValue(r.Context(), correlationIDKey, corrID)
			ctx = context.WithValue(ctx, loggerKey, logger.With(zap.String("correlation_id", corrID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func correlationID(r *http.Request) string {
	id, _ := r.Context().Value(correlationIDKey).(string)
	return id
}

func requestLogger(r *http.Request) *zap.Logger {
	if l, ok := r.Context().Value(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// MetricsMiddleware records request counts, latency and in-flight requests.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		done := inFlight.begin()
		observability.HTTPRequestsInFlight.Inc()
		defer func() {
			observability.HTTPRequestsInFlight.Dec()
			done()
		}()

		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := getRoute(r)
		observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, statusCodeString(recorder.statusCode)).Inc()
		observability.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// getRoute returns the matched route template so unknown paths don't blow up
// label cardinality.
func getRoute(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func statusCodeString(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// RateLimitMiddleware returns 429 when the token bucket is exhausted. Disabled when limiter is nil.
func RateLimitMiddleware(limiter *rate.Limiter) mux.MiddlewareFunc {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				requestLogger(r).Debug("rate limit denied")
				observability.RunRejectionsTotal.WithLabelValues("rate_limited").Inc()
				writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many run requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
