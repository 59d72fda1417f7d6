package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-monitor/internal/lifecycle"
	"github.com/kjstillabower/weather-monitor/internal/monitor"
	"github.com/kjstillabower/weather-monitor/internal/observability"
)

// Runner is implemented by *monitor.Monitor.
type Runner interface {
	Run(ctx context.Context) (monitor.Report, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	runner     Runner
	logger     *zap.Logger
	runTimeout time.Duration
	startTime  time.Time
	// CachePing, when set, is reported as a health check. Used when backend is memcached.
	CachePing func() error
}

// NewHandler returns a new Handler. runTimeout bounds a triggered run; zero means
// no bound.
func NewHandler(runner Runner, logger *zap.Logger, runTimeout time.Duration) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{runner: runner, logger: logger, runTimeout: runTimeout, startTime: time.Now()}
}

// NewRouter wires the serve-mode routes. limiter guards POST /run only.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	router.Handle("/run", RateLimitMiddleware(limiter)(http.HandlerFunc(h.PostRun))).Methods(http.MethodPost)
	return router
}

type fetchFailure struct {
	Location string `json:"location"`
	Error    string `json:"error"`
}

type runResponse struct {
	RunID       string         `json:"runId"`
	Fetched     int            `json:"fetched"`
	Failed      []fetchFailure `json:"failed"`
	Hazards     int            `json:"hazards"`
	Messages    int            `json:"messages"`
	Delivered   int            `json:"delivered"`
	Undelivered int            `json:"undelivered"`
	DurationMs  int64          `json:"durationMs"`
}

// PostRun handles POST /run. Only one run executes at a time; a concurrent
// trigger gets 409. The run is detached from the request context so a client
// disconnect does not cut it short.
func (h *Handler) PostRun(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r)
	if lifecycle.IsShuttingDown() {
		observability.RunRejectionsTotal.WithLabelValues("shutting_down").Inc()
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Service is shutting down")
		return
	}
	if !lifecycle.TryStartRun() {
		observability.RunRejectionsTotal.WithLabelValues("in_progress").Inc()
		writeError(w, r, http.StatusConflict, "RUN_IN_PROGRESS", "A run is already in progress")
		return
	}
	defer lifecycle.FinishRun()

	ctx := context.WithoutCancel(r.Context())
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	report, err := h.runner.Run(ctx)
	if err != nil {
		logger.Error("triggered run failed", zap.String("run_id", report.RunID), zap.Error(err))
		code := "RUN_FAILED"
		if errors.Is(err, context.DeadlineExceeded) {
			code = "RUN_TIMEOUT"
		}
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": map[string]string{
				"code":      code,
				"message":   err.Error(),
				"requestId": correlationID(r),
				"runId":     report.RunID,
			},
		})
		return
	}

	resp := runResponse{
		RunID:       report.RunID,
		Fetched:     len(report.Results),
		Failed:      make([]fetchFailure, 0, len(report.FetchErrors)),
		Hazards:     report.Hazards,
		Messages:    len(report.Messages),
		Delivered:   report.Delivery.Delivered,
		Undelivered: len(report.Delivery.Errors),
		DurationMs:  report.Duration.Milliseconds(),
	}
	for _, fe := range report.FetchErrors {
		resp.Failed = append(resp.Failed, fetchFailure{Location: fe.Location.Name, Error: fe.Err.Error()})
	}
	logger.Info("triggered run completed", zap.String("run_id", report.RunID))
	writeJSON(w, http.StatusOK, resp)
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, statusCode := "healthy", http.StatusOK
	if lifecycle.IsShuttingDown() {
		status, statusCode = "shutting-down", http.StatusServiceUnavailable
	}

	checks := map[string]string{}
	if h.CachePing != nil {
		if err := h.CachePing(); err != nil {
			checks["cache"] = "unhealthy"
			requestLogger(r).Warn("cache ping failed", zap.Error(err))
		} else {
			checks["cache"] = "healthy"
		}
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":        status,
		"service":       observability.ServiceName,
		"runInProgress": lifecycle.IsRunInProgress(),
		"checks":        checks,
		"uptimeSeconds": int64(time.Since(h.startTime).Seconds()),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID).
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationID(r),
		},
	})
}
