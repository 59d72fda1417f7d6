package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that label dimensions match how the client,
// fetcher, notify and http packages use each metric.
func TestMetrics_Usable(t *testing.T) {
	WeatherAPICallsTotal.WithLabelValues("forecast", "success").Inc()
	WeatherAPICallsTotal.WithLabelValues("alerts", "server_error").Inc()
	WeatherAPIDuration.WithLabelValues("forecast").Observe(0.2)
	WeatherAPIRetriesTotal.Inc()
	CircuitBreakerTransitionsTotal.WithLabelValues("met_api", "closed", "open").Inc()
	CacheLookupsTotal.WithLabelValues("hit").Inc()
	FetchErrorsTotal.WithLabelValues("timeout").Inc()
	DeliveriesTotal.WithLabelValues("slack", "success").Inc()
	FindingsTotal.WithLabelValues("precipitation_hourly").Inc()
	RunsTotal.WithLabelValues("success").Inc()
	RunDuration.Observe(3)
	LastRunTimestamp.SetToCurrentTime()
	HTTPRequestsTotal.WithLabelValues("POST", "/run", "2xx").Inc()
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// the text exposition format with application metrics present.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	RunsTotal.WithLabelValues("success").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "monitorRunsTotal") {
		t.Error("MetricsHandler response should contain monitorRunsTotal")
	}
}

func TestPushMetrics_EmptyURLIsNoop(t *testing.T) {
	if err := PushMetrics(context.Background(), "", "x"); err != nil {
		t.Errorf("PushMetrics(\"\") error = %v, want nil", err)
	}
}

// TestPushMetrics_PutsToGateway verifies the job and grouping path used on the Pushgateway.
func TestPushMetrics_PutsToGateway(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := PushMetrics(context.Background(), srv.URL, "cron-1"); err != nil {
		t.Fatalf("PushMetrics() error = %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotPath != "/metrics/job/"+ServiceName+"/instance/cron-1" {
		t.Errorf("path = %s", gotPath)
	}
}

func TestPushMetrics_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := PushMetrics(context.Background(), srv.URL, ""); err == nil {
		t.Error("PushMetrics() error = nil, want error on 500")
	}
}
