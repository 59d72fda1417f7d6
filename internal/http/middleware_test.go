package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	var seen string
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		seen = correlationID(r)
	})

	w := serve(router, http.MethodGet, "/x")
	got := w.Header().Get("X-Correlation-ID")
	if got == "" {
		t.Fatal("X-Correlation-ID header missing")
	}
	if seen != got {
		t.Errorf("context correlation ID = %q, header = %q", seen, got)
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		requestLogger(r).Info("handled")
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
	entries := logs.FilterMessage("handled").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != "client-provided-id" {
		t.Errorf("log entries = %+v", entries)
	}
}

func TestRequestLogger_Fallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if requestLogger(req) == nil {
		t.Error("requestLogger() = nil without middleware")
	}
	if correlationID(req) != "" {
		t.Error("correlationID() should be empty without middleware")
	}
}

func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	var during int64
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		during = InFlightCount()
		w.WriteHeader(http.StatusAccepted)
	})

	serve(router, http.MethodGet, "/x")
	if during < 1 {
		t.Errorf("in-flight during request = %d, want ≥ 1", during)
	}
	if InFlightCount() != 0 {
		t.Errorf("in-flight after request = %d, want 0", InFlightCount())
	}
}

func TestGetRoute(t *testing.T) {
	router := mux.NewRouter()
	var route string
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route = getRoute(r)
			next.ServeHTTP(w, r)
		})
	})
	router.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {})

	serve(router, http.MethodGet, "/run")
	if route != "/run" {
		t.Errorf("getRoute() = %q, want /run", route)
	}
	if got := getRoute(httptest.NewRequest(http.MethodGet, "/nope", nil)); got != "unmatched" {
		t.Errorf("getRoute() = %q, want unmatched", got)
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := map[int]string{200: "2xx", 409: "4xx", 429: "4xx", 503: "5xx"}
	for code, want := range tests {
		if got := statusCodeString(code); got != want {
			t.Errorf("statusCodeString(%d) = %q, want %q", code, got, want)
		}
	}
}
