package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kjstillabower/weather-monitor/internal/circuitbreaker"
	"github.com/kjstillabower/weather-monitor/internal/models"
	"github.com/kjstillabower/weather-monitor/internal/observability"
)

// ForecastClient fetches forecasts and national hazard alerts.
type ForecastClient interface {
	GetForecast(ctx context.Context, loc models.Location) (models.Forecast, error)
	GetHazardAlerts(ctx context.Context) ([]models.HazardAlert, error)
}

var (
	ErrForbidden       = errors.New("forbidden by upstream")
	ErrNotFound        = errors.New("not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrCircuitOpen     = errors.New("circuit open")
	ErrInvalidContact  = errors.New("invalid contact")
)

const (
	endpointForecast = "forecast"
	endpointAlerts   = "alerts"

	// maxBodyBytes bounds the forecast/alerts payloads we read.
	maxBodyBytes = 8 << 20
)

// Options configures a MetNoClient. Zero values take defaults.
type Options struct {
	ForecastURL    string
	AlertsURL      string
	Contact        string // email for the User-Agent; required by MET Norway
	Timeout        time.Duration
	RetryAttempts  int // total attempts; 1 disables retry
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	HTTPClient     *http.Client
}

// MetNoClient calls the MET Norway Locationforecast and MetAlerts APIs.
type MetNoClient struct {
	forecastURL    string
	alertsURL      string
	userAgent      string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

func NewMetNoClient(opts Options) (*MetNoClient, error) {
	if opts.Contact == "" {
		return nil, fmt.Errorf("%w: contact email is required for the User-Agent", ErrInvalidContact)
	}
	if opts.ForecastURL == "" {
		opts.ForecastURL = "https://api.met.no/weatherapi/locationforecast/2.0/compact"
	}
	if opts.AlertsURL == "" {
		opts.AlertsURL = "https://api.met.no/weatherapi/metalerts/2.0/current.json"
	}
	if _, err := url.Parse(opts.ForecastURL); err != nil {
		return nil, fmt.Errorf("invalid forecast URL: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 5 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &MetNoClient{
		forecastURL:    opts.ForecastURL,
		alertsURL:      opts.AlertsURL,
		userAgent:      fmt.Sprintf("WeatherMonitor/1.0 (%s)", opts.Contact),
		timeout:        opts.Timeout,
		client:         httpClient,
		retryAttempts:  opts.RetryAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		retryMaxDelay:  opts.RetryMaxDelay,
	}, nil
}

// SetCircuitBreaker installs a breaker around every upstream attempt.
func (c *MetNoClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

type forecastResponse struct {
	Properties struct {
		Meta struct {
			UpdatedAt time.Time `json:"updated_at"`
		} `json:"meta"`
		Timeseries []struct {
			Time time.Time `json:"time"`
			Data struct {
				Instant struct {
					Details struct {
						AirTemperature *float64 `json:"air_temperature"`
					} `json:"details"`
				} `json:"instant"`
				Next1Hours *struct {
					Summary struct {
						SymbolCode string `json:"symbol_code"`
					} `json:"summary"`
					Details struct {
						PrecipitationAmount *float64 `json:"precipitation_amount"`
					} `json:"details"`
				} `json:"next_1_hours"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

type alertsResponse struct {
	Features []struct {
		Properties struct {
			Event          string          `json:"event"`
			Severity       string          `json:"severity"`
			Area           string          `json:"area"`
			Description    string          `json:"description"`
			County         json.RawMessage `json:"county"`
			MunicipalityID json.RawMessage `json:"MunicipalityId"`
		} `json:"properties"`
		When struct {
			Interval []string `json:"interval"`
		} `json:"when"`
	} `json:"features"`
}

// GetForecast fetches the compact forecast for loc.
func (c *MetNoClient) GetForecast(ctx context.Context, loc models.Location) (models.Forecast, error) {
	ctx, span := observability.Tracer().Start(ctx, "metno.GetForecast")
	defer span.End()
	span.SetAttributes(attribute.String("location", loc.Name))

	params := url.Values{}
	params.Set("lat", FormatCoordinate(loc.Latitude))
	params.Set("lon", FormatCoordinate(loc.Longitude))

	var resp forecastResponse
	if err := c.getJSON(ctx, endpointForecast, c.forecastURL, params, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.Forecast{}, err
	}
	return mapForecast(resp, loc), nil
}

// GetHazardAlerts fetches current warnings and keeps those tied to a county or
// municipality, dropping duplicates by (event, severity, onset).
func (c *MetNoClient) GetHazardAlerts(ctx context.Context) ([]models.HazardAlert, error) {
	ctx, span := observability.Tracer().Start(ctx, "metno.GetHazardAlerts")
	defer span.End()

	var resp alertsResponse
	if err := c.getJSON(ctx, endpointAlerts, c.alertsURL, nil, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	alerts := mapAlerts(resp)
	span.SetAttributes(attribute.Int("alerts", len(alerts)))
	return alerts, nil
}

func (c *MetNoClient) getJSON(ctx context.Context, endpoint, rawURL string, params url.Values, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		var body []byte
		call := func() error {
			var err error
			body, err = c.callAPI(ctx, endpoint, rawURL, params)
			return err
		}
		var err error
		if c.breaker != nil {
			err = c.breaker.Call(call, isRetryable)
			if errors.Is(err, circuitbreaker.ErrOpen) {
				return fmt.Errorf("%w: %s", ErrCircuitOpen, endpoint)
			}
		} else {
			err = call()
		}
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("parse %s response: %w", endpoint, err)
			}
			return nil
		}

		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}
	if c.retryAttempts > 1 {
		return fmt.Errorf("exhausted retries: %w", lastErr)
	}
	return lastErr
}

func (c *MetNoClient) callAPI(ctx context.Context, endpoint, rawURL string, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, rawURL, params)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	observability.WeatherAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, statusLabel(resp.StatusCode)).Inc()

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func (c *MetNoClient) buildRequest(ctx context.Context, rawURL string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if runID := observability.RunIDFromContext(ctx); runID != "" {
		req.Header.Set("X-Correlation-ID", runID)
	}
	return req, nil
}

func (c *MetNoClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	switch CategorizeError(err) {
	case ErrorCategoryTimeout, ErrorCategoryNetwork:
		return true
	}
	return false
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusForbidden:
		// MET Norway answers 403 to missing or generic User-Agents.
		return fmt.Errorf("%w: HTTP 403", ErrForbidden)
	case http.StatusNotFound:
		return fmt.Errorf("%w: HTTP 404", ErrNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP 429", ErrRateLimited)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: HTTP %d", resp.StatusCode)
	}
	return nil
}

func mapForecast(resp forecastResponse, loc models.Location) models.Forecast {
	ts := resp.Properties.Timeseries
	points := make([]models.ForecastPoint, 0, len(ts))
	for _, e := range ts {
		p := models.ForecastPoint{
			Time:           e.Time,
			AirTemperature: e.Data.Instant.Details.AirTemperature,
		}
		if n := e.Data.Next1Hours; n != nil {
			p.SymbolCode = n.Summary.SymbolCode
			p.PrecipitationNextHour = n.Details.PrecipitationAmount
		}
		points = append(points, p)
	}
	return models.Forecast{
		Location:  loc,
		UpdatedAt: resp.Properties.Meta.UpdatedAt,
		Points:    points,
	}
}

func mapAlerts(resp alertsResponse) []models.HazardAlert {
	seen := make(map[string]struct{})
	var out []models.HazardAlert
	for _, f := range resp.Features {
		p := f.Properties
		if !present(p.County) && !present(p.MunicipalityID) {
			continue
		}
		onset := ""
		if len(f.When.Interval) > 0 {
			onset = f.When.Interval[0]
		}
		key := p.Event + "_" + p.Severity + "_" + onset
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, models.HazardAlert{
			Event:       p.Event,
			Severity:    p.Severity,
			Onset:       onset,
			Area:        p.Area,
			Description: p.Description,
		})
	}
	return out
}

// present reports whether a raw JSON value is non-empty: not absent, null, "", [] or {}.
func present(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", `""`, "[]", "{}":
		return false
	}
	return true
}

// FormatCoordinate renders a coordinate with at most 4 decimals, as MET Norway's
// terms of service require; extra precision only defeats their caching.
func FormatCoordinate(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
