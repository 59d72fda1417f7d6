package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-monitor/internal/analysis"
	"github.com/kjstillabower/weather-monitor/internal/fetcher"
	"github.com/kjstillabower/weather-monitor/internal/models"
	"github.com/kjstillabower/weather-monitor/internal/notify"
	"github.com/kjstillabower/weather-monitor/internal/observability"
)

// Fetcher is implemented by *fetcher.Fetcher.
type Fetcher interface {
	FetchAll(ctx context.Context, locations []models.Location) ([]models.WeatherResult, []*fetcher.FetchError, error)
}

// HazardSource is implemented by the MET Norway client.
type HazardSource interface {
	GetHazardAlerts(ctx context.Context) ([]models.HazardAlert, error)
}

// Dispatcher is implemented by *notify.Notifier.
type Dispatcher interface {
	Dispatch(ctx context.Context, msgs []notify.Message) notify.DeliveryReport
}

// Report describes one completed (or aborted) run.
type Report struct {
	RunID       string                 `json:"runId"`
	StartedAt   time.Time              `json:"startedAt"`
	Results     []models.WeatherResult `json:"results"`
	FetchErrors []*fetcher.FetchError  `json:"-"`
	Hazards     int                    `json:"hazards"`
	Messages    []notify.Message       `json:"messages"`
	Delivery    notify.DeliveryReport  `json:"delivery"`
	Duration    time.Duration          `json:"duration"`
}

// Options configures a Monitor.
type Options struct {
	Locations  []models.Location
	Thresholds analysis.Thresholds
	Summary    bool // also send the per-location summary
	Clock      clockwork.Clock
}

// Monitor runs the fetch → analyse → notify pipeline.
type Monitor struct {
	fetcher    Fetcher
	hazards    HazardSource
	dispatcher Dispatcher
	logger     *zap.Logger
	locations  []models.Location
	thresholds analysis.Thresholds
	summary    bool
	clock      clockwork.Clock
}

// New creates a Monitor. A nil hazards source skips the national warnings.
func New(f Fetcher, hazards HazardSource, d Dispatcher, logger *zap.Logger, opts Options) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Monitor{
		fetcher:    f,
		hazards:    hazards,
		dispatcher: d,
		logger:     logger,
		locations:  opts.Locations,
		thresholds: opts.Thresholds,
		summary:    opts.Summary,
		clock:      opts.Clock,
	}
}

// Run executes one pass. It fails only when fetching is aborted (abort policy or
// ctx cancellation); a failing hazard feed or sink is logged and counted.
func (m *Monitor) Run(ctx context.Context) (Report, error) {
	start := m.clock.Now()
	report := Report{RunID: uuid.NewString(), StartedAt: start}

	ctx = observability.WithRunID(ctx, report.RunID)
	ctx, span := observability.Tracer().Start(ctx, "monitor.Run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", report.RunID))

	logger := m.logger.With(zap.String("run_id", report.RunID))
	logger.Info("run started", zap.Int("locations", len(m.locations)))

	var msgs []notify.Message
	if m.hazards != nil {
		alerts, err := m.hazards.GetHazardAlerts(ctx)
		if err != nil {
			logger.Warn("hazard alerts unavailable", zap.Error(err))
		} else {
			report.Hazards = len(alerts)
			if msg, ok := notify.FormatHazards(alerts); ok {
				msgs = append(msgs, msg)
			}
		}
	}

	results, fetchErrs, err := m.fetcher.FetchAll(ctx, m.locations)
	report.Results = results
	report.FetchErrors = fetchErrs
	if err != nil {
		report.Duration = m.clock.Since(start)
		m.record("aborted", report)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("run aborted",
			zap.Int("fetched", len(results)),
			zap.Int("failed", len(fetchErrs)),
			zap.Error(err),
		)
		return report, err
	}

	findings := analysis.Evaluate(results, m.thresholds)
	observability.FindingsTotal.WithLabelValues("precipitation_hourly").Add(float64(len(findings.HeavyHourly)))
	observability.FindingsTotal.WithLabelValues("precipitation_daily").Add(float64(len(findings.HeavyDaily)))
	observability.FindingsTotal.WithLabelValues("temperature_swing").Add(float64(len(findings.Swings)))

	if m.summary {
		if msg, ok := notify.FormatSummary(results); ok {
			msgs = append(msgs, msg)
		}
	}
	msgs = append(msgs, notify.FormatFindings(findings, m.thresholds)...)
	report.Messages = msgs

	if len(msgs) > 0 {
		report.Delivery = m.dispatcher.Dispatch(ctx, msgs)
	} else {
		logger.Info("nothing to notify")
	}

	report.Duration = m.clock.Since(start)
	outcome := "success"
	if len(fetchErrs) > 0 || len(report.Delivery.Errors) > 0 {
		outcome = "partial"
	}
	m.record(outcome, report)
	logger.Info("run completed",
		zap.String("outcome", outcome),
		zap.Int("fetched", len(results)),
		zap.Int("failed", len(fetchErrs)),
		zap.Int("hazards", report.Hazards),
		zap.Int("messages", len(msgs)),
		zap.Int("delivered", report.Delivery.Delivered),
		zap.Int("undelivered", len(report.Delivery.Errors)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (m *Monitor) record(outcome string, r Report) {
	observability.RunsTotal.WithLabelValues(outcome).Inc()
	observability.RunDuration.Observe(r.Duration.Seconds())
	observability.LastRunTimestamp.Set(float64(m.clock.Now().Unix()))
}
