package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-monitor/internal/analysis"
	"github.com/kjstillabower/weather-monitor/internal/cache"
	"github.com/kjstillabower/weather-monitor/internal/client"
	"github.com/kjstillabower/weather-monitor/internal/models"
	"github.com/kjstillabower/weather-monitor/internal/observability"
)

// ErrorPolicy decides what FetchAll does when a location fails.
type ErrorPolicy string

const (
	// PolicySkip leaves the failed location out and carries on.
	PolicySkip ErrorPolicy = "skip"
	// PolicyAbort stops at the first failure.
	PolicyAbort ErrorPolicy = "abort"
)

// FetchError reports a failed location. It unwraps to the upstream cause.
type FetchError struct {
	Location models.Location
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Location.Name, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options configures a Fetcher. Zero values take defaults.
type Options struct {
	Policy   ErrorPolicy
	Delay    time.Duration // pause between upstream requests
	CacheTTL time.Duration
	Clock    clockwork.Clock
}

// Fetcher retrieves forecasts for a list of locations using cache-aside with
// the upstream client as fallback, one location at a time.
type Fetcher struct {
	client   client.ForecastClient
	cache    cache.Cache
	logger   *zap.Logger
	policy   ErrorPolicy
	delay    time.Duration
	cacheTTL time.Duration
	clock    clockwork.Clock
}

// New creates a Fetcher. A nil cache disables caching.
func New(c client.ForecastClient, ca cache.Cache, logger *zap.Logger, opts Options) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Policy == "" {
		opts.Policy = PolicySkip
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Fetcher{
		client:   c,
		cache:    ca,
		logger:   logger,
		policy:   opts.Policy,
		delay:    opts.Delay,
		cacheTTL: opts.CacheTTL,
		clock:    opts.Clock,
	}
}

// FetchAll fetches every location in order and returns the successful results in
// input order, plus one FetchError per failed location. Under PolicyAbort the
// first failure ends the loop and is also returned as the error. Cancellation of
// ctx is always returned as the error.
func (f *Fetcher) FetchAll(ctx context.Context, locations []models.Location) ([]models.WeatherResult, []*FetchError, error) {
	ctx, span := observability.Tracer().Start(ctx, "fetcher.FetchAll")
	defer span.End()
	span.SetAttributes(attribute.Int("locations", len(locations)))

	results := make([]models.WeatherResult, 0, len(locations))
	var failures []*FetchError
	upstreamCalled := false

	for _, loc := range locations {
		if err := ctx.Err(); err != nil {
			return results, failures, err
		}

		forecast, cached, err := f.lookup(ctx, loc)
		if !cached {
			if upstreamCalled && f.delay > 0 {
				select {
				case <-ctx.Done():
					return results, failures, ctx.Err()
				case <-f.clock.After(f.delay):
				}
			}
			upstreamCalled = true
			forecast, err = f.client.GetForecast(ctx, loc)
			if err == nil {
				f.store(ctx, loc, forecast)
			}
		}

		var result models.WeatherResult
		if err == nil {
			result, err = Summarize(forecast, f.clock.Now())
		}
		if err != nil {
			fe := &FetchError{Location: loc, Err: err}
			failures = append(failures, fe)
			observability.FetchErrorsTotal.WithLabelValues(string(client.CategorizeError(err))).Inc()
			f.logger.Warn("forecast fetch failed",
				zap.String("location", loc.Name),
				zap.String("category", string(client.CategorizeError(err))),
				zap.Error(err),
			)
			if f.policy == PolicyAbort {
				return results, failures, fe
			}
			continue
		}

		result.Cached = cached
		results = append(results, result)
		f.logger.Debug("forecast fetched",
			zap.String("location", loc.Name),
			zap.Bool("cached", cached),
			zap.Float64("temperature", result.Temperature),
		)
	}

	span.SetAttributes(attribute.Int("failures", len(failures)))
	return results, failures, nil
}

// lookup returns (forecast, true, nil) on a cache hit. Cache errors are logged
// and treated as a miss.
func (f *Fetcher) lookup(ctx context.Context, loc models.Location) (models.Forecast, bool, error) {
	if f.cache == nil {
		return models.Forecast{}, false, nil
	}
	fc, ok, err := f.cache.Get(ctx, cache.Key(loc))
	switch {
	case err != nil:
		observability.CacheLookupsTotal.WithLabelValues("error").Inc()
		f.logger.Warn("cache get failed", zap.String("location", loc.Name), zap.Error(err))
		return models.Forecast{}, false, nil
	case ok:
		observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
		fc.Location = loc
		return fc, true, nil
	default:
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return models.Forecast{}, false, nil
	}
}

func (f *Fetcher) store(ctx context.Context, loc models.Location, fc models.Forecast) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Set(ctx, cache.Key(loc), fc, f.cacheTTL); err != nil {
		f.logger.Warn("cache set failed", zap.String("location", loc.Name), zap.Error(err))
	}
}

var symbolSuffixes = []string{"_day", "_night", "_polartwilight"}

// Summarize reduces a forecast to a WeatherResult stamped with now. It fails with
// client.ErrNoData when no point carries an air temperature.
func Summarize(fc models.Forecast, now time.Time) (models.WeatherResult, error) {
	var (
		temp      float64
		found     bool
		condition string
	)
	for _, p := range fc.Points {
		if !found && p.AirTemperature != nil {
			temp, found = *p.AirTemperature, true
		}
		if condition == "" && p.SymbolCode != "" {
			condition = Condition(p.SymbolCode)
		}
		if found && condition != "" {
			break
		}
	}
	if !found {
		return models.WeatherResult{}, fmt.Errorf("%s: %w", fc.Location.Name, client.ErrNoData)
	}
	if condition == "" {
		condition = "unknown"
	}
	return models.WeatherResult{
		Location:    fc.Location,
		Temperature: temp,
		Condition:   condition,
		FetchedAt:   now,
		Analysis:    analysis.Analyze(fc.Points),
	}, nil
}

// Condition strips the time-of-day variant from a symbol code: "partlycloudy_day"
// becomes "partlycloudy".
func Condition(symbolCode string) string {
	for _, s := range symbolSuffixes {
		if strings.HasSuffix(symbolCode, s) {
			return strings.TrimSuffix(symbolCode, s)
		}
	}
	return symbolCode
}
