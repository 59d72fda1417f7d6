package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-monitor/internal/cache"
	"github.com/kjstillabower/weather-monitor/internal/circuitbreaker"
	"github.com/kjstillabower/weather-monitor/internal/client"
	"github.com/kjstillabower/weather-monitor/internal/config"
	"github.com/kjstillabower/weather-monitor/internal/fetcher"
	httphandler "github.com/kjstillabower/weather-monitor/internal/http"
	"github.com/kjstillabower/weather-monitor/internal/lifecycle"
	"github.com/kjstillabower/weather-monitor/internal/monitor"
	"github.com/kjstillabower/weather-monitor/internal/notify"
	"github.com/kjstillabower/weather-monitor/internal/observability"
)

// errStartup marks failures that stop the process before a run: configuration,
// logger and dependency wiring. They exit 1.
var errStartup = errors.New("startup failed")

func main() {
	os.Exit(execute(os.Args[1:], os.Stderr))
}

// execute runs the CLI and maps the outcome to an exit code: 1 for startup
// errors, 2 for usage errors and 0 otherwise, including runs where some
// locations or sinks failed.
func execute(args []string, stderr io.Writer) int {
	root := newRootCmd()
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stderr)
	root.SetErr(stderr)

	err := root.Execute()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errStartup), errors.Is(err, config.ErrConfiguration):
		return 1
	default:
		fmt.Fprintf(stderr, "Error: %v\n%s", err, root.UsageString())
		return 2
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	mode := func(name string) func(*cobra.Command, []string) error {
		return func(*cobra.Command, []string) error {
			return start(name, configFile)
		}
	}

	root := &cobra.Command{
		Use:           "monitor",
		Short:         "Check MET Norway forecasts against alert thresholds and notify",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          mode("run"),
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Fetch, analyse and notify once, then exit (default)",
			Args:  cobra.NoArgs,
			RunE:  mode("run"),
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Expose POST /run, /health and /metrics over HTTP",
			Args:  cobra.NoArgs,
			RunE:  mode("serve"),
		},
	)
	return root
}

// start wires the process for mode and runs it. Only startup failures are
// returned; run outcomes are logged and counted.
func start(mode, configFile string) error {
	if configFile != "" {
		os.Setenv("CONFIG_FILE", configFile)
	}

	logger, err := observability.NewLogger()
	if err != nil {
		return fmt.Errorf("%w: logger: %w", errStartup, err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", zap.Error(err))
		return err
	}

	shutdownTracing, err := observability.SetupTracing(cfg.ZipkinURL)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
		shutdownTracing = nil
	}

	a, err := build(cfg, logger)
	if err != nil {
		logger.Error("startup", zap.Error(err))
		return fmt.Errorf("%w: %w", errStartup, err)
	}
	defer a.close()

	if mode == "serve" {
		serve(cfg, a, logger)
	} else {
		runOnce(cfg, a, logger)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := observability.Flush(flushCtx, logger, cfg.PushgatewayURL, mode, shutdownTracing); err != nil {
		logger.Warn("telemetry flush", zap.Error(err))
	}
	return nil
}

type app struct {
	monitor   *monitor.Monitor
	notifier  *notify.Notifier
	memcached *cache.MemcachedCache
	logger    *zap.Logger
}

func (a *app) close() {
	if err := a.notifier.Close(); err != nil {
		a.logger.Warn("notifier close", zap.Error(err))
	}
	if a.memcached != nil {
		if err := a.memcached.Close(); err != nil {
			a.logger.Warn("memcached close", zap.Error(err))
		}
	}
}

// build wires client, cache, fetcher, sinks and monitor from cfg.
func build(cfg *config.Config, logger *zap.Logger) (*app, error) {
	metClient, err := client.NewMetNoClient(client.Options{
		ForecastURL:    cfg.WeatherAPIURL,
		AlertsURL:      cfg.AlertsAPIURL,
		Contact:        cfg.UserEmail,
		Timeout:        cfg.WeatherAPITimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
	})
	if err != nil {
		return nil, err
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			Name:             "metno",
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				observability.CircuitBreakerTransitionsTotal.WithLabelValues(name, from.String(), to.String()).Inc()
				logger.Warn("circuit breaker transition",
					zap.String("component", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		metClient.SetCircuitBreaker(cb)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	a := &app{logger: logger}

	var forecastCache cache.Cache
	switch cfg.CacheBackend {
	case config.CacheMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, err
		}
		a.memcached = mc
		forecastCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case config.CacheInMemory:
		forecastCache = cache.NewInMemoryCache(nil)
		logger.Info("cache backend: in_memory")
	}

	policy := fetcher.PolicySkip
	if cfg.FetchErrorPolicy == config.PolicyAbort {
		policy = fetcher.PolicyAbort
	}
	f := fetcher.New(metClient, forecastCache, logger, fetcher.Options{
		Policy:   policy,
		Delay:    cfg.RequestDelay,
		CacheTTL: cfg.CacheTTL,
	})

	sinks, err := buildSinks(cfg)
	if err != nil {
		return nil, err
	}
	a.notifier = notify.NewNotifier(logger, cfg.SinkTimeout, sinks...)
	if len(sinks) == 0 {
		logger.Warn("no notification sinks configured; findings will only be logged")
	} else {
		logger.Info("notification sinks", zap.Strings("sinks", a.notifier.SinkNames()))
	}

	a.monitor = monitor.New(f, metClient, a.notifier, logger, monitor.Options{
		Locations:  cfg.Locations,
		Thresholds: cfg.Thresholds,
		Summary:    cfg.NotifySummary,
	})
	return a, nil
}

func buildSinks(cfg *config.Config) ([]notify.Sink, error) {
	var sinks []notify.Sink
	if cfg.SlackEnabled() {
		s, err := notify.NewSlackSink(cfg.SlackWebhookURL, &http.Client{Timeout: cfg.SinkTimeout})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.EmailEnabled() {
		s, err := notify.NewEmailSink(notify.EmailConfig{
			From:     cfg.EmailFrom,
			To:       cfg.EmailTo,
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			Timeout:  cfg.SinkTimeout,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.KafkaEnabled() {
		sinks = append(sinks, notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	return sinks, nil
}

func runOnce(cfg *config.Config, a *app, logger *zap.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := a.monitor.Run(ctx)
	if err != nil {
		logger.Error("run failed", zap.String("run_id", rep.RunID), zap.Error(err))
		return
	}
	logger.Info("run complete",
		zap.String("run_id", rep.RunID),
		zap.Int("locations", len(cfg.Locations)),
		zap.Int("fetched", len(rep.Results)),
		zap.Int("messages", len(rep.Messages)),
		zap.Int("delivered", rep.Delivery.Delivered))
}

func serve(cfg *config.Config, a *app, logger *zap.Logger) {
	var limiter *rate.Limiter
	if cfg.RunRateLimitPerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RunRateLimitPerMin)), 1)
	}
	h := httphandler.NewHandler(a.monitor, logger, cfg.RunTimeout)
	if a.memcached != nil {
		h.CachePing = a.memcached.Ping
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           httphandler.NewRouter(h, logger, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	select {
	case <-ctx.Done():
		logger.Info("graceful shutdown triggered")
	case err := <-errCh:
		logger.Error("server", zap.Error(err))
	}
	stop()

	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}
	logger.Info("shutdown complete")
}
