package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-monitor/internal/analysis"
	"github.com/kjstillabower/weather-monitor/internal/models"
	"github.com/kjstillabower/weather-monitor/internal/validation"
)

// ErrConfiguration is matched by every error Load returns.
var ErrConfiguration = errors.New("configuration error")

// ConfigError names the offending setting. It unwraps to ErrConfiguration and the cause.
type ConfigError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "config: " + e.Key + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfiguration}
	}
	return []error{ErrConfiguration, e.Err}
}

func configErr(key, reason string, err error) error {
	return &ConfigError{Key: key, Reason: reason, Err: err}
}

const (
	PolicySkip  = "skip"
	PolicyAbort = "abort"

	CacheNone      = "none"
	CacheInMemory  = "in_memory"
	CacheMemcached = "memcached"
)

// Config holds monitor configuration loaded from env, .env, YAML and defaults.
type Config struct {
	EnvName string

	UserEmail         string
	WeatherAPIURL     string
	AlertsAPIURL      string
	WeatherAPITimeout time.Duration
	RequestDelay      time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	CacheBackend          string
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	FetchErrorPolicy string
	Thresholds       analysis.Thresholds
	Locations        []models.Location

	NotifySummary   bool
	SinkTimeout     time.Duration
	SlackWebhookURL string
	EmailTo         []string
	EmailFrom       string
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	KafkaBrokers    []string
	KafkaTopic      string

	PushgatewayURL string
	ZipkinURL      string

	ServerPort         string
	ShutdownTimeout    time.Duration
	RunTimeout         time.Duration
	RunRateLimitPerMin int
}

// SlackEnabled reports whether the Slack sink is configured.
func (c *Config) SlackEnabled() bool { return c.SlackWebhookURL != "" }

// EmailEnabled reports whether the email sink is configured.
func (c *Config) EmailEnabled() bool { return len(c.EmailTo) > 0 }

// KafkaEnabled reports whether the Kafka sink is configured.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

type fileConfig struct {
	WeatherAPI struct {
		URL          string `yaml:"url"`
		AlertsURL    string `yaml:"alerts_url"`
		Timeout      string `yaml:"timeout"`
		RequestDelay string `yaml:"request_delay"`
	} `yaml:"weather_api"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		CircuitBreaker   struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Fetch struct {
		ErrorPolicy string `yaml:"error_policy"`
	} `yaml:"fetch"`

	Thresholds struct {
		PrecipitationHourly *float64 `yaml:"precipitation_hourly"`
		PrecipitationDaily  *float64 `yaml:"precipitation_daily"`
		TemperatureSwing    *float64 `yaml:"temperature_swing"`
	} `yaml:"thresholds"`

	Notify struct {
		Summary *bool  `yaml:"summary"`
		Timeout string `yaml:"timeout"`
		Email   struct {
			To       []string `yaml:"to"`
			From     string   `yaml:"from"`
			SMTPHost string   `yaml:"smtp_host"`
			SMTPPort int      `yaml:"smtp_port"`
			Username string   `yaml:"username"`
		} `yaml:"email"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
		} `yaml:"kafka"`
	} `yaml:"notify"`

	Telemetry struct {
		PushgatewayURL string `yaml:"pushgateway_url"`
		ZipkinURL      string `yaml:"zipkin_url"`
	} `yaml:"telemetry"`

	Server struct {
		Port               string `yaml:"port"`
		ShutdownTimeout    string `yaml:"shutdown_timeout"`
		RunTimeout         string `yaml:"run_timeout"`
		RunRateLimitPerMin int    `yaml:"run_rate_limit_per_min"`
	} `yaml:"server"`

	Locations []models.Location `yaml:"locations"`
}

type secretsFile struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	SMTPPassword    string `yaml:"smtp_password"`
}

// Load reads configuration. Precedence: process env, then .env in the working
// directory, then CONFIG_FILE or config/{ENV_NAME}.yaml, then defaults. Secrets
// may also come from config/secrets.yaml. Every returned error matches ErrConfiguration.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, configErr(".env", "parse failed", err)
	}

	env := strings.TrimSpace(os.Getenv("ENV_NAME"))
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, configErr("cwd", "get working directory", err)
	}

	fc, err := readFileConfig(cwd, env)
	if err != nil {
		return nil, err
	}
	sec, err := readSecrets(cwd)
	if err != nil {
		return nil, err
	}

	cfg := &Config{EnvName: env}

	cfg.UserEmail = strings.TrimSpace(os.Getenv("USER_EMAIL"))
	if cfg.UserEmail == "" {
		return nil, configErr("USER_EMAIL", "required; MET Norway needs a contact address in the User-Agent", nil)
	}

	cfg.WeatherAPIURL = envOr("WEATHER_API_URL", fc.WeatherAPI.URL, "https://api.met.no/weatherapi/locationforecast/2.0/compact")
	cfg.AlertsAPIURL = envOr("ALERTS_API_URL", fc.WeatherAPI.AlertsURL, "https://api.met.no/weatherapi/metalerts/2.0/current.json")
	if cfg.WeatherAPITimeout, err = durationSetting("WEATHER_API_TIMEOUT", fc.WeatherAPI.Timeout, 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RequestDelay, err = durationSetting("REQUEST_DELAY", fc.WeatherAPI.RequestDelay, time.Second); err != nil {
		return nil, err
	}

	if cfg.RetryAttempts, err = intSetting("RETRY_MAX_ATTEMPTS", fc.Reliability.RetryMaxAttempts, 1); err != nil {
		return nil, err
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 500*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 5*time.Second)

	cfg.CircuitBreakerEnabled = fc.Reliability.CircuitBreaker.Enabled
	if v := os.Getenv("CIRCUIT_BREAKER_ENABLED"); v != "" {
		b, perr := strconv.ParseBool(strings.TrimSpace(v))
		if perr != nil {
			return nil, configErr("CIRCUIT_BREAKER_ENABLED", "not a boolean", perr)
		}
		cfg.CircuitBreakerEnabled = b
	}
	cfg.CircuitBreakerFailureThreshold = positiveOr(fc.Reliability.CircuitBreaker.FailureThreshold, 3)
	cfg.CircuitBreakerSuccessThreshold = positiveOr(fc.Reliability.CircuitBreaker.SuccessThreshold, 1)
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.CacheBackend = strings.ToLower(envOr("CACHE_BACKEND", fc.Cache.Backend, CacheNone))
	if cfg.CacheTTL, err = durationSetting("CACHE_TTL", fc.Cache.TTL, 30*time.Minute); err != nil {
		return nil, err
	}
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)

	cfg.FetchErrorPolicy = strings.ToLower(envOr("FETCH_ERROR_POLICY", fc.Fetch.ErrorPolicy, PolicySkip))

	if cfg.Thresholds, err = loadThresholds(fc); err != nil {
		return nil, err
	}

	cfg.Locations = DefaultLocations()
	if len(fc.Locations) > 0 {
		cfg.Locations = fc.Locations
	}

	cfg.NotifySummary = fc.Notify.Summary != nil && *fc.Notify.Summary
	if v := os.Getenv("NOTIFY_SUMMARY"); v != "" {
		b, perr := strconv.ParseBool(strings.TrimSpace(v))
		if perr != nil {
			return nil, configErr("NOTIFY_SUMMARY", "not a boolean", perr)
		}
		cfg.NotifySummary = b
	}
	if cfg.SinkTimeout, err = durationSetting("NOTIFY_TIMEOUT", fc.Notify.Timeout, 10*time.Second); err != nil {
		return nil, err
	}

	cfg.SlackWebhookURL = envOr("SLACK_WEBHOOK_URL", sec.SlackWebhookURL, "")

	cfg.EmailTo = splitList(os.Getenv("EMAIL_TO"))
	if len(cfg.EmailTo) == 0 {
		cfg.EmailTo = trimAll(fc.Notify.Email.To)
	}
	cfg.EmailFrom = envOr("EMAIL_FROM", fc.Notify.Email.From, cfg.UserEmail)
	cfg.SMTPHost = envOr("SMTP_HOST", fc.Notify.Email.SMTPHost, "")
	if cfg.SMTPPort, err = intSetting("SMTP_PORT", fc.Notify.Email.SMTPPort, 587); err != nil {
		return nil, err
	}
	cfg.SMTPUsername = envOr("SMTP_USERNAME", fc.Notify.Email.Username, "")
	cfg.SMTPPassword = envOr("SMTP_PASSWORD", sec.SMTPPassword, "")

	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	if len(cfg.KafkaBrokers) == 0 {
		cfg.KafkaBrokers = trimAll(fc.Notify.Kafka.Brokers)
	}
	cfg.KafkaTopic = envOr("KAFKA_TOPIC", fc.Notify.Kafka.Topic, "weather-alerts")

	cfg.PushgatewayURL = envOr("PUSHGATEWAY_URL", fc.Telemetry.PushgatewayURL, "")
	cfg.ZipkinURL = envOr("ZIPKIN_URL", fc.Telemetry.ZipkinURL, "")

	cfg.ServerPort = envOr("SERVER_PORT", fc.Server.Port, "8080")
	cfg.ShutdownTimeout = parseDuration(fc.Server.ShutdownTimeout, 30*time.Second)
	cfg.RunTimeout = parseDuration(fc.Server.RunTimeout, 5*time.Minute)
	if cfg.RunRateLimitPerMin, err = intSetting("RUN_RATE_LIMIT_PER_MIN", fc.Server.RunRateLimitPerMin, 6); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFileConfig(cwd, env string) (fileConfig, error) {
	var fc fileConfig
	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	explicit := path != ""
	if !explicit {
		path = filepath.Join(cwd, "config", env+".yaml")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return fc, nil
		}
		if os.IsNotExist(err) {
			return fc, configErr("CONFIG_FILE", "config file not found: "+path, err)
		}
		return fc, configErr("CONFIG_FILE", "read config file", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, configErr("CONFIG_FILE", "parse config file", err)
	}
	return fc, nil
}

func readSecrets(cwd string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, configErr("secrets.yaml", "read secrets file", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, configErr("secrets.yaml", "parse secrets file", err)
	}
	return sec, nil
}

func loadThresholds(fc fileConfig) (analysis.Thresholds, error) {
	th := analysis.DefaultThresholds()
	if fc.Thresholds.PrecipitationHourly != nil {
		th.PrecipitationHourly = *fc.Thresholds.PrecipitationHourly
	}
	if fc.Thresholds.PrecipitationDaily != nil {
		th.PrecipitationDaily = *fc.Thresholds.PrecipitationDaily
	}
	if fc.Thresholds.TemperatureSwing != nil {
		th.TemperatureSwing = *fc.Thresholds.TemperatureSwing
	}
	var err error
	if th.PrecipitationHourly, err = floatEnv("THRESHOLD_PRECIPITATION_HOURLY", th.PrecipitationHourly); err != nil {
		return th, err
	}
	if th.PrecipitationDaily, err = floatEnv("THRESHOLD_PRECIPITATION_DAILY", th.PrecipitationDaily); err != nil {
		return th, err
	}
	if th.TemperatureSwing, err = floatEnv("THRESHOLD_TEMPERATURE_SWING", th.TemperatureSwing); err != nil {
		return th, err
	}
	return th, nil
}

// envOr returns the trimmed env value, else the file value, else def.
func envOr(key, fileVal, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if v := strings.TrimSpace(fileVal); v != "" {
		return v
	}
	return def
}

func floatEnv(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, configErr(key, "not a number", err)
	}
	return f, nil
}

func intSetting(key string, fileVal, def int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, configErr(key, "not an integer", err)
		}
		return n, nil
	}
	return positiveOr(fileVal, def), nil
}

// durationSetting reads an env duration strictly; file values fall back to def on parse failure.
func durationSetting(key, fileVal string, def time.Duration) (time.Duration, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, configErr(key, "not a duration", err)
		}
		return d, nil
	}
	return parseDurationOrZero(fileVal, def), nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero is returned as-is so settings like request_delay can be disabled.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// validate performs post-load checks on values that have no safe fallback.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return configErr("WEATHER_API_TIMEOUT", "must be positive", nil)
	}
	if cfg.RequestDelay < 0 {
		return configErr("REQUEST_DELAY", "must not be negative", nil)
	}
	if cfg.RetryAttempts <= 0 {
		return configErr("RETRY_MAX_ATTEMPTS", "must be at least 1", nil)
	}
	switch cfg.FetchErrorPolicy {
	case PolicySkip, PolicyAbort:
	default:
		return configErr("FETCH_ERROR_POLICY", fmt.Sprintf("must be skip or abort, got %q", cfg.FetchErrorPolicy), nil)
	}
	switch cfg.CacheBackend {
	case CacheNone, CacheInMemory, CacheMemcached:
	default:
		return configErr("CACHE_BACKEND", fmt.Sprintf("must be none, in_memory or memcached, got %q", cfg.CacheBackend), nil)
	}
	th := cfg.Thresholds
	if th.PrecipitationHourly <= 0 || th.PrecipitationDaily <= 0 || th.TemperatureSwing <= 0 {
		return configErr("THRESHOLD_*", "thresholds must be positive", nil)
	}
	if len(cfg.Locations) == 0 {
		return configErr("locations", "at least one location is required", nil)
	}
	if err := validation.ValidateLocations(cfg.Locations); err != nil {
		return configErr("locations", "invalid location", err)
	}
	if cfg.EmailEnabled() && cfg.SMTPHost == "" {
		return configErr("SMTP_HOST", "required when EMAIL_TO is set", nil)
	}
	if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
		return configErr("SMTP_PORT", "out of range", nil)
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return configErr("KAFKA_TOPIC", "required when KAFKA_BROKERS is set", nil)
	}
	if cfg.SinkTimeout <= 0 {
		return configErr("NOTIFY_TIMEOUT", "must be positive", nil)
	}
	if cfg.RunRateLimitPerMin < 0 {
		return configErr("RUN_RATE_LIMIT_PER_MIN", "must not be negative", nil)
	}
	return nil
}
