package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
// Output is JSON unless LOG_FORMAT=console, which suits a terminal run.
func NewLogger() (*zap.Logger, error) {
	return buildLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func buildLogger(level, format string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = zap.NewAtomicLevelAt(levelFromString(level))
	config.InitialFields = map[string]interface{}{"service": ServiceName}
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		config.Sampling = nil
	}
	return config.Build()
}

// levelFromString maps LOG_LEVEL values onto zap levels. Unknown values log at info.
func levelFromString(s string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zap.DebugLevel
	case "WARN", "WARNING":
		return zap.WarnLevel
	case "ERROR":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
