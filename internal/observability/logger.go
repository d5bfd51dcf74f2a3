package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "dwd-warning-service"

// NewLogger builds the service logger from the environment:
// LOG_LEVEL (debug, info, warn, error; default info), LOG_FORMAT=console for
// human-readable output, ENV_NAME is attached to every entry.
func NewLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = parseLogFormat(os.Getenv("LOG_FORMAT"))
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if config.Encoding == "console" {
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.Level = parseLogLevel(os.Getenv("LOG_LEVEL"))

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
		"env":     env,
	}
	return config.Build()
}

// parseLogLevel accepts any zap level name, case-insensitively. Unknown values fall back to info.
func parseLogLevel(s string) zap.AtomicLevel {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level > zapcore.ErrorLevel {
		level = zapcore.InfoLevel
	}
	return zap.NewAtomicLevelAt(level)
}

func parseLogFormat(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), "console") {
		return "console"
	}
	return "json"
}
