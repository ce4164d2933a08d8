package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidLogFormat = errors.New("invalid log format")
)

const DefaultServiceName = "leadform-bot"

// Config holds logger configuration (LOG_LEVEL, LOG_FORMAT, LOG_OUTPUT from env).
type Config struct {
	Level  string // debug, info, warn, error, fatal
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// New creates a zap logger tagged with the service name. A nil config gives
// production defaults.
func New(config *Config, serviceName string) (*zap.Logger, error) {
	if config == nil {
		l, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to create production logger: %w", err)
		}
		return l.With(zap.String(FieldService, serviceName)), nil
	}

	zapConfig, err := buildConfig(config)
	if err != nil {
		return nil, err
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return zapLogger.With(zap.String(FieldService, serviceName)), nil
}

func buildConfig(config *Config) (zap.Config, error) {
	var zapConfig zap.Config

	switch strings.ToLower(config.Format) {
	case "console":
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json", "":
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return zap.Config{}, fmt.Errorf("%w: %s", ErrInvalidLogFormat, config.Format)
	}

	level, err := parseLevel(config.Level)
	if err != nil {
		return zap.Config{}, err
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	switch out := config.Output; out {
	case "", "stdout":
		zapConfig.OutputPaths = []string{"stdout"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	case "stderr":
		zapConfig.OutputPaths = []string{"stderr"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	default:
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return zap.Config{}, fmt.Errorf("failed to create log dir: %w", err)
		}
		zapConfig.OutputPaths = []string{out}
		zapConfig.ErrorOutputPaths = []string{out}
	}

	return zapConfig, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	switch strings.ToLower(level) {
	case "warning":
		return zapcore.WarnLevel, nil
	case "debug", "info", "warn", "error", "fatal":
		l, err := zapcore.ParseLevel(strings.ToLower(level))
		if err == nil {
			return l, nil
		}
	}
	return zapcore.InfoLevel, fmt.Errorf("%w: %s", ErrInvalidLogLevel, level)
}
