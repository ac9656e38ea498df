// Package logging builds the zap loggers used by the daemon and CLI.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/eliteGoblin/focusd/web_mon/internal/config"
)

// New returns a JSON logger writing to a rotating file at cfg.Path.
// In debug mode it also writes human-readable output to stderr.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, err
	}

	level := zap.InfoLevel
	if cfg.Debug {
		level = zap.DebugLevel
	}

	file := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	})

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), file, level),
	}
	if cfg.Debug {
		console := zap.NewDevelopmentEncoderConfig()
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(console), zapcore.Lock(os.Stderr), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// NewCLI returns the logger for interactive commands: silent unless debug.
func NewCLI(debug bool) *zap.Logger {
	if !debug {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// NewOrFallback is New, falling back to a stderr production logger when
// the log file can't be opened.
func NewOrFallback(cfg config.LogConfig) *zap.Logger {
	logger, err := New(cfg)
	if err == nil {
		return logger
	}
	zc := zap.NewProductionConfig()
	zc.EncoderConfig = encoderConfig()
	fallback, buildErr := zc.Build()
	if buildErr != nil {
		return zap.NewNop()
	}
	fallback.Warn("file logging unavailable", zap.String("path", cfg.Path), zap.Error(err))
	return fallback
}

func encoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return ec
}
