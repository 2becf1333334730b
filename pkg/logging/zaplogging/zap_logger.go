package zaplogging

import (
	"fmt"
	"strings"

	"github.com/core-tools/hsu-procmaster/pkg/logging"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a zap sugared logger to the logging.LogFuncs shape
type ZapLogger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// ParseLevel maps a config log level string onto a zap level
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %q", level)
	}
}

// NewZapLogger builds a console-encoded zap logger writing to stderr
func NewZapLogger(level string) (*ZapLogger, error) {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	atomicLevel := zap.NewAtomicLevelAt(zapLevel)

	config := zap.NewProductionConfig()
	config.Level = atomicLevel
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.DisableStacktrace = true
	config.Sampling = nil

	base, err := config.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, err
	}

	return &ZapLogger{
		sugar: base.Sugar(),
		level: atomicLevel,
	}, nil
}

// NewZapLoggerWithCore is used by tests to capture output with an observer core
func NewZapLoggerWithCore(core zapcore.Core) *ZapLogger {
	return &ZapLogger{
		sugar: zap.New(core).Sugar(),
		level: zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

func (z *ZapLogger) SetLevel(level string) error {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return err
	}
	z.level.SetLevel(zapLevel)
	return nil
}

func (z *ZapLogger) LogLevelf(level int, format string, args ...interface{}) {
	switch level {
	case logging.DebugLevel:
		z.sugar.Debugf(format, args...)
	case logging.WarnLevel:
		z.sugar.Warnf(format, args...)
	case logging.ErrorLevel:
		z.sugar.Errorf(format, args...)
	default:
		z.sugar.Infof(format, args...)
	}
}

func (z *ZapLogger) Debugf(format string, args ...interface{}) { z.sugar.Debugf(format, args...) }
func (z *ZapLogger) Infof(format string, args ...interface{})  { z.sugar.Infof(format, args...) }
func (z *ZapLogger) Warnf(format string, args ...interface{})  { z.sugar.Warnf(format, args...) }
func (z *ZapLogger) Errorf(format string, args ...interface{}) { z.sugar.Errorf(format, args...) }

func (z *ZapLogger) LogFuncs() logging.LogFuncs {
	return logging.LogFuncs{
		LogLevelf: z.LogLevelf,
		Debugf:    z.Debugf,
		Infof:     z.Infof,
		Warnf:     z.Warnf,
		Errorf:    z.Errorf,
	}
}

// Sync flushes buffered entries; call on shutdown
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}
