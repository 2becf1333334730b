package logging

import "fmt"

// Log levels accepted by LogLevelf
const (
	DebugLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

type Logger interface {
	LogLevelf(level int, format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type LogFunc func(format string, args ...interface{})

// LogFuncs is the set of backend functions a Logger forwards to.
// Missing functions are treated as no-ops.
type LogFuncs struct {
	LogLevelf func(level int, format string, args ...interface{})
	Debugf    LogFunc
	Infof     LogFunc
	Warnf     LogFunc
	Errorf    LogFunc
}

func NewLogger(prefix string, funcs LogFuncs) Logger {
	return &logger{
		prefix: prefix,
		funcs:  funcs,
	}
}

// NewNullLogger returns a logger that discards everything
func NewNullLogger() Logger {
	return &logger{}
}

type logger struct {
	prefix string
	funcs  LogFuncs
}

func (l *logger) LogLevelf(level int, format string, args ...interface{}) {
	if l.funcs.LogLevelf != nil {
		l.funcs.LogLevelf(level, l.prefix+format, args...)
		return
	}
	switch level {
	case DebugLevel:
		l.Debugf(format, args...)
	case InfoLevel:
		l.Infof(format, args...)
	case WarnLevel:
		l.Warnf(format, args...)
	case ErrorLevel:
		l.Errorf(format, args...)
	default:
		l.Infof(fmt.Sprintf("[level %d] ", level)+format, args...)
	}
}

func (l *logger) Debugf(format string, args ...interface{}) {
	if l.funcs.Debugf != nil {
		l.funcs.Debugf(l.prefix+format, args...)
	}
}

func (l *logger) Infof(format string, args ...interface{}) {
	if l.funcs.Infof != nil {
		l.funcs.Infof(l.prefix+format, args...)
	}
}

func (l *logger) Warnf(format string, args ...interface{}) {
	if l.funcs.Warnf != nil {
		l.funcs.Warnf(l.prefix+format, args...)
	}
}

func (l *logger) Errorf(format string, args ...interface{}) {
	if l.funcs.Errorf != nil {
		l.funcs.Errorf(l.prefix+format, args...)
	}
}

// WithPrefix wraps an existing logger, prepending prefix to every format string
func WithPrefix(base Logger, prefix string) Logger {
	return NewLogger(prefix, LogFuncs{
		LogLevelf: base.LogLevelf,
		Debugf:    base.Debugf,
		Infof:     base.Infof,
		Warnf:     base.Warnf,
		Errorf:    base.Errorf,
	})
}
