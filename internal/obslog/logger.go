// Package obslog adapts the gateway's prefix-forking Logger interface
// onto a go.uber.org/zap backend, so every component written against
// Logger gets structured, leveled output without knowing zap exists.
package obslog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel orders severity from most to least severe, lower first.
type LogLevel int

const (
	LogLevelUnknown LogLevel = iota
	LogLevelPanic
	LogLevelFatal
	LogLevelError
	LogLevelWarning
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

var logLevelNames = [...]string{
	"unknown", "panic", "fatal", "error", "warning", "info", "debug", "trace",
}

// StringToLogLevel converts a string to a LogLevel, case-insensitively.
func StringToLogLevel(s string) LogLevel {
	for i, name := range logLevelNames {
		if strings.EqualFold(name, s) {
			return LogLevel(i)
		}
	}
	return LogLevelUnknown
}

func (l LogLevel) String() string {
	if l < LogLevelUnknown || l > LogLevelTrace {
		return logLevelNames[LogLevelUnknown]
	}
	return logLevelNames[l]
}

// Logger is the interface every gateway component is written against:
// level-gated logging methods plus Fork for adding a prefix segment.
type Logger interface {
	ILog(args ...interface{})
	ILogf(f string, args ...interface{})
	DLog(args ...interface{})
	DLogf(f string, args ...interface{})
	WLog(args ...interface{})
	WLogf(f string, args ...interface{})
	ELog(args ...interface{})
	ELogf(f string, args ...interface{})
	TLogf(f string, args ...interface{})

	Errorf(f string, args ...interface{}) error
	DLogErrorf(f string, args ...interface{}) error
	ELogErrorf(f string, args ...interface{}) error

	Panic(args ...interface{})
	PanicOnError(err error)

	Prefix() string
	GetLogLevel() LogLevel
	SetLogLevel(LogLevel)

	// Fork returns a new Logger with an additional prefix segment.
	Fork(prefix string, args ...interface{}) Logger
}

// zapLogger is the concrete backend. It wraps a *zap.SugaredLogger so
// output is structured (leveled, JSON-able) while keeping the same
// prefix-forking, level-gated call surface the rest of the codebase
// expects.
type zapLogger struct {
	sugar    *zap.SugaredLogger
	prefix   string
	logLevel LogLevel
}

var levelToZap = map[LogLevel]zapcore.Level{
	LogLevelError:   zapcore.ErrorLevel,
	LogLevelWarning: zapcore.WarnLevel,
	LogLevelInfo:    zapcore.InfoLevel,
	LogLevelDebug:   zapcore.DebugLevel,
	LogLevelTrace:   zapcore.DebugLevel,
}

// NewProductionLogger builds a Logger backed by a zap production
// (JSON, sampled) core writing to stderr.
func NewProductionLogger(prefix string, logLevel LogLevel) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(minZapLevel(logLevel))
	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return newZapLogger(zl.Sugar(), prefix, logLevel), nil
}

// NewDevelopmentLogger builds a Logger backed by zap's human-readable
// development encoder, useful for `go run`/local debugging.
func NewDevelopmentLogger(prefix string, logLevel LogLevel) (Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(minZapLevel(logLevel))
	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return newZapLogger(zl.Sugar(), prefix, logLevel), nil
}

func minZapLevel(l LogLevel) zapcore.Level {
	if zl, ok := levelToZap[l]; ok {
		return zl
	}
	if l >= LogLevelDebug {
		return zapcore.DebugLevel
	}
	return zapcore.ErrorLevel
}

func newZapLogger(sugar *zap.SugaredLogger, prefix string, logLevel LogLevel) *zapLogger {
	if prefix != "" {
		sugar = sugar.With("component", prefix)
	}
	return &zapLogger{sugar: sugar, prefix: prefix, logLevel: logLevel}
}

func (l *zapLogger) msg(args ...interface{}) string { return fmt.Sprint(args...) }

func (l *zapLogger) ILog(args ...interface{}) {
	if l.logLevel >= LogLevelInfo {
		l.sugar.Info(l.msg(args...))
	}
}
func (l *zapLogger) ILogf(f string, args ...interface{}) {
	if l.logLevel >= LogLevelInfo {
		l.sugar.Infof(f, args...)
	}
}
func (l *zapLogger) DLog(args ...interface{}) {
	if l.logLevel >= LogLevelDebug {
		l.sugar.Debug(l.msg(args...))
	}
}
func (l *zapLogger) DLogf(f string, args ...interface{}) {
	if l.logLevel >= LogLevelDebug {
		l.sugar.Debugf(f, args...)
	}
}
func (l *zapLogger) WLog(args ...interface{}) {
	if l.logLevel >= LogLevelWarning {
		l.sugar.Warn(l.msg(args...))
	}
}
func (l *zapLogger) WLogf(f string, args ...interface{}) {
	if l.logLevel >= LogLevelWarning {
		l.sugar.Warnf(f, args...)
	}
}
func (l *zapLogger) ELog(args ...interface{}) {
	if l.logLevel >= LogLevelError {
		l.sugar.Error(l.msg(args...))
	}
}
func (l *zapLogger) ELogf(f string, args ...interface{}) {
	if l.logLevel >= LogLevelError {
		l.sugar.Errorf(f, args...)
	}
}
func (l *zapLogger) TLogf(f string, args ...interface{}) {
	if l.logLevel >= LogLevelTrace {
		l.sugar.Debugf(f, args...)
	}
}

func (l *zapLogger) Errorf(f string, args ...interface{}) error {
	return errors.New(l.prefixed(fmt.Sprintf(f, args...)))
}
func (l *zapLogger) DLogErrorf(f string, args ...interface{}) error {
	l.DLogf(f, args...)
	return l.Errorf(f, args...)
}
func (l *zapLogger) ELogErrorf(f string, args ...interface{}) error {
	l.ELogf(f, args...)
	return l.Errorf(f, args...)
}

func (l *zapLogger) prefixed(s string) string {
	if l.prefix == "" {
		return s
	}
	return l.prefix + ": " + s
}

func (l *zapLogger) Panic(args ...interface{}) {
	l.sugar.Panic(l.msg(args...))
}
func (l *zapLogger) PanicOnError(err error) {
	if err != nil {
		l.Panic(err)
	}
}

func (l *zapLogger) Prefix() string             { return l.prefix }
func (l *zapLogger) GetLogLevel() LogLevel      { return l.logLevel }
func (l *zapLogger) SetLogLevel(level LogLevel) { l.logLevel = level }

func (l *zapLogger) Fork(prefix string, args ...interface{}) Logger {
	newPrefix := fmt.Sprintf(prefix, args...)
	if l.prefix != "" {
		newPrefix = l.prefix + ": " + newPrefix
	}
	return newZapLogger(l.sugar.Desugar().Sugar(), newPrefix, l.logLevel)
}

// Discard is a Logger that drops everything; used in tests that do not
// care about log output.
func Discard() Logger {
	l, err := NewProductionLogger("discard", LogLevelUnknown)
	if err != nil {
		// zap.NewProductionConfig().Build should never fail with stderr
		// output; fall back to a minimal no-op writer if it somehow does.
		core := zapcore.NewNopCore()
		return newZapLogger(zap.New(core).Sugar(), "discard", LogLevelUnknown)
	}
	_ = os.Stderr
	return l
}
