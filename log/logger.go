// Package log provides per-module structured logging for the platform.
//
// Every package constructs its own named logger at init time, mirroring
// a one-logger-per-module pattern (log.NewModuleLogger(name)), backed
// here by go.uber.org/zap.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.SugaredLogger scoped to a single module name.
type Logger struct {
	module string
	sugar  *zap.SugaredLogger
}

var base *zap.Logger

func init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewNop()
	}
	base = l
}

// New returns a Logger scoped to module.
func New(module string) *Logger {
	return &Logger{
		module: module,
		sugar:  base.Sugar().With("module", module),
	}
}

// SetDevelopment swaps the process-wide base logger for a human-readable
// console encoder. Call it once from a cmd/ main. New() captures the base
// logger at the moment it runs, so loggers constructed before this call
// (including package-level ones) keep the production encoder.
func SetDevelopment() {
	cfg := zap.NewDevelopmentConfig()
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err == nil {
		base = l
	}
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }

// Crit logs at error level and terminates the process, for unrecoverable
// configuration errors.
func (l *Logger) Crit(msg string, kv ...interface{}) {
	l.sugar.Fatalw(msg, kv...)
}

// Sync flushes any buffered log entries. Call from a deferred cmd/ shutdown.
func Sync() {
	_ = base.Sync()
}
