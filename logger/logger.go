// Package logger wraps go.uber.org/zap behind the small facade godm's
// components log through, mirroring forbearing/gst/logger/zap's Logger but
// trimmed to what a data-access core needs: no controller/service context,
// just a With-chainable structured logger plus one named instance per
// subsystem (Database, Cache, Pool).
package logger

import (
	"go.uber.org/zap"
)

// Logger is the logging facade every godm package depends on instead of
// reaching for *zap.Logger directly, so the backing implementation can be
// swapped (e.g. in tests, a zaptest logger) without touching call sites.
type Logger struct {
	z *zap.Logger
}

// New wraps an existing *zap.Logger.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// NewProduction builds a production zap.Logger (JSON, info level) wrapped
// in Logger; it panics if zap's production config fails to build, matching
// zap.Must's own contract.
func NewProduction() *Logger {
	return New(zap.Must(zap.NewProduction()))
}

// NewNop returns a Logger that discards everything, used as the default
// before a caller installs a real one.
func NewNop() *Logger { return New(zap.NewNop()) }

func (l *Logger) With(fields ...zap.Field) *Logger {
	if len(fields) == 0 {
		return l
	}
	return &Logger{z: l.z.With(fields...)}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Named subsystem loggers, mirroring forbearing/gst's logger.Database /
// logger.Cache named-logger convention. Callers replace these at process
// init (e.g. via SetDefault) rather than reaching into the zap.Logger.
var (
	Database = NewNop()
	Cache    = NewNop()
	Pool     = NewNop()
)

// SetDefault installs z as the backing logger for every named subsystem
// logger. Call this once during process init.
func SetDefault(z *zap.Logger) {
	Database = New(z.Named("database"))
	Cache = New(z.Named("cache"))
	Pool = New(z.Named("pool"))
}
