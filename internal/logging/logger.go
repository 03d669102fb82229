// Package logging provides the structured logger shared by every package
// in collabedit.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	once   sync.Once
)

// Init builds the global logger for the given environment ("production"
// or anything else, treated as development). Safe to call more than
// once; only the first call takes effect.
func Init(env string) {
	once.Do(func() {
		var cfg zap.Config
		if env == "production" {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "ts"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		} else {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		built, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			built = zap.NewNop()
		}

		logger = built
		sugar = built.Sugar()
	})
}

// L returns the global structured logger, initializing it with development
// defaults if Init was never called.
func L() *zap.Logger {
	if logger == nil {
		Init("development")
	}
	return logger
}

// S returns the global sugared (printf-style) logger.
func S() *zap.SugaredLogger {
	if sugar == nil {
		Init("development")
	}
	return sugar
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// WithDocument returns a logger tagged with documentId, the field every
// per-document log line in internal/editor and internal/sync carries.
func WithDocument(documentID string) *zap.Logger {
	return L().With(zap.String("documentId", documentID))
}
