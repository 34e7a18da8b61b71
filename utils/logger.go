package utils

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// InitLogger builds the process-wide logger. Output goes to stdout and
// a log file; errors additionally land in a separate file so a relay
// or RPC failure is findable without grepping the full stream. Safe to
// call more than once; only the first call's debug flag takes effect.
func InitLogger(debug bool) *zap.Logger {
	loggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		if debug {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}

		cfg.OutputPaths = []string{"stdout", "arbbot.log"}
		cfg.ErrorOutputPaths = []string{"stderr", "arbbot-error.log"}

		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.StacktraceKey = "stacktrace"

		built, err := cfg.Build(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
		if err != nil {
			panic(err)
		}
		logger = built
	})
	return logger
}

// GetLogger returns the process-wide logger, initializing it at info
// level if InitLogger has not run.
func GetLogger() *zap.Logger {
	if logger == nil {
		return InitLogger(false)
	}
	return logger
}

// CleanupLogger flushes buffered entries. Call before exit.
func CleanupLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}
