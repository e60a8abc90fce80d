package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	loggers  sync.Map // map[string]*slog.Logger
	handlers sync.Map // map[string]*subsystemHandler

	globalLogger     *slog.Logger
	globalLoggerOnce sync.Once
)

// Logger returns the cached *slog.Logger for subsystem, creating it on
// first use from the current YMXSTREAM_LOG_LEVEL configuration.
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	level := cfg.LevelForSubsystem(subsystem)

	handler := newHandler(subsystem, level, cfg.Format)
	l := slog.New(handler)

	actual, _ := loggers.LoadOrStore(subsystem, l)
	if h, ok := handler.(*subsystemHandler); ok {
		handlers.Store(subsystem, h)
	}
	return actual.(*slog.Logger)
}

// GlobalLogger returns the module-wide default logger.
func GlobalLogger() *slog.Logger {
	globalLoggerOnce.Do(func() {
		globalLogger = Logger("yamux-stream")
	})
	return globalLogger
}

// SetLevel changes the level of an already-created subsystem logger.
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).SetLevel(level)
	}
}

// Discard returns a logger that drops everything, for use in tests.
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

// SetOutput redirects every subsystem logger's output. Call before tests
// that assert on log content, or to send logs to a file.
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}
