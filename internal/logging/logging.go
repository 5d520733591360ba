// Package logging builds the application's root structured logger.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Init builds the root logger. When pretty is true it uses a colorized
// console handler suited to a terminal; otherwise it emits JSON lines
// suited to container log collection.
func Init(level string, pretty bool) *slog.Logger {
	lvl := parseLevel(level)

	var handler slog.Handler
	if pretty {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger tagged with a component name, so log lines
// from the scraper, the analyzer, the store, and so on are distinguishable
// without grep'ing for package names.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// OperationTimer tracks the duration and outcome of a unit of work (a
// scrape, an analysis batch, a backfill week) and logs it on completion.
type OperationTimer struct {
	logger    *slog.Logger
	operation string
	start     time.Time
	attrs     []any
}

// StartOperation begins timing a named operation.
func StartOperation(logger *slog.Logger, operation string, attrs ...any) *OperationTimer {
	logger.Debug("operation started", append([]any{"operation", operation}, attrs...)...)
	return &OperationTimer{logger: logger, operation: operation, start: time.Now(), attrs: attrs}
}

// End logs successful completion with elapsed duration.
func (t *OperationTimer) End(extra ...any) {
	args := append([]any{"operation", t.operation, "duration", time.Since(t.start)}, t.attrs...)
	args = append(args, extra...)
	t.logger.Info("operation completed", args...)
}

// EndWithError logs failed completion with elapsed duration and the error.
func (t *OperationTimer) EndWithError(err error, extra ...any) {
	args := append([]any{"operation", t.operation, "duration", time.Since(t.start), "error", err}, t.attrs...)
	args = append(args, extra...)
	t.logger.Error("operation failed", args...)
}
