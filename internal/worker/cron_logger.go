package worker

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// slogCronLogger adapts *slog.Logger to cron.Logger so SkipIfStillRunning's
// skip notifications flow through the same structured logger as the rest of
// the worker.
type slogCronLogger struct {
	logger *slog.Logger
}

func cronLoggerFromSlog(logger *slog.Logger) cron.Logger {
	return slogCronLogger{logger: logger}
}

func (l slogCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{"error", err}, keysAndValues...)
	l.logger.Error(msg, args...)
}
