//go:build fmq_debug

package fmq

import (
	"log/slog"
	"os"
)

var defaultLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

// SetLogger sets the logger used for diagnostic messages (region mapping,
// descriptor validation failures, overflow/timeout events). Not called by
// the fast path — only debug builds log anything.
func SetLogger(l *slog.Logger) {
	defaultLogger = l
}

// logKind logs a diagnostic Kind (see errors.go) with its context.
func logKind(op string, k Kind, args ...any) {
	defaultLogger.Debug(op, append([]any{"kind", k.String()}, args...)...)
}
