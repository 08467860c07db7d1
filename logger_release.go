//go:build !fmq_debug

package fmq

import "log/slog"

// SetLogger is a no-op in release builds; the signature matches the debug
// build so callers don't need a build-tag switch of their own.
func SetLogger(l *slog.Logger) {}

// logKind is a no-op in release mode. The compiler inlines and removes it.
func logKind(op string, k Kind, args ...any) {}
