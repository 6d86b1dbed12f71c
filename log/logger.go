// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package log

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

const (
	// LevelTrace is below slog's lowest standard level.
	LevelTrace = slog.Level(-8)
)

var root atomic.Pointer[logger]

func init() {
	root.Store(&logger{slog.New(DiscardHandler())})
}

// Logger is the interface of structured leveled loggers.
type Logger interface {
	// With returns a new Logger that has this logger's attributes plus the given attributes.
	With(ctx ...any) Logger

	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
}

type logger struct {
	inner *slog.Logger
}

func (l *logger) With(ctx ...any) Logger {
	return &logger{l.inner.With(ctx...)}
}

func (l *logger) write(level slog.Level, msg string, ctx ...any) {
	l.inner.Log(context.Background(), level, msg, ctx...)
}

func (l *logger) Trace(msg string, ctx ...any) { l.write(LevelTrace, msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...any) { l.write(slog.LevelDebug, msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.write(slog.LevelInfo, msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.write(slog.LevelWarn, msg, ctx...) }
func (l *logger) Error(msg string, ctx ...any) { l.write(slog.LevelError, msg, ctx...) }

// SetRootHandler sets the handler of the global root logger.
func SetRootHandler(h slog.Handler) {
	root.Store(&logger{slog.New(h)})
}

// WithContext returns a logger attached to the global root logger,
// carrying the given attributes. Typical usage:
//
//	var logger = log.WithContext("pkg", "txpool")
func WithContext(ctx ...any) Logger {
	return &lazyLogger{ctx: ctx}
}

// lazyLogger defers root lookup to call time, so package-scoped loggers
// observe handlers installed after package init.
type lazyLogger struct {
	ctx []any
}

func (l *lazyLogger) resolve() Logger {
	return root.Load().With(l.ctx...)
}

func (l *lazyLogger) With(ctx ...any) Logger {
	return &lazyLogger{ctx: append(append([]any{}, l.ctx...), ctx...)}
}

func (l *lazyLogger) Trace(msg string, ctx ...any) { l.resolve().Trace(msg, ctx...) }
func (l *lazyLogger) Debug(msg string, ctx ...any) { l.resolve().Debug(msg, ctx...) }
func (l *lazyLogger) Info(msg string, ctx ...any)  { l.resolve().Info(msg, ctx...) }
func (l *lazyLogger) Warn(msg string, ctx ...any)  { l.resolve().Warn(msg, ctx...) }
func (l *lazyLogger) Error(msg string, ctx ...any) { l.resolve().Error(msg, ctx...) }

// Trace logs on the root logger at trace level.
func Trace(msg string, ctx ...any) { root.Load().Trace(msg, ctx...) }

// Debug logs on the root logger at debug level.
func Debug(msg string, ctx ...any) { root.Load().Debug(msg, ctx...) }

// Info logs on the root logger at info level.
func Info(msg string, ctx ...any) { root.Load().Info(msg, ctx...) }

// Warn logs on the root logger at warn level.
func Warn(msg string, ctx ...any) { root.Load().Warn(msg, ctx...) }

// Error logs on the root logger at error level.
func Error(msg string, ctx ...any) { root.Load().Error(msg, ctx...) }

// Crit logs on the root logger at error level, then exits the process.
// Reserved for unrecoverable conditions such as storage write failure.
func Crit(msg string, ctx ...any) {
	root.Load().Error(msg, ctx...)
	os.Exit(1)
}
