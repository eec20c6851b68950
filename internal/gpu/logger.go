package gpu

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// slogger returns the current package logger.
func slogger() *slog.Logger { return loggerPtr.Load() }

// Logger returns the logger shared by the render packages (texture, stage,
// pipeline) so they follow one configuration without import cycles.
func Logger() *slog.Logger { return loggerPtr.Load() }

// SetLogger replaces the shared logger. Nil restores silent logging.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}
