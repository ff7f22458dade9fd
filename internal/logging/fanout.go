package logging

import (
	"context"
	"errors"
	"log/slog"
)

// Fanout sends each record to every handler that accepts its level.
// Nil handlers are skipped; with none left the records are discarded.
func Fanout(handlers ...slog.Handler) slog.Handler {
	sinks := make(fanout, 0, len(handlers))
	for _, handler := range handlers {
		if handler != nil {
			sinks = append(sinks, handler)
		}
	}
	switch len(sinks) {
	case 0:
		return slog.DiscardHandler
	case 1:
		return sinks[0]
	default:
		return sinks
	}
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs error
	for _, handler := range f {
		if handler.Enabled(ctx, record.Level) {
			errs = errors.Join(errs, handler.Handle(ctx, record.Clone()))
		}
	}
	return errs
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(derive func(slog.Handler) slog.Handler) fanout {
	next := make(fanout, len(f))
	for i, handler := range f {
		next[i] = derive(handler)
	}
	return next
}
