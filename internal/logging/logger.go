package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/lmittmann/tint"
)

type Options struct {
	Level  slog.Level
	Format string
	// Sentry forwards error records to Sentry when the SDK has been initialised.
	Sentry bool
}

// New builds the application logger writing to out.
func New(out io.Writer, opts Options) *slog.Logger {
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: opts.Level})
	default:
		handler = tint.NewHandler(out, &tint.Options{Level: opts.Level})
	}

	if opts.Sentry {
		handler = Fanout(handler, sentryslog.Option{
			EventLevel: []slog.Level{slog.LevelError},
			LogLevel:   []slog.Level{},
		}.NewSentryHandler(context.Background()))
	}
	return slog.New(handler)
}
