// Package logctx carries a zerolog logger in a context.Context.
//
// Commands attach a logger tagged with the command and input; the packages
// they call pull it back out so every record of one operation shares those
// fields:
//
//	ctx = logctx.WithStr(ctx, "input", uri)
//	log := logctx.FromContext(ctx)
package logctx

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eunmann/exocdf/pkg/logging"
)

type loggerKey struct{}

// WithLogger returns a context carrying logger. A nil ctx is treated as
// context.Background().
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger carried by ctx, or the process logger when
// there is none.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return logger
		}
	}
	return *logging.L()
}

// WithStr returns a context whose logger has a string field added.
func WithStr(ctx context.Context, key, value string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Str(key, value).Logger())
}

// WithInt returns a context whose logger has an int field added.
func WithInt(ctx context.Context, key string, value int) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Int(key, value).Logger())
}

// WithComponent returns a context whose logger is tagged with a component
// name, matching logging.WithComponent.
func WithComponent(ctx context.Context, component string) context.Context {
	return WithStr(ctx, "component", component)
}
