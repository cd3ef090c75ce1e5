package logctx

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eunmann/exocdf/pkg/logging"
)

func TestFromContextFallsBackToProcessLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := *logging.L()
	logging.SetLogger(zerolog.New(&buf))
	t.Cleanup(func() { logging.SetLogger(prev) })

	for name, ctx := range map[string]context.Context{
		"nil":        nil,
		"background": context.Background(),
	} {
		buf.Reset()
		logger := FromContext(ctx)
		logger.Info().Msg("fallback")
		if !strings.Contains(buf.String(), "fallback") {
			t.Errorf("%s context: process logger not used, got %q", name, buf.String())
		}
	}
}

func TestWithLoggerAndFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf).With().Str("custom", "field").Logger())

	logger := FromContext(ctx)
	logger.Info().Msg("test")

	if !strings.Contains(buf.String(), `"custom":"field"`) {
		t.Errorf("expected custom field in output, got: %s", buf.String())
	}
}

func TestWithLoggerNilContext(t *testing.T) {
	var buf bytes.Buffer
	//nolint:staticcheck // SA1012
	ctx := WithLogger(nil, zerolog.New(&buf))
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	logger := FromContext(ctx)
	logger.Info().Msg("test")
	if buf.Len() == 0 {
		t.Error("expected logger to produce output")
	}
}

func TestChainedFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))
	ctx = WithComponent(ctx, "cli")
	ctx = WithStr(ctx, "input", "mesh.exo")
	ctx = WithInt(ctx, "step", 5)

	logger := FromContext(ctx)
	logger.Info().Msg("test")

	out := buf.String()
	for _, want := range []string{`"component":"cli"`, `"input":"mesh.exo"`, `"step":5`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %s missing %s", out, want)
		}
	}
}
