package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitLevelsAndFormat(t *testing.T) {
	defer Init(Config{})

	var buf bytes.Buffer
	Init(Config{Out: &buf})
	L().Debug().Msg("hidden")
	L().Info().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"message":"shown"`) {
		t.Errorf("info-level JSON output = %q", buf.String())
	}
	if Human() {
		t.Error("Human = true without Config.Human")
	}

	buf.Reset()
	Init(Config{Debug: true, Human: true, Out: &buf})
	log := WithComponent("exodus")
	log.Debug().Msg("defined block")
	out := buf.String()
	if !strings.Contains(out, "defined block") || strings.HasPrefix(out, "{") {
		t.Errorf("debug console output = %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("console output to a buffer is colored: %q", out)
	}
	if !Human() {
		t.Error("Human = false with Config.Human")
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer Init(Config{})

	log := WithComponent("cdf")
	log.Info().Msg("opened file")

	if !bytes.Contains(buf.Bytes(), []byte(`"component":"cdf"`)) {
		t.Errorf("expected component field in output, got: %s", buf.String())
	}
}
