package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// These tests swap the global logger, so they must not run in parallel.

func TestComponentTagsSubsystem(t *testing.T) {
	prev := log.Logger
	defer func() { log.Logger = prev }()

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	l := Component("archive")
	l.Info().Msg("saved")

	out := buf.String()
	if !strings.Contains(out, `"component":"archive"`) {
		t.Fatalf("component field missing: %s", out)
	}
	if !strings.Contains(out, "saved") {
		t.Fatalf("message missing: %s", out)
	}
}

func TestInitSetsLevelAndService(t *testing.T) {
	prev := log.Logger
	defer func() { log.Logger = prev }()

	Init(Config{Debug: true, Service: "carbot"})
	if log.Logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("debug config got level %s", log.Logger.GetLevel())
	}

	Init(Config{Service: "carbot"})
	if log.Logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("default config got level %s", log.Logger.GetLevel())
	}
}
