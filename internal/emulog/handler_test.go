package emulog

import (
	"log/slog"
	"strings"
	"testing"
)

func TestHandlerWritesFixedFormatLine(t *testing.T) {
	var buf strings.Builder
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false)
	logger := slog.New(h)
	logger.Info("bus attached", "target", "simple")

	out := buf.String()
	if !strings.Contains(out, "INFO:") || !strings.Contains(out, "bus attached") {
		t.Errorf("unexpected log line: %q", out)
	}
}

func TestHandlerDebugMirrorsToStderrFlag(t *testing.T) {
	var buf strings.Builder
	h := NewHandler(&buf, nil, false)
	h.SetDebug(true)
	if !h.debug {
		t.Error("SetDebug(true) did not take effect")
	}
}

func TestDumpDeviceIncludesDump(t *testing.T) {
	var buf strings.Builder
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	logger := slog.New(h)
	type state struct{ Counter int }
	DumpDevice(logger, "timer0", state{Counter: 7})
	if !strings.Contains(buf.String(), "Counter") {
		t.Errorf("expected spew dump to mention field name, got %q", buf.String())
	}
}
