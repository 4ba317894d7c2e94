package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter("warn", &buf)
	defer func() { Log = nil }()

	Info("hidden_event")
	Warn("visible_event", "conn", "c1")

	out := buf.String()
	if strings.Contains(out, "hidden_event") {
		t.Fatalf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "visible_event") || !strings.Contains(out, "conn=c1") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	Log = nil
	Debug("a")
	Info("b")
	Warn("c")
	Error("d")
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	Init("info", "file:"+path)
	Info("file_sink_event")
	Sync()
	Log = nil

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "file_sink_event") {
		t.Fatalf("expected event in file sink, got %q", string(b))
	}
}
