package utils

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

type fakePoster struct {
	tags     []string
	messages []map[string]interface{}
}

func (f *fakePoster) Post(tag string, message interface{}) error {
	f.tags = append(f.tags, tag)
	f.messages = append(f.messages, message.(map[string]interface{}))
	return nil
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"", slog.LevelInfo, true},
		{"loud", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseLevel(%q) = %v,%v; want %v,%v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithOptions(LoggerOptions{Writer: &buf, Level: slog.LevelWarn, NoColor: true})

	l.Info("[test] hidden %d", 1)
	l.Warn("[test] shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "[test] shown 2") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestLoggerFansOutToExtraHandlers(t *testing.T) {
	fake := &fakePoster{}
	l := NewLoggerWithOptions(LoggerOptions{
		Writer:  &bytes.Buffer{},
		NoColor: true,
		Extra:   []slog.Handler{newFluentHandler(fake, slog.LevelInfo)},
	})

	l.With("run_id", "abc").Info("[merger] merged %d listings", 7)
	l.Debug("[merger] not shipped")

	if len(fake.messages) != 1 {
		t.Fatalf("expected 1 shipped record, got %d", len(fake.messages))
	}
	msg := fake.messages[0]
	if fake.tags[0] != "info" {
		t.Errorf("tag: got %q, want info", fake.tags[0])
	}
	if msg["message"] != "[merger] merged 7 listings" {
		t.Errorf("message: got %v", msg["message"])
	}
	if msg["run_id"] != "abc" {
		t.Errorf("run_id attr: got %v", msg["run_id"])
	}
}
