package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestLogger(size int) (*slog.Logger, *Journal, *bytes.Buffer) {
	j := NewJournal(size)
	var buf bytes.Buffer
	next := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewHandler(j, next)), j, &buf
}

func TestHandler_CapturesAndForwards(t *testing.T) {
	logger, j, buf := newTestLogger(10)

	logger.With("component", "feed").WithGroup("ws").Info("Connected", "attempt", 2)

	if !strings.Contains(buf.String(), `"msg":"Connected"`) {
		t.Errorf("Expected record forwarded, got %s", buf.String())
	}
	got := j.Recent(10, slog.LevelDebug)
	if len(got) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.Component != "feed" {
		t.Errorf("Expected component feed, got %q", e.Component)
	}
	if e.Attrs["ws.attempt"] != int64(2) {
		t.Errorf("Expected grouped attr, got %v", e.Attrs)
	}
	if e.Level != "INFO" || e.Message != "Connected" {
		t.Errorf("Unexpected entry %+v", e)
	}
}

func TestHandler_RespectsWrappedLevel(t *testing.T) {
	j := NewJournal(10)
	next := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(NewHandler(j, next))

	logger.Info("dropped")
	logger.Warn("kept")

	if j.Len() != 1 {
		t.Fatalf("Expected 1 entry, got %d", j.Len())
	}
}

func TestJournal_Recent(t *testing.T) {
	logger, j, _ := newTestLogger(3)

	logger.Debug("one")
	logger.Warn("two")
	logger.Info("three")
	logger.Error("four")

	tests := []struct {
		name  string
		n     int
		level slog.Level
		want  []string
	}{
		{"wraps oldest out", 10, slog.LevelDebug, []string{"two", "three", "four"}},
		{"limit keeps newest", 2, slog.LevelDebug, []string{"three", "four"}},
		{"level filter", 10, slog.LevelWarn, []string{"two", "four"}},
		{"zero", 0, slog.LevelDebug, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, e := range j.Recent(tt.n, tt.level) {
				got = append(got, e.Message)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestJournal_Subscribe(t *testing.T) {
	logger, j, _ := newTestLogger(5)

	ch := j.Subscribe()
	logger.Info("hello")

	select {
	case e := <-ch:
		if e.Message != "hello" {
			t.Errorf("Expected hello, got %q", e.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for entry")
	}

	j.Unsubscribe(ch)
	j.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("Expected closed channel")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
