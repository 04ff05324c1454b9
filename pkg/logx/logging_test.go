package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "DEBUG").With(String("comp", "reminder"))
	log.Warn("group submit failed", Int("members", 2), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if m["comp"] != "reminder" {
		t.Fatalf("comp = %v, want reminder", m["comp"])
	}
	if m["members"] != float64(2) {
		t.Fatalf("members = %v, want 2", m["members"])
	}
	if m["level"] != "warn" {
		t.Fatalf("level = %v, want warn", m["level"])
	}
}

func TestWriterLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "WARN")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatalf("debug should be disabled at WARN")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	log.Error("nothing happens")
	Nop().With(String("k", "v")).Info("still nothing")
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"", "info", "WARNING", "trace"} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("loud") {
		t.Fatalf("ValidLevel(loud) = true")
	}
}

func TestServiceFileSinkFollowsApply(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.log")
	svc, log := New(Config{Level: "INFO", File: FileConfig{Enabled: true, Path: first}})
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("one")
	second := filepath.Join(dir, "b.log")
	svc.Apply(Config{Level: "INFO", File: FileConfig{Enabled: true, Path: second}})
	log.Info("two")

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read %s: %v", first, err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("read %s: %v", second, err)
	}
	if !strings.Contains(string(a), `"one"`) || strings.Contains(string(a), `"two"`) {
		t.Fatalf("first file = %q", a)
	}
	if !strings.Contains(string(b), `"two"`) {
		t.Fatalf("second file = %q", b)
	}
}
