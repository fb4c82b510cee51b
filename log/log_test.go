// log/log_test.go
// Copyright(c) 2022-2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNilLogger(t *testing.T) {
	var l *Logger
	// None of these should panic.
	l.Debug("debug", slog.Int("x", 1))
	l.Debugf("debug %d", 1)
	l.Info("info")
	l.Infof("info %d", 2)
	if l.With("k", "v") != nil {
		t.Errorf("With on nil logger returned non-nil")
	}
	if l.Elapsed() != 0 {
		t.Errorf("Elapsed on nil logger should be zero")
	}
}

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	} {
		t.Run(tc.in, func(t *testing.T) {
			lvl, err := ParseLevel(tc.in)
			if (err == nil) != tc.ok {
				t.Fatalf("ParseLevel(%q) error = %v", tc.in, err)
			}
			if lvl != tc.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, lvl, tc.want)
			}
		})
	}
}

func TestWarnIncludesCallstack(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, slog.LevelInfo)
	l.Debug("dropped")
	l.Warn("masked level", slog.Int("level", 3))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d: %q", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["msg"] != "masked level" {
		t.Errorf("msg = %v", rec["msg"])
	}
	cs, ok := rec["callstack"].([]any)
	if !ok || len(cs) == 0 {
		t.Fatalf("expected non-empty callstack, got %v", rec["callstack"])
	}
	// The innermost frame is the caller, not a Logger method.
	if f, _ := cs[0].(string); !strings.HasPrefix(f, "log_test.go:") ||
		!strings.HasSuffix(f, ":log.TestWarnIncludesCallstack") {
		t.Errorf("innermost frame %q", cs[0])
	}
}

func TestCallstack(t *testing.T) {
	fr := Callstack(nil)
	if len(fr) != 1 {
		t.Fatalf("expected just the test function, got %v", fr)
	}
	if f := fr[0]; f.File != "log_test.go" || f.Line == 0 || f.Function != "log.TestCallstack" {
		t.Errorf("frame %+v", f)
	}

	// Frames inside the Logger methods are skipped at any depth, and
	// the stack stops at the goroutine's entry point.
	done := make(chan Stack)
	go func() {
		done <- nestedCallstack(3)
	}()
	fr = <-done
	if len(fr) != 4 {
		t.Fatalf("goroutine stack %v: expected 4 frames", fr)
	}
	for _, f := range fr[:3] {
		if f.Function != "log.nestedCallstack" {
			t.Errorf("frame %v: expected nestedCallstack", f)
		}
	}

	buf := make([]StackFrame, 0, 8)
	if fr = Callstack(buf); &fr[0] != &buf[:1][0] {
		t.Errorf("buffer with enough capacity was not reused")
	}
}

func nestedCallstack(depth int) Stack {
	if depth == 1 {
		return Callstack(nil)
	}
	return nestedCallstack(depth - 1)
}

func TestStackLogValue(t *testing.T) {
	s := Stack{{File: "a.go", Line: 3, Function: "budget.New"}, {File: "b.go", Line: 12, Function: "run"}}
	v := s.LogValue().Any().([]string)
	if len(v) != 2 || v[0] != "a.go:3:budget.New" || v[1] != "b.go:12:run" {
		t.Errorf("LogValue = %v", v)
	}
}
