package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestDedupFoldsRepeats(t *testing.T) {
	var got []string
	d := &deduplicator{
		flushDelay: time.Hour,
		emit:       func(msg string) { got = append(got, msg) },
	}

	d.add("incomplete listing from sellpy")
	d.add("incomplete listing from sellpy")
	d.add("incomplete listing from sellpy")
	d.add("search term failed")

	d.mu.Lock()
	d.timer.Stop()
	d.flush()
	d.mu.Unlock()

	want := []string{"incomplete listing from sellpy (3)", "search term failed"}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewHonoursLevelAndFormat(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	l := newWithWriter(&buf, "warn", "json")

	l.Info("hidden")
	l.Warn("shown", "source", "vinted")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"source":"vinted"`) {
		t.Errorf("expected json output with attributes, got %s", out)
	}
}

func TestDeduplicatorsAreIndependent(t *testing.T) {
	var a, b []string
	da := NewDeduplicator(func(msg string) { a = append(a, msg) })
	db := NewDeduplicator(func(msg string) { b = append(b, msg) })

	da.Logf("incomplete listing from %s", "sellpy")
	db.Logf("incomplete listing from %s", "vinted")
	da.Logf("incomplete listing from %s", "sellpy")
	db.Flush()
	da.Flush()

	if len(a) != 1 || a[0] != "incomplete listing from sellpy (2)" {
		t.Errorf("sellpy lines = %v", a)
	}
	if len(b) != 1 || b[0] != "incomplete listing from vinted" {
		t.Errorf("vinted lines = %v", b)
	}
}
