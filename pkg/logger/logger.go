package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// New builds the process logger and installs it as the slog default.
func New(level, format string) *slog.Logger {
	return newWithWriter(os.Stdout, level, format)
}

func newWithWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFromString(level)}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

const defaultFlushDelay = 2 * time.Second

// Deduplicator folds identical consecutive messages into one line with a
// repeat count. Each instance holds its own state.
type Deduplicator struct {
	d *deduplicator
}

// NewDeduplicator emits folded lines through emit, or slog.Info when nil.
func NewDeduplicator(emit func(msg string)) *Deduplicator {
	return &Deduplicator{d: &deduplicator{flushDelay: defaultFlushDelay, emit: emit}}
}

func (x *Deduplicator) Logf(format string, args ...any) {
	x.d.add(fmt.Sprintf(format, args...))
}

// Flush writes out any message still held back.
func (x *Deduplicator) Flush() {
	x.d.stopAndFlush()
}

type deduplicator struct {
	mu         sync.Mutex
	lastMsg    string
	count      int
	flushDelay time.Duration
	timer      *time.Timer
	emit       func(msg string)
}

func (d *deduplicator) flush() {
	if d.count == 0 {
		return
	}
	emit := d.emit
	if emit == nil {
		emit = func(msg string) { slog.Info(msg) }
	}
	if d.count == 1 {
		emit(d.lastMsg)
	} else {
		emit(fmt.Sprintf("%s (%d)", d.lastMsg, d.count))
	}
	d.count = 0
	d.lastMsg = ""
}

func (d *deduplicator) stopAndFlush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.flush()
}

func (d *deduplicator) schedule() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.flushDelay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.flush()
	})
}

func (d *deduplicator) add(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if msg == d.lastMsg {
		d.count++
		d.schedule()
		return
	}

	d.flush()
	d.lastMsg = msg
	d.count = 1
	d.schedule()
}
