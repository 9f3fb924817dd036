package maskloop

import (
	"log/slog"
	"sync"

	"github.com/teslashibe/go-maskwatch/pkg/decision"
)

// Sink observes published snapshots. Publish runs on the loop goroutine and
// must return quickly. It may call Loop.Cancel; the snapshot it is handling
// is then the last one.
type Sink interface {
	Publish(s Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(s Snapshot)

// Publish calls f(s).
func (f SinkFunc) Publish(s Snapshot) {
	f(s)
}

// MultiSink publishes to every sink in order.
type MultiSink []Sink

// Publish fans s out.
func (m MultiSink) Publish(s Snapshot) {
	for _, sink := range m {
		if sink != nil {
			sink.Publish(s)
		}
	}
}

// LogSink logs state transitions, not every frame.
type LogSink struct {
	logger *slog.Logger

	mu      sync.Mutex
	last    decision.State
	started bool
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Publish logs s if its state differs from the previous one.
func (l *LogSink) Publish(s Snapshot) {
	l.mu.Lock()
	changed := !l.started || s.State != l.last
	l.last, l.started = s.State, true
	l.mu.Unlock()

	if !changed {
		return
	}

	attrs := []any{"state", s.State.String(), "label", s.State.Label(), "seq", s.Seq}
	if s.Scores != nil {
		attrs = append(attrs, "mask", s.Scores.Mask, "no_mask", s.Scores.NoMask)
	}
	if s.Err != "" {
		attrs = append(attrs, "error", s.Err)
	}
	l.logger.Info("mask state changed", attrs...)
}
