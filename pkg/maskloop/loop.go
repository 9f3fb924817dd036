// Package maskloop runs the per-frame classification loop: pull a frame,
// preprocess it, run the model, decide, publish, wait for the next slot.
package maskloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-maskwatch/pkg/camera"
	"github.com/teslashibe/go-maskwatch/pkg/decision"
	"github.com/teslashibe/go-maskwatch/pkg/inference"
	"github.com/teslashibe/go-maskwatch/pkg/tensor"
)

var (
	// ErrLoopAlreadyCancelled is returned by Start on a cancelled loop.
	ErrLoopAlreadyCancelled = errors.New("maskloop: loop already cancelled")

	// ErrLoopRunning is returned by Start on a running loop.
	ErrLoopRunning = errors.New("maskloop: loop already running")
)

// Status is the loop lifecycle state.
type Status int

const (
	Idle Status = iota
	Running
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Processor turns a frame into a model input tensor.
type Processor interface {
	Process(frame *camera.Frame) (*tensor.Tensor, error)
}

// Config tunes the loop.
type Config struct {
	// Mapping assigns model outputs to classes.
	Mapping decision.Mapping

	// Pacer schedules iterations. Nil means Immediate.
	Pacer Pacer

	// ID names the loop in snapshots and logs. Empty generates a UUID.
	ID string
}

// Deps are the collaborators the loop drives. Engine must already be loaded.
type Deps struct {
	Source       camera.Source
	Preprocessor Processor
	Engine       inference.Engine

	// Sink receives every snapshot. Optional; the loop keeps its own Board.
	Sink Sink

	Logger *slog.Logger
}

// Loop is the handle for one classification loop. Idle -> Running ->
// Cancelled; Cancelled is terminal.
type Loop struct {
	id     string
	cfg    Config
	deps   Deps
	logger *slog.Logger
	board  *Board
	stats  Stats

	mu     sync.Mutex // Guards status, err and cancel
	status Status
	err    error
	cancel context.CancelFunc

	cancelled  atomic.Bool
	publishMu  sync.Mutex  // Held while a snapshot is being published
	delivering atomic.Bool // Set while Sink.Publish runs on the loop goroutine

	done     chan struct{}
	doneOnce sync.Once
}

// New creates an idle loop.
func New(cfg Config, deps Deps) (*Loop, error) {
	if deps.Source == nil {
		return nil, errors.New("maskloop: source is required")
	}
	if deps.Preprocessor == nil {
		return nil, errors.New("maskloop: preprocessor is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("maskloop: engine is required")
	}
	if err := cfg.Mapping.Validate(); err != nil {
		return nil, err
	}
	if cfg.Pacer == nil {
		cfg.Pacer = Immediate
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		id:     cfg.ID,
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "maskloop", "loop_id", cfg.ID),
		board:  NewBoard(),
		done:   make(chan struct{}),
	}, nil
}

// ID returns the loop identifier.
func (l *Loop) ID() string {
	return l.id
}

// Start launches the iteration goroutine. The loop stops when Cancel is
// called, ctx is done, or the source becomes unavailable.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.status {
	case Cancelled:
		return ErrLoopAlreadyCancelled
	case Running:
		return ErrLoopRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.status = Running

	l.logger.Info("loop started",
		"source", l.deps.Source.Name(),
		"backend", l.deps.Engine.Backend(),
		"mask_index", l.cfg.Mapping.MaskIndex,
	)

	go l.run(runCtx)
	return nil
}

// Cancel stops the loop. Once Cancel returns no further snapshot is
// committed or handed to the sink; a frame already in flight is released
// without being classified. When a sink delivery is already under way
// (including a sink calling Cancel itself) Cancel does not wait for it.
func (l *Loop) Cancel() {
	l.cancelled.Store(true)

	l.mu.Lock()
	prev := l.status
	l.status = Cancelled
	if l.cancel != nil {
		l.cancel()
	}
	l.mu.Unlock()

	if prev == Idle {
		l.closeDone()
	}

	// Wait out a publication that passed the cancelled check but has not
	// reached the sink yet.
	if !l.delivering.Load() {
		l.publishMu.Lock()
		l.publishMu.Unlock()
	}

	if prev == Running {
		l.logger.Debug("loop cancel requested")
	}
}

// IsCancelled reports whether the loop was cancelled or stopped.
func (l *Loop) IsCancelled() bool {
	return l.cancelled.Load()
}

// Status returns the lifecycle state.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Done is closed when the loop goroutine exited (or, for a loop cancelled
// before Start, when Cancel was called).
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Err returns the fatal error that stopped the loop, if any.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Latest returns the most recent snapshot.
func (l *Loop) Latest() Snapshot {
	s := l.board.Load()
	if s.LoopID == "" {
		s.LoopID = l.id
	}
	return s
}

// Stats returns the loop counters.
func (l *Loop) Stats() StatsSnapshot {
	return l.stats.Snapshot()
}

func (l *Loop) run(ctx context.Context) {
	defer l.finish()

	var seq uint64
	for {
		// Checked before a new frame is requested.
		if l.cancelled.Load() || ctx.Err() != nil {
			return
		}

		seq++
		if err := l.iterate(ctx, seq); err != nil {
			l.fail(err)
			return
		}

		if l.cancelled.Load() {
			return
		}
		if err := l.cfg.Pacer.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				l.logger.Warn("pacer stopped", "error", err)
			}
			return
		}
	}
}

// iterate runs one frame through the pipeline. Only a fatal source error is
// returned; everything else is published as Unknown.
func (l *Loop) iterate(ctx context.Context, seq uint64) error {
	start := time.Now()

	frame, err := l.deps.Source.NextFrame(ctx)
	if err != nil {
		if errors.Is(err, camera.ErrSourceUnavailable) {
			l.publishUnknown(seq, start, err)
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		l.stats.frameErrors.Add(1)
		l.logger.Debug("frame read failed", "seq", seq, "error", err)
		l.publishUnknown(seq, start, err)
		return nil
	}
	defer frame.Release()

	if l.cancelled.Load() {
		return nil
	}

	input, err := l.deps.Preprocessor.Process(frame)
	if err != nil {
		l.stats.preprocessErrs.Add(1)
		l.logger.Debug("preprocess failed", "seq", seq, "error", err)
		l.publishUnknown(seq, start, err)
		return nil
	}
	defer input.Release()

	if l.cancelled.Load() {
		return nil
	}

	raw, err := l.deps.Engine.Predict(input)
	if err != nil {
		l.stats.inferenceErrors.Add(1)
		l.logger.Debug("inference failed", "seq", seq, "error", err)
		l.publishUnknown(seq, start, err)
		return nil
	}

	scores := l.cfg.Mapping.Apply(raw)
	l.publish(Snapshot{
		Seq:     seq,
		State:   decision.Decide(&scores),
		Scores:  &scores,
		Latency: time.Since(start),
	})
	return nil
}

func (l *Loop) publishUnknown(seq uint64, start time.Time, err error) {
	l.publish(Snapshot{
		Seq:     seq,
		State:   decision.Unknown,
		Err:     err.Error(),
		Latency: time.Since(start),
	})
}

// publish stores s unless the loop was cancelled. Cancel waits on
// publishMu until the snapshot is committed, so a publication is either
// committed before Cancel returns or never happens.
func (l *Loop) publish(s Snapshot) {
	l.publishMu.Lock()
	defer l.publishMu.Unlock()

	if l.cancelled.Load() {
		return
	}

	s.LoopID = l.id
	s.At = time.Now()
	l.board.Publish(s)
	l.stats.record(s.State, s.Latency)
	if l.deps.Sink != nil {
		l.delivering.Store(true)
		defer l.delivering.Store(false)
		l.deps.Sink.Publish(s)
	}
}

func (l *Loop) fail(err error) {
	l.cancelled.Store(true)

	l.mu.Lock()
	l.err = err
	l.status = Cancelled
	if l.cancel != nil {
		l.cancel()
	}
	l.mu.Unlock()

	l.logger.Error("loop stopped: frame source unavailable", "error", err)
}

func (l *Loop) finish() {
	l.cancelled.Store(true)

	l.mu.Lock()
	l.status = Cancelled
	if l.cancel != nil {
		l.cancel()
	}
	l.mu.Unlock()

	st := l.stats.Snapshot()
	l.logger.Info("loop stopped",
		"iterations", st.Iterations,
		"masked", st.Masked,
		"unmasked", st.Unmasked,
		"unknown", st.Unknown,
	)
	l.closeDone()
}

func (l *Loop) closeDone() {
	l.doneOnce.Do(func() { close(l.done) })
}
