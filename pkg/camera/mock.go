package camera

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockSource implements Source for testing.
// It counts calls and tracks how many of its frames are alive at once.
type MockSource struct {
	// FrameFunc builds the frame for the n-th call (1-based). It may return
	// an error instead, which NextFrame passes through.
	FrameFunc func(n int64) (*Frame, error)

	cfg Config

	calls    atomic.Int64
	live     atomic.Int64
	peakLive atomic.Int64
	closed   atomic.Bool

	mu       sync.Mutex
	released []uint64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithFrameFunc replaces the default frame generator.
func WithFrameFunc(fn func(n int64) (*Frame, error)) MockSourceOption {
	return func(m *MockSource) { m.FrameFunc = fn }
}

// WithFailAt makes call n fail with err; other calls produce frames.
func WithFailAt(n int64, err error) MockSourceOption {
	return func(m *MockSource) {
		next := m.FrameFunc
		m.FrameFunc = func(i int64) (*Frame, error) {
			if i == n {
				return nil, err
			}
			return next(i)
		}
	}
}

// NewMockSource creates a mock that yields mid-gray frames of cfg's size.
func NewMockSource(cfg Config, opts ...MockSourceOption) *MockSource {
	m := &MockSource{cfg: cfg}
	m.FrameFunc = func(int64) (*Frame, error) {
		return SolidFrame(cfg.Width, cfg.Height, 128, 128, 128), nil
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SolidFrame returns a frame filled with one color.
func SolidFrame(width, height int, r, g, b uint8) *Frame {
	pix := make([]uint8, width*height*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = r, g, b
	}
	return NewFrame(width, height, pix, nil)
}

// NextFrame calls FrameFunc and records the call.
func (m *MockSource) NextFrame(ctx context.Context) (*Frame, error) {
	if m.closed.Load() {
		return nil, ErrSourceUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := m.calls.Add(1)
	f, err := m.FrameFunc(n)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrSourceUnavailable
	}

	f.Seq = uint64(n)
	inner := f.release
	f.release = func() {
		m.live.Add(-1)
		m.mu.Lock()
		m.released = append(m.released, f.Seq)
		m.mu.Unlock()
		if inner != nil {
			inner()
		}
	}

	live := m.live.Add(1)
	for {
		peak := m.peakLive.Load()
		if live <= peak || m.peakLive.CompareAndSwap(peak, live) {
			break
		}
	}
	return f, nil
}

// Calls returns how many times NextFrame reached FrameFunc.
func (m *MockSource) Calls() int64 {
	return m.calls.Load()
}

// Live returns the number of frames handed out and not yet released.
func (m *MockSource) Live() int64 {
	return m.live.Load()
}

// PeakLive returns the highest number of simultaneously live frames.
func (m *MockSource) PeakLive() int64 {
	return m.peakLive.Load()
}

// Released returns the sequence numbers of released frames, in order.
func (m *MockSource) Released() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, len(m.released))
	copy(out, m.released)
	return out
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close makes further NextFrame calls fail with ErrSourceUnavailable.
func (m *MockSource) Close() error {
	m.closed.Store(true)
	return nil
}
