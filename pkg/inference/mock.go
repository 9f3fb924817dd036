package inference

import (
	"sync"
	"time"

	"github.com/teslashibe/go-maskwatch/pkg/tensor"
)

// Mock implements Engine for testing.
type Mock struct {
	// PredictFunc is called when Predict is invoked with a usable tensor.
	PredictFunc func(t *tensor.Tensor) (Scores, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	// Desc is returned by Descriptor.
	Desc Descriptor

	mu       sync.Mutex
	calls    []MockCall
	last     *tensor.Tensor
	peakLive int
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a mock engine that scores every frame as masked
// (index 0 high).
func NewMock() *Mock {
	return &Mock{
		PredictFunc: func(*tensor.Tensor) (Scores, error) {
			return Scores{0.9, 0.1}, nil
		},
		Desc: DefaultDescriptor(),
	}
}

// WithScores returns a mock that always predicts s.
func WithScores(s Scores) *Mock {
	m := NewMock()
	m.PredictFunc = func(*tensor.Tensor) (Scores, error) { return s, nil }
	return m
}

// WithError returns a mock whose predictions always fail with err.
func WithError(err error) *Mock {
	m := NewMock()
	m.PredictFunc = func(*tensor.Tensor) (Scores, error) {
		return Scores{}, predictErr(BackendMock, err)
	}
	return m
}

// Predict validates t like a real backend, then calls PredictFunc.
func (m *Mock) Predict(t *tensor.Tensor) (Scores, error) {
	m.record("Predict")
	if err := checkInput(BackendMock, t); err != nil {
		return Scores{}, err
	}
	m.trackLive(t)

	if m.PredictFunc == nil {
		return Scores{}, predictErr(BackendMock, ErrInference)
	}
	return m.PredictFunc(t)
}

// trackLive counts t plus the previous tensor if it was never released.
func (m *Mock) trackLive(t *tensor.Tensor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := 1
	if m.last != nil && m.last != t && !m.last.Released() {
		live++
	}
	if live > m.peakLive {
		m.peakLive = live
	}
	m.last = t
}

// PeakLiveTensors returns the most tensors seen alive at one Predict call.
func (m *Mock) PeakLiveTensors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakLive
}

// Descriptor returns Desc.
func (m *Mock) Descriptor() Descriptor {
	return m.Desc
}

// Backend returns BackendMock.
func (m *Mock) Backend() Backend {
	return BackendMock
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// record adds a call to the tracking list.
func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.last = nil
	m.peakLive = 0
}
