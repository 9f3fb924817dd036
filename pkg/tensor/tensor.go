// Package tensor provides the fixed-shape float32 tensor handed from the
// preprocessor to the inference engine.
package tensor

import (
	"fmt"
	"sync"
)

// Model input geometry.
const (
	Batch    = 1
	Height   = 224
	Width    = 224
	Channels = 3
)

// Shape is a 4-dimensional NHWC shape.
type Shape [4]int

// InputShape is the only shape the pipeline produces: [1,224,224,3].
var InputShape = Shape{Batch, Height, Width, Channels}

// Len returns the number of elements.
func (s Shape) Len() int {
	return s[0] * s[1] * s[2] * s[3]
}

func (s Shape) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", s[0], s[1], s[2], s[3])
}

// Tensor is a dense NHWC float32 array.
// It is owned by exactly one pipeline stage at a time and must be released
// once consumed. Release drops the data slice so a stale reference cannot be
// read after the buffer was recycled.
type Tensor struct {
	Shape Shape
	Data  []float32

	mu       sync.Mutex
	released bool
	pool     *sync.Pool
}

var inputPool = sync.Pool{
	New: func() any {
		buf := make([]float32, InputShape.Len())
		return &buf
	},
}

// NewInput returns a zero-filled tensor of InputShape backed by a pooled buffer.
func NewInput() *Tensor {
	buf := inputPool.Get().(*[]float32)
	data := *buf
	clear(data)
	return &Tensor{Shape: InputShape, Data: data, pool: &inputPool}
}

// New wraps data with the given shape. The caller gives up ownership of data.
func New(shape Shape, data []float32) (*Tensor, error) {
	if len(data) != shape.Len() {
		return nil, fmt.Errorf("tensor: %d values do not fill shape %s", len(data), shape)
	}
	return &Tensor{Shape: shape, Data: data}, nil
}

// At returns the value at (n, y, x, c).
func (t *Tensor) At(n, y, x, c int) float32 {
	return t.Data[t.index(n, y, x, c)]
}

// Set stores v at (n, y, x, c).
func (t *Tensor) Set(n, y, x, c int, v float32) {
	t.Data[t.index(n, y, x, c)] = v
}

func (t *Tensor) index(n, y, x, c int) int {
	s := t.Shape
	return ((n*s[1]+y)*s[2]+x)*s[3] + c
}

// Released reports whether Release was called.
func (t *Tensor) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

// Release returns the buffer to its pool. It is safe to call more than once.
func (t *Tensor) Release() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	if t.pool != nil && len(t.Data) == InputShape.Len() {
		data := t.Data
		t.pool.Put(&data)
	}
	t.Data = nil
}

// Range returns the minimum and maximum values.
func (t *Tensor) Range() (lo, hi float32) {
	if len(t.Data) == 0 {
		return 0, 0
	}
	lo, hi = t.Data[0], t.Data[0]
	for _, v := range t.Data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
