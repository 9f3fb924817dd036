package tensor

import "testing"

func TestInputShape(t *testing.T) {
	if InputShape.Len() != 224*224*3 {
		t.Errorf("InputShape.Len: got %d", InputShape.Len())
	}
	if InputShape.String() != "[1,224,224,3]" {
		t.Errorf("InputShape.String: got %s", InputShape)
	}
}

func TestNewInput_ZeroFilled(t *testing.T) {
	a := NewInput()
	a.Data[10] = 0.5
	a.Release()

	// A recycled buffer must come back cleared.
	b := NewInput()
	defer b.Release()
	if b.Data[10] != 0 {
		t.Errorf("recycled buffer not cleared: %v", b.Data[10])
	}
	if b.Shape != InputShape {
		t.Errorf("shape: got %s", b.Shape)
	}
}

func TestRelease_DropsData(t *testing.T) {
	tn := NewInput()
	tn.Release()

	if !tn.Released() {
		t.Error("Released should be true")
	}
	if tn.Data != nil {
		t.Error("Data should be nil after Release")
	}

	// Second release is a no-op.
	tn.Release()

	var nilTensor *Tensor
	nilTensor.Release()
}

func TestIndexing(t *testing.T) {
	tn := NewInput()
	defer tn.Release()

	tn.Set(0, 1, 2, 1, 0.25)
	if got := tn.At(0, 1, 2, 1); got != 0.25 {
		t.Errorf("At: got %v", got)
	}
	// NHWC layout: ((y*W)+x)*C + c
	if tn.Data[(1*224+2)*3+1] != 0.25 {
		t.Error("value not stored at NHWC offset")
	}
}

func TestNew(t *testing.T) {
	if _, err := New(Shape{1, 2, 2, 3}, make([]float32, 5)); err == nil {
		t.Error("expected error for short data")
	}

	tn, err := New(Shape{1, 1, 2, 1}, []float32{-1, 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lo, hi := tn.Range()
	if lo != -1 || hi != 1 {
		t.Errorf("Range: got %v..%v", lo, hi)
	}
}
