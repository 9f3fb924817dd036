package preprocess

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-maskwatch/pkg/camera"
	"github.com/teslashibe/go-maskwatch/pkg/tensor"
)

func gradientFrame(w, h int) *camera.Frame {
	pix := make([]uint8, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := (y*w + x) * 3
			pix[o] = uint8(x * 255 / (w - 1))
			pix[o+1] = uint8(y * 255 / (h - 1))
			pix[o+2] = uint8((x + y) % 256)
		}
	}
	return camera.NewFrame(w, h, pix, nil)
}

func TestCropFraction(t *testing.T) {
	tests := []struct {
		w, h int
		want float64
	}{
		{270, 480, 0.21875},
		{480, 480, 0},
		{540, 960, 0.21875},
		{480, 270, 0.21875},
		{100, 300, 1.0 / 3},
	}

	for _, tt := range tests {
		if got := CropFraction(tt.w, tt.h); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("CropFraction(%d, %d) = %v, want %v", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestCropBoxFor(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		want CropBox
	}{
		{"portrait", 270, 480, CropBox{Top: 0.21875, Left: 0, Bottom: 0.78125, Right: 1}},
		{"square", 480, 480, FullFrame},
		{"landscape", 480, 270, CropBox{Top: 0, Left: 0.21875, Bottom: 1, Right: 0.78125}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CropBoxFor(tt.w, tt.h); got != tt.want {
				t.Errorf("CropBoxFor(%d, %d) = %v, want %v", tt.w, tt.h, got, tt.want)
			}
		})
	}

	if r := CropBoxFor(270, 480).Pixels(270, 480); r.Dx() != 270 || r.Dy() != 270 {
		t.Errorf("pixel crop = %v, want 270x270", r)
	}
}

func TestProcessShapeAndRange(t *testing.T) {
	for _, r := range []Resampler{CropAndResize, Nearest, Bilinear, Bicubic, Lanczos3} {
		t.Run(string(r), func(t *testing.T) {
			p, err := New(Config{Width: 270, Height: 480, Resampler: r})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			out, err := p.Process(gradientFrame(270, 480))
			if err != nil {
				t.Fatalf("Process failed: %v", err)
			}
			defer out.Release()

			if out.Shape != tensor.InputShape {
				t.Errorf("shape = %s, want %s", out.Shape, tensor.InputShape)
			}
			lo, hi := out.Range()
			if lo < -1 || hi > 1 {
				t.Errorf("range = [%v, %v], want within [-1, 1]", lo, hi)
			}
		})
	}
}

func TestProcessExtremes(t *testing.T) {
	p, err := New(Config{Width: 270, Height: 480})
	if err != nil {
		t.Fatal(err)
	}

	black, err := p.Process(camera.SolidFrame(270, 480, 0, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if lo, hi := black.Range(); lo != -1 || hi != -1 {
		t.Errorf("black frame range = [%v, %v], want [-1, -1]", lo, hi)
	}
	black.Release()

	white, err := p.Process(camera.SolidFrame(270, 480, 255, 255, 255))
	if err != nil {
		t.Fatal(err)
	}
	if lo, hi := white.Range(); lo != 1 || hi != 1 {
		t.Errorf("white frame range = [%v, %v], want [1, 1]", lo, hi)
	}
	white.Release()
}

func TestProcessCornerAligned(t *testing.T) {
	// Square frames are not cropped, so output corners hit input corners.
	p, err := New(Config{Width: 480, Height: 480})
	if err != nil {
		t.Fatal(err)
	}
	frame := gradientFrame(480, 480)

	out, err := p.Process(frame)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Release()

	last := tensor.Width - 1
	corners := []struct {
		name    string
		y, x, c int
		want    float32
	}{
		{"top-left red", 0, 0, 0, -1},
		{"top-right red", 0, last, 0, 1},
		{"bottom-left green", last, 0, 1, 1},
	}
	for _, c := range corners {
		if got := out.At(0, c.y, c.x, c.c); math.Abs(float64(got-c.want)) > 1e-4 {
			t.Errorf("%s = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestProcessCropsVertically(t *testing.T) {
	// Bands outside the crop are black, the middle is white.
	w, h := 270, 480
	pix := make([]uint8, w*h*3)
	// One spare row on each side covers the bilinear neighbors of the
	// first and last sampled rows.
	top := int(0.21875*float64(h)) - 1
	bottom := int(0.78125*float64(h)) + 1
	for y := top; y <= bottom; y++ {
		for i := y * w * 3; i < (y+1)*w*3; i++ {
			pix[i] = 255
		}
	}

	p, err := New(Config{Width: w, Height: h})
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.Process(camera.NewFrame(w, h, pix, nil))
	if err != nil {
		t.Fatal(err)
	}
	defer out.Release()

	if lo, _ := out.Range(); lo != 1 {
		t.Errorf("crop leaked black rows: min = %v", lo)
	}
}

func TestProcessIdempotent(t *testing.T) {
	p, err := New(Config{Width: 270, Height: 480})
	if err != nil {
		t.Fatal(err)
	}
	frame := gradientFrame(270, 480)

	a, err := p.Process(frame)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()
	b, err := p.Process(frame)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("value %d differs: %v vs %v", i, a.Data[i], b.Data[i])
		}
	}
}

func TestProcessInvalidShape(t *testing.T) {
	p, err := New(Config{Width: 270, Height: 480})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		frame *camera.Frame
	}{
		{"nil", nil},
		{"wrong size", camera.SolidFrame(480, 480, 0, 0, 0)},
		{"short buffer", camera.NewFrame(270, 480, make([]uint8, 100), nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.Process(tt.frame)
			if out != nil {
				t.Error("expected no tensor")
			}
			if !errors.Is(err, ErrInvalidFrameShape) {
				t.Fatalf("err = %v, want ErrInvalidFrameShape", err)
			}
			var shapeErr *ShapeError
			if !errors.As(err, &shapeErr) || shapeErr.WantWidth != 270 {
				t.Errorf("expected *ShapeError with want 270, got %v", err)
			}
		})
	}
}

func TestParseResampler(t *testing.T) {
	for _, name := range []string{"", "crop-and-resize", "Bilinear", " lanczos3 "} {
		if _, err := ParseResampler(name); err != nil {
			t.Errorf("ParseResampler(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseResampler("area"); err == nil {
		t.Error("expected error for unknown resampler")
	}
	if _, err := New(Config{Width: 0, Height: 480}); err == nil {
		t.Error("expected error for zero width")
	}
}
