package camera

import (
	"fmt"
	"image"
	"sync"
	"time"
)

// Frame is one captured image: tightly packed 8-bit RGB, row-major.
// The receiver owns it until Release is called; after that Pix is nil.
type Frame struct {
	Pix        []uint8
	Width      int
	Height     int
	Seq        uint64
	CapturedAt time.Time

	once    sync.Once
	release func()
}

// NewFrame wraps pix as a width x height RGB frame. release, if not nil,
// runs exactly once when the frame is released.
func NewFrame(width, height int, pix []uint8, release func()) *Frame {
	return &Frame{
		Pix:        pix,
		Width:      width,
		Height:     height,
		CapturedAt: time.Now(),
		release:    release,
	}
}

// Stride returns the number of bytes per row.
func (f *Frame) Stride() int {
	return f.Width * 3
}

// Valid reports whether Pix holds exactly Width*Height RGB pixels.
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Width*f.Height*3
}

// Release hands the frame back to its source. Safe to call more than once.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	f.once.Do(func() {
		f.Pix = nil
		if f.release != nil {
			f.release()
		}
	})
}

// RGBA copies the frame into an *image.RGBA.
func (f *Frame) RGBA() (*image.RGBA, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("camera: frame %d has no pixel data", f.Seq)
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i < len(f.Pix); i, j = i+3, j+4 {
		img.Pix[j] = f.Pix[i]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

// PackRGB converts any image into tightly packed RGB bytes.
func PackRGB(img image.Image) []uint8 {
	b := img.Bounds()
	out := make([]uint8, 0, b.Dx()*b.Dy()*3)

	if rgba, ok := img.(*image.RGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, y):rgba.PixOffset(b.Max.X, y)]
			for i := 0; i < len(row); i += 4 {
				out = append(out, row[i], row[i+1], row[i+2])
			}
		}
		return out
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out = append(out, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}
	return out
}
