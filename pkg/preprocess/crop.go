package preprocess

import (
	"fmt"
	"image"
	"math"
)

// CropBox is a crop region in normalized coordinates, 0 at the top/left edge
// and 1 at the bottom/right edge.
type CropBox struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
}

// FullFrame is the box that covers the whole frame.
var FullFrame = CropBox{Top: 0, Left: 0, Bottom: 1, Right: 1}

func (b CropBox) String() string {
	return fmt.Sprintf("[%g,%g,%g,%g]", b.Top, b.Left, b.Bottom, b.Right)
}

// CropFraction returns the share of the long side cut from each end to make
// a w x h frame square: (h-w)/(2h) for portrait frames, (w-h)/(2w) for
// landscape ones, 0 for square ones.
func CropFraction(w, h int) float64 {
	switch {
	case h > w:
		return float64(h-w) / float64(2*h)
	case w > h:
		return float64(w-h) / float64(2*w)
	default:
		return 0
	}
}

// CropBoxFor returns the centered square crop for a w x h frame.
// A 270x480 frame yields [0.21875,0,0.78125,1].
func CropBoxFor(w, h int) CropBox {
	f := CropFraction(w, h)
	if w > h {
		return CropBox{Top: 0, Left: f, Bottom: 1, Right: 1 - f}
	}
	return CropBox{Top: f, Left: 0, Bottom: 1 - f, Right: 1}
}

// Pixels converts the box to a pixel rectangle of a w x h frame.
func (b CropBox) Pixels(w, h int) image.Rectangle {
	return image.Rect(
		int(math.Round(b.Left*float64(w))),
		int(math.Round(b.Top*float64(h))),
		int(math.Round(b.Right*float64(w))),
		int(math.Round(b.Bottom*float64(h))),
	)
}

// cropAndResize bilinearly samples box out of an RGB frame onto an
// outH x outW grid, writing normalized values to dst (HWC).
//
// Sampling uses corner-aligned coordinates: output row i maps to input row
// top*(h-1) + i*(bottom-top)*(h-1)/(outH-1), the same mapping the classifier
// saw in training. Normalization is affine, so applying it after
// interpolation gives the same result as before.
func cropAndResize(dst []float32, pix []uint8, w, h int, box CropBox, outH, outW int) {
	stride := w * 3

	yScale := scale(box.Top, box.Bottom, h, outH)
	xScale := scale(box.Left, box.Right, w, outW)

	for i := 0; i < outH; i++ {
		inY := box.Top*float64(h-1) + float64(i)*yScale
		y0, y1, dy := neighbors(inY, h)

		for j := 0; j < outW; j++ {
			inX := box.Left*float64(w-1) + float64(j)*xScale
			x0, x1, dx := neighbors(inX, w)

			tl := y0*stride + x0*3
			tr := y0*stride + x1*3
			bl := y1*stride + x0*3
			br := y1*stride + x1*3

			o := (i*outW + j) * 3
			for c := 0; c < 3; c++ {
				top := float64(pix[tl+c]) + (float64(pix[tr+c])-float64(pix[tl+c]))*dx
				bottom := float64(pix[bl+c]) + (float64(pix[br+c])-float64(pix[bl+c]))*dx
				v := top + (bottom-top)*dy
				dst[o+c] = normalize(v)
			}
		}
	}
}

func scale(lo, hi float64, in, out int) float64 {
	if out <= 1 {
		return 0
	}
	return (hi - lo) * float64(in-1) / float64(out-1)
}

// neighbors returns the two source indices around pos and the weight of the
// second one, clamped to [0, n-1].
func neighbors(pos float64, n int) (lo, hi int, frac float64) {
	if pos <= 0 {
		return 0, 0, 0
	}
	if pos >= float64(n-1) {
		return n - 1, n - 1, 0
	}
	lo = int(math.Floor(pos))
	hi = lo + 1
	return lo, hi, pos - float64(lo)
}

// normalize maps [0,255] to [-1,1].
func normalize(v float64) float32 {
	return float32(v/127.5 - 1)
}
