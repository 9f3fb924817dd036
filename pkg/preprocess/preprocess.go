// Package preprocess turns captured frames into the classifier's input
// tensor: center crop to a square, scale to [-1,1], resize to 224x224.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/nfnt/resize"

	"github.com/teslashibe/go-maskwatch/pkg/camera"
	"github.com/teslashibe/go-maskwatch/pkg/tensor"
)

// ErrInvalidFrameShape is returned for frames that do not match the
// configured capture resolution.
var ErrInvalidFrameShape = errors.New("preprocess: invalid frame shape")

// ShapeError describes a frame with unexpected dimensions.
type ShapeError struct {
	Width, Height int
	Bytes         int
	WantWidth     int
	WantHeight    int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("preprocess: frame is %dx%d (%d bytes), want %dx%d RGB",
		e.Width, e.Height, e.Bytes, e.WantWidth, e.WantHeight)
}

func (e *ShapeError) Unwrap() error {
	return ErrInvalidFrameShape
}

// Resampler selects how the crop is scaled to 224x224.
type Resampler string

const (
	// CropAndResize is corner-aligned bilinear sampling straight from the
	// frame. It matches the training pipeline and is the default.
	CropAndResize Resampler = "crop-and-resize"

	// The rest crop the pixel rectangle and scale it with nfnt/resize.
	Nearest  Resampler = "nearest"
	Bilinear Resampler = "bilinear"
	Bicubic  Resampler = "bicubic"
	Lanczos3 Resampler = "lanczos3"
)

var interpolations = map[Resampler]resize.InterpolationFunction{
	Nearest:  resize.NearestNeighbor,
	Bilinear: resize.Bilinear,
	Bicubic:  resize.Bicubic,
	Lanczos3: resize.Lanczos3,
}

// ParseResampler validates a resampler name. Empty means CropAndResize.
func ParseResampler(name string) (Resampler, error) {
	r := Resampler(strings.ToLower(strings.TrimSpace(name)))
	if r == "" || r == CropAndResize {
		return CropAndResize, nil
	}
	if _, ok := interpolations[r]; ok {
		return r, nil
	}
	return "", fmt.Errorf("preprocess: unknown resampler %q", name)
}

// Config is the capture resolution frames are expected at.
type Config struct {
	Width     int
	Height    int
	Resampler Resampler
}

// Preprocessor converts frames of one fixed resolution to input tensors.
// It holds no per-frame state, so Process is safe for concurrent use.
type Preprocessor struct {
	cfg Config
	box CropBox
}

// New creates a Preprocessor for frames of cfg.Width x cfg.Height.
func New(cfg Config) (*Preprocessor, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("preprocess: invalid capture size %dx%d", cfg.Width, cfg.Height)
	}
	r, err := ParseResampler(string(cfg.Resampler))
	if err != nil {
		return nil, err
	}
	cfg.Resampler = r

	return &Preprocessor{cfg: cfg, box: CropBoxFor(cfg.Width, cfg.Height)}, nil
}

// Config returns the configuration after defaults were applied.
func (p *Preprocessor) Config() Config {
	return p.cfg
}

// CropBox returns the normalized crop region used for every frame.
func (p *Preprocessor) CropBox() CropBox {
	return p.box
}

// Process crops, normalizes and resizes frame into a new [1,224,224,3]
// tensor. The frame is only read; the caller still owns it. The returned
// tensor must be released by the caller.
func (p *Preprocessor) Process(frame *camera.Frame) (*tensor.Tensor, error) {
	if err := p.check(frame); err != nil {
		return nil, err
	}

	t := tensor.NewInput()
	if p.cfg.Resampler == CropAndResize {
		cropAndResize(t.Data, frame.Pix, frame.Width, frame.Height, p.box, tensor.Height, tensor.Width)
		return t, nil
	}

	if err := p.resizeWith(t.Data, frame); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

func (p *Preprocessor) check(frame *camera.Frame) error {
	if frame == nil {
		return &ShapeError{WantWidth: p.cfg.Width, WantHeight: p.cfg.Height}
	}
	if frame.Width != p.cfg.Width || frame.Height != p.cfg.Height || len(frame.Pix) != p.cfg.Width*p.cfg.Height*3 {
		return &ShapeError{
			Width:      frame.Width,
			Height:     frame.Height,
			Bytes:      len(frame.Pix),
			WantWidth:  p.cfg.Width,
			WantHeight: p.cfg.Height,
		}
	}
	return nil
}

// resizeWith crops the pixel rectangle and scales it with nfnt/resize.
func (p *Preprocessor) resizeWith(dst []float32, frame *camera.Frame) error {
	img, err := frame.RGBA()
	if err != nil {
		return err
	}

	rect := p.box.Pixels(frame.Width, frame.Height)
	sub := img.SubImage(rect)

	scaled := resize.Resize(tensor.Width, tensor.Height, sub, interpolations[p.cfg.Resampler])
	pix := camera.PackRGB(scaled)
	if len(pix) != len(dst) {
		return fmt.Errorf("preprocess: resized crop has %d values, want %d", len(pix), len(dst))
	}
	for i, v := range pix {
		dst[i] = normalize(float64(v))
	}
	return nil
}

// Bounds returns the pixel crop rectangle for the configured resolution.
func (p *Preprocessor) Bounds() image.Rectangle {
	return p.box.Pixels(p.cfg.Width, p.cfg.Height)
}
