package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // Register decoders for LoadStillSource
	_ "image/png"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/nfnt/resize"
)

// StillSource replays a fixed set of images as if they were camera frames.
// Each image is resized to the capture resolution once, up front.
type StillSource struct {
	cfg    Config
	logger *slog.Logger
	repeat bool

	mu     sync.Mutex
	frames [][]uint8
	next   int
	closed bool

	seq  atomic.Uint64
	read atomic.Int64
}

// StillOption configures a StillSource.
type StillOption func(*StillSource)

// WithRepeat makes the source cycle forever instead of ending after the
// last image.
func WithRepeat() StillOption {
	return func(s *StillSource) { s.repeat = true }
}

// WithStillLogger sets the logger.
func WithStillLogger(l *slog.Logger) StillOption {
	return func(s *StillSource) { s.logger = l }
}

// NewStillSource builds a source from decoded images.
func NewStillSource(cfg Config, images []image.Image, opts ...StillOption) (*StillSource, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid camera config: %v", errs)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no images", ErrSourceUnavailable)
	}

	s := &StillSource{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	for _, img := range images {
		s.frames = append(s.frames, fitToCapture(img, cfg))
	}

	s.logger.Info("still source ready", "images", len(s.frames), "capture", cfg.String(), "repeat", s.repeat)
	return s, nil
}

// LoadStillSource decodes png/jpeg files and builds a source from them.
func LoadStillSource(cfg Config, paths []string, opts ...StillOption) (*StillSource, error) {
	images := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		img, err := decodeFile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		images = append(images, img)
	}
	return NewStillSource(cfg, images, opts...)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// fitToCapture plays the role of the capture layer: resize to the working
// resolution and mirror if configured.
func fitToCapture(img image.Image, cfg Config) []uint8 {
	b := img.Bounds()
	if b.Dx() != cfg.Width || b.Dy() != cfg.Height {
		img = resize.Resize(uint(cfg.Width), uint(cfg.Height), img, resize.Bilinear)
	}
	pix := PackRGB(img)
	if cfg.Mirror {
		mirrorRGB(pix, cfg.Width, cfg.Height)
	}
	return pix
}

func mirrorRGB(pix []uint8, width, height int) {
	stride := width * 3
	for y := 0; y < height; y++ {
		row := pix[y*stride : (y+1)*stride]
		for l, r := 0, width-1; l < r; l, r = l+1, r-1 {
			li, ri := l*3, r*3
			row[li], row[ri] = row[ri], row[li]
			row[li+1], row[ri+1] = row[ri+1], row[li+1]
			row[li+2], row[ri+2] = row[ri+2], row[li+2]
		}
	}
}

// NextFrame returns a copy of the next image. Without WithRepeat the
// source reports ErrSourceUnavailable once every image was delivered.
func (s *StillSource) NextFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSourceUnavailable
	}
	if s.next >= len(s.frames) {
		if !s.repeat {
			return nil, fmt.Errorf("%w: end of stills", ErrSourceUnavailable)
		}
		s.next = 0
	}

	pix := make([]uint8, len(s.frames[s.next]))
	copy(pix, s.frames[s.next])
	s.next++

	frame := NewFrame(s.cfg.Width, s.cfg.Height, pix, nil)
	frame.Seq = s.seq.Add(1)
	s.read.Add(1)
	return frame, nil
}

// Stats returns capture counters.
func (s *StillSource) Stats() SourceStats {
	return SourceStats{FramesRead: s.read.Load(), Backend: s.Name()}
}

// Name returns "still".
func (s *StillSource) Name() string {
	return "still"
}

// Close stops the source.
func (s *StillSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
