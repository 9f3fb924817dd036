package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// Device reads frames from a local camera or video stream through OpenCV.
// Frames are resized to the configured capture resolution, optionally
// mirrored, and converted from BGR to packed RGB.
type Device struct {
	id     string
	logger *slog.Logger

	mu      sync.Mutex // Protects capture and the scratch mats
	cfg     Config
	capture *gocv.VideoCapture
	raw     gocv.Mat
	sized   gocv.Mat
	flipped gocv.Mat
	rgb     gocv.Mat
	closed  bool

	seq     atomic.Uint64
	read    atomic.Int64
	dropped atomic.Int64
}

// OpenDevice opens a capture device. id is a device index ("0") or a file
// path / stream URL. A device that cannot be opened (missing, busy, or
// permission denied) yields ErrSourceUnavailable.
func OpenDevice(id string, cfg Config, logger *slog.Logger) (*Device, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid camera config: %v", errs)
	}
	if logger == nil {
		logger = slog.Default()
	}

	capture, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrSourceUnavailable, id, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %s is not opened", ErrSourceUnavailable, id)
	}

	capture.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	logger.Info("camera opened",
		"device", id,
		"capture", cfg.String(),
		"mirror", cfg.Mirror,
	)

	return &Device{
		id:      id,
		logger:  logger,
		cfg:     cfg,
		capture: capture,
		raw:     gocv.NewMat(),
		sized:   gocv.NewMat(),
		flipped: gocv.NewMat(),
		rgb:     gocv.NewMat(),
	}, nil
}

// NextFrame blocks until the device delivers a non-empty frame.
// Empty reads are frames dropped upstream and are skipped; a failed read
// means the device went away.
func (d *Device) NextFrame(ctx context.Context) (*Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return nil, ErrSourceUnavailable
		}

		if ok := d.capture.Read(&d.raw); !ok {
			d.mu.Unlock()
			return nil, fmt.Errorf("%w: read from %s failed", ErrSourceUnavailable, d.id)
		}
		if d.raw.Empty() {
			d.mu.Unlock()
			d.dropped.Add(1)
			continue
		}

		frame, err := d.convert()
		d.mu.Unlock()
		if err != nil {
			return nil, err
		}

		frame.Seq = d.seq.Add(1)
		d.read.Add(1)
		return frame, nil
	}
}

// convert resizes, mirrors and color-converts d.raw. Caller holds d.mu.
func (d *Device) convert() (*Frame, error) {
	if ch := d.raw.Channels(); ch != 3 {
		return nil, fmt.Errorf("camera: %s delivered %d channels, want 3", d.id, ch)
	}

	size := image.Pt(d.cfg.Width, d.cfg.Height)
	if err := gocv.Resize(d.raw, &d.sized, size, 0, 0, gocv.InterpolationLinear); err != nil {
		return nil, fmt.Errorf("camera: resize: %w", err)
	}

	src := d.sized
	if d.cfg.Mirror {
		if err := gocv.Flip(d.sized, &d.flipped, 1); err != nil {
			return nil, fmt.Errorf("camera: mirror: %w", err)
		}
		src = d.flipped
	}

	if err := gocv.CvtColor(src, &d.rgb, gocv.ColorBGRToRGB); err != nil {
		return nil, fmt.Errorf("camera: convert color: %w", err)
	}

	// ToBytes copies, so the frame never aliases the scratch mats.
	return NewFrame(d.cfg.Width, d.cfg.Height, d.rgb.ToBytes(), nil), nil
}

// Reconfigure changes the capture resolution, framerate and mirroring.
func (d *Device) Reconfigure(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid camera config: %v", errs)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrSourceUnavailable
	}
	d.cfg = cfg
	d.capture.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	d.logger.Info("camera reconfigured", "device", d.id, "capture", cfg.String(), "mirror", cfg.Mirror)
	return nil
}

// Config returns the active capture config.
func (d *Device) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Stats returns capture counters.
func (d *Device) Stats() SourceStats {
	return SourceStats{
		FramesRead: d.read.Load(),
		Dropped:    d.dropped.Load(),
		Backend:    d.Name(),
	}
}

// Name returns "opencv".
func (d *Device) Name() string {
	return "opencv"
}

// Close releases the device and scratch buffers.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	d.raw.Close()
	d.sized.Close()
	d.flipped.Close()
	d.rgb.Close()

	d.logger.Info("camera closed", "device", d.id, "frames", d.read.Load(), "dropped", d.dropped.Load())
	return d.capture.Close()
}
