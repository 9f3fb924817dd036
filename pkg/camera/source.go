package camera

import (
	"context"
	"errors"
	"io"
)

// ErrSourceUnavailable is returned when the capture device is not
// initialized, was closed, or access was denied. It is fatal for the loop.
var ErrSourceUnavailable = errors.New("camera: source unavailable")

// Source is a pull-based stream of frames from a capture device.
//
// NextFrame blocks until a frame is available or ctx is done. Each call
// consumes one frame; a frame is never delivered twice. Callers hold at most
// one outstanding frame and must Release it before asking for the next one:
// the devices behind this interface are single-consumer, and requesting a
// frame signals readiness for more capture.
type Source interface {
	NextFrame(ctx context.Context) (*Frame, error)

	// Name returns the backend name (e.g., "opencv", "still", "mock").
	Name() string

	// Close releases the device. NextFrame then returns ErrSourceUnavailable.
	io.Closer
}

// SourceStats contains statistics about a frame source.
type SourceStats struct {
	// FramesRead is the number of frames handed out.
	FramesRead int64 `json:"frames_read"`

	// Dropped is the number of empty reads skipped by the source.
	Dropped int64 `json:"dropped"`

	// Backend is the name of the capture backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}

// Reconfigurable sources accept a new capture config at runtime.
type Reconfigurable interface {
	Reconfigure(cfg Config) error
}
