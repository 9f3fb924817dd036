package maskloop

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// ErrPacerClosed is returned by SignalPacer when its tick channel closes.
var ErrPacerClosed = errors.New("maskloop: pacing signal closed")

// Pacer schedules the next iteration. The loop calls Wait only after an
// iteration finished, so a slow frame delays the next one instead of
// queueing work.
type Pacer interface {
	Wait(ctx context.Context) error
}

// RatePacer paces iterations at a fixed refresh rate.
type RatePacer struct {
	limiter *rate.Limiter
}

// NewRatePacer returns a pacer allowing hz iterations per second with no
// burst. A non-positive rate means no pacing.
func NewRatePacer(hz float64) Pacer {
	if hz <= 0 {
		return Immediate
	}
	return &RatePacer{limiter: rate.NewLimiter(rate.Limit(hz), 1)}
}

// Wait blocks until the next slot or ctx is done.
func (p *RatePacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// SignalPacer waits for a host-provided tick, such as a display refresh.
type SignalPacer struct {
	C <-chan struct{}
}

// Wait blocks until the next tick or ctx is done.
func (p SignalPacer) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-p.C:
		if !ok {
			return ErrPacerClosed
		}
		return nil
	}
}

type immediate struct{}

func (immediate) Wait(ctx context.Context) error {
	return ctx.Err()
}

// Immediate starts the next iteration right away.
var Immediate Pacer = immediate{}
