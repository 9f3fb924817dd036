package maskloop

import (
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-maskwatch/pkg/decision"
)

// Stats counts loop activity. Safe for concurrent use.
type Stats struct {
	iterations      atomic.Int64
	masked          atomic.Int64
	unmasked        atomic.Int64
	unknown         atomic.Int64
	frameErrors     atomic.Int64
	preprocessErrs  atomic.Int64
	inferenceErrors atomic.Int64
	lastLatency     atomic.Int64
	totalLatency    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Iterations       int64         `json:"iterations"`
	Masked           int64         `json:"masked"`
	Unmasked         int64         `json:"unmasked"`
	Unknown          int64         `json:"unknown"`
	FrameErrors      int64         `json:"frame_errors"`
	PreprocessErrors int64         `json:"preprocess_errors"`
	InferenceErrors  int64         `json:"inference_errors"`
	LastLatency      time.Duration `json:"last_latency_ns"`
	AvgLatency       time.Duration `json:"avg_latency_ns"`
}

func (s *Stats) record(state decision.State, latency time.Duration) {
	s.iterations.Add(1)
	switch state {
	case decision.Masked:
		s.masked.Add(1)
	case decision.Unmasked:
		s.unmasked.Add(1)
	default:
		s.unknown.Add(1)
	}
	s.lastLatency.Store(int64(latency))
	s.totalLatency.Add(int64(latency))
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	out := StatsSnapshot{
		Iterations:       s.iterations.Load(),
		Masked:           s.masked.Load(),
		Unmasked:         s.unmasked.Load(),
		Unknown:          s.unknown.Load(),
		FrameErrors:      s.frameErrors.Load(),
		PreprocessErrors: s.preprocessErrs.Load(),
		InferenceErrors:  s.inferenceErrors.Load(),
		LastLatency:      time.Duration(s.lastLatency.Load()),
	}
	if out.Iterations > 0 {
		out.AvgLatency = time.Duration(s.totalLatency.Load() / out.Iterations)
	}
	return out
}
