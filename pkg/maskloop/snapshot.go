package maskloop

import (
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-maskwatch/pkg/decision"
)

// Snapshot is one published classification.
type Snapshot struct {
	LoopID string         `json:"loop_id"`
	Seq    uint64         `json:"seq"`
	State  decision.State `json:"state"`

	// Scores is nil when the iteration produced no usable scores.
	Scores *decision.ClassScores `json:"scores,omitempty"`

	// Err describes why State is Unknown, if it is.
	Err string `json:"error,omitempty"`

	Latency time.Duration `json:"latency_ns"`
	At      time.Time     `json:"at"`
}

// Board holds the latest snapshot. One writer, any number of readers;
// readers always see a whole snapshot.
type Board struct {
	p atomic.Pointer[Snapshot]
}

// NewBoard returns a board reading Unknown.
func NewBoard() *Board {
	return &Board{}
}

// Publish replaces the current snapshot. Board implements Sink.
func (b *Board) Publish(s Snapshot) {
	b.p.Store(&s)
}

// Load returns the current snapshot, or a zero (Unknown) snapshot if
// nothing was published yet.
func (b *Board) Load() Snapshot {
	if s := b.p.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}
