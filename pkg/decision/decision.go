// Package decision turns classifier scores into a mask state.
package decision

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-maskwatch/pkg/inference"
)

// State is the published classification. The zero value is Unknown.
type State int

const (
	Unknown State = iota
	Masked
	Unmasked
)

func (s State) String() string {
	switch s {
	case Masked:
		return "masked"
	case Unmasked:
		return "unmasked"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its lowercase name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "masked":
		*s = Masked
	case "unmasked":
		*s = Unmasked
	case "unknown", "":
		*s = Unknown
	default:
		return fmt.Errorf("decision: unknown state %q", text)
	}
	return nil
}

// Label is the overlay text shown for the state.
func (s State) Label() string {
	switch s {
	case Masked:
		return "Mask On"
	case Unmasked:
		return "Wear Mask!"
	default:
		return "Uncertain"
	}
}

// Color is the overlay color for the state.
func (s State) Color() string {
	switch s {
	case Masked:
		return "#00aa00"
	case Unmasked:
		return "#aa0000"
	default:
		return "#888888"
	}
}

// ClassScores are the model scores assigned to classes.
type ClassScores struct {
	Mask   float32 `json:"mask"`
	NoMask float32 `json:"no_mask"`
}

// Decide returns Masked when the mask score is strictly greater, Unmasked
// otherwise (a tie is Unmasked), and Unknown when there are no scores.
func Decide(s *ClassScores) State {
	if s == nil {
		return Unknown
	}
	if s.Mask > s.NoMask {
		return Masked
	}
	return Unmasked
}

// Mapping says which model output is the mask score.
type Mapping struct {
	// MaskIndex is 0 or 1; the other index is the no-mask score.
	MaskIndex int
}

// DefaultMapping treats output 0 as the mask score.
var DefaultMapping = Mapping{MaskIndex: 0}

// Apply assigns raw scores to classes.
func (m Mapping) Apply(s inference.Scores) ClassScores {
	if m.MaskIndex == 1 {
		return ClassScores{Mask: s[1], NoMask: s[0]}
	}
	return ClassScores{Mask: s[0], NoMask: s[1]}
}

// Validate checks MaskIndex.
func (m Mapping) Validate() error {
	if m.MaskIndex != 0 && m.MaskIndex != 1 {
		return fmt.Errorf("decision: mask index must be 0 or 1, got %d", m.MaskIndex)
	}
	return nil
}

// MappingFromClasses finds the mask class among descriptor labels such as
// ["with_mask", "without_mask"] or ["no_mask", "mask"]. It returns fallback
// when the labels do not identify exactly one mask class.
func MappingFromClasses(classes []string, fallback Mapping) Mapping {
	if len(classes) != 2 {
		return fallback
	}

	maskAt := -1
	for i, c := range classes {
		if isMaskLabel(c) {
			if maskAt >= 0 {
				return fallback
			}
			maskAt = i
		}
	}
	if maskAt < 0 {
		return fallback
	}
	return Mapping{MaskIndex: maskAt}
}

func isMaskLabel(label string) bool {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.NewReplacer("-", "_", " ", "_").Replace(l)
	if strings.Contains(l, "no_mask") || strings.Contains(l, "nomask") ||
		strings.Contains(l, "without") || strings.Contains(l, "unmask") {
		return false
	}
	return strings.Contains(l, "mask")
}
