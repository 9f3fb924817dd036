package decision

import (
	"encoding/json"
	"testing"

	"github.com/teslashibe/go-maskwatch/pkg/inference"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		scores *ClassScores
		want   State
	}{
		{"mask wins", &ClassScores{Mask: 0.9, NoMask: 0.1}, Masked},
		{"no mask wins", &ClassScores{Mask: 0.1, NoMask: 0.9}, Unmasked},
		{"tie", &ClassScores{Mask: 0.5, NoMask: 0.5}, Unmasked},
		{"negative logits", &ClassScores{Mask: -1, NoMask: -3}, Masked},
		{"absent", nil, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.scores); got != tt.want {
				t.Errorf("Decide() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStateText(t *testing.T) {
	var zero State
	if zero != Unknown {
		t.Error("zero value should be Unknown")
	}

	tests := []struct {
		state State
		text  string
		label string
		color string
	}{
		{Unknown, "unknown", "Uncertain", "#888888"},
		{Masked, "masked", "Mask On", "#00aa00"},
		{Unmasked, "unmasked", "Wear Mask!", "#aa0000"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			b, err := json.Marshal(tt.state)
			if err != nil {
				t.Fatal(err)
			}
			if string(b) != `"`+tt.text+`"` {
				t.Errorf("json = %s", b)
			}

			var back State
			if err := json.Unmarshal(b, &back); err != nil || back != tt.state {
				t.Errorf("unmarshal = %s, %v", back, err)
			}
			if tt.state.Label() != tt.label || tt.state.Color() != tt.color {
				t.Errorf("label/color = %q/%q", tt.state.Label(), tt.state.Color())
			}
		})
	}

	var s State
	if err := s.UnmarshalText([]byte("maybe")); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestMapping(t *testing.T) {
	raw := inference.Scores{0.3, 0.7}

	if got := DefaultMapping.Apply(raw); got != (ClassScores{Mask: 0.3, NoMask: 0.7}) {
		t.Errorf("index 0 = %+v", got)
	}
	if got := (Mapping{MaskIndex: 1}).Apply(raw); got != (ClassScores{Mask: 0.7, NoMask: 0.3}) {
		t.Errorf("index 1 = %+v", got)
	}
	if err := (Mapping{MaskIndex: 2}).Validate(); err == nil {
		t.Error("expected error for index 2")
	}
}

func TestMappingFromClasses(t *testing.T) {
	fallback := Mapping{MaskIndex: 0}

	tests := []struct {
		classes []string
		want    int
	}{
		{[]string{"with_mask", "without_mask"}, 0},
		{[]string{"without_mask", "with_mask"}, 1},
		{[]string{"No Mask", "Mask"}, 1},
		{[]string{"mask", "nomask"}, 0},
		{[]string{"unmasked", "masked"}, 1},
		{[]string{"cat", "dog"}, 0},
		{[]string{"mask", "mask"}, 0},
		{nil, 0},
	}

	for _, tt := range tests {
		if got := MappingFromClasses(tt.classes, fallback); got.MaskIndex != tt.want {
			t.Errorf("MappingFromClasses(%v) = %d, want %d", tt.classes, got.MaskIndex, tt.want)
		}
	}
}
