package inference

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/teslashibe/go-maskwatch/pkg/tensor"
)

// Layout is the memory order the model expects its input in.
type Layout string

const (
	LayoutNHWC Layout = "NHWC"
	LayoutNCHW Layout = "NCHW"
)

// Descriptor is the topology metadata stored next to the weights.
//
//	{
//	  "name": "mask-mobilenet",
//	  "format": "onnx",
//	  "input_name": "input",
//	  "output_name": "output",
//	  "input_shape": [1, 224, 224, 3],
//	  "output_shape": [1, 2],
//	  "layout": "NHWC",
//	  "classes": ["with_mask", "without_mask"]
//	}
type Descriptor struct {
	Name        string   `json:"name"`
	Format      string   `json:"format"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Layout      Layout   `json:"layout,omitempty"`
	Classes     []string `json:"classes,omitempty"`
}

var (
	nhwcShape = []int64{tensor.Batch, tensor.Height, tensor.Width, tensor.Channels}
	nchwShape = []int64{tensor.Batch, tensor.Channels, tensor.Height, tensor.Width}
)

// DefaultDescriptor describes a two-class NHWC classifier with the
// conventional tensor names.
func DefaultDescriptor() Descriptor {
	return Descriptor{
		Name:        "mask-classifier",
		Format:      "onnx",
		InputName:   "input",
		OutputName:  "output",
		InputShape:  slices.Clone(nhwcShape),
		OutputShape: []int64{1, 2},
		Layout:      LayoutNHWC,
	}
}

// ReadDescriptor reads and validates a descriptor file.
func ReadDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read descriptor: %w", err)
	}
	return ParseDescriptor(data)
}

// ParseDescriptor decodes and validates descriptor JSON. Missing tensor
// names default to "input"/"output" and a missing layout is inferred from
// the input shape.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("parse descriptor: %w", err)
	}

	if d.InputName == "" {
		d.InputName = "input"
	}
	if d.OutputName == "" {
		d.OutputName = "output"
	}
	d.Layout = Layout(strings.ToUpper(string(d.Layout)))

	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// Validate checks that the model takes one 224x224 RGB image and emits
// exactly two scores. It fills in Layout when empty.
func (d *Descriptor) Validate() error {
	if d.Format != "" && !strings.EqualFold(d.Format, "onnx") {
		return fmt.Errorf("unsupported model format %q", d.Format)
	}

	var inferred Layout
	switch {
	case slices.Equal(d.InputShape, nhwcShape):
		inferred = LayoutNHWC
	case slices.Equal(d.InputShape, nchwShape):
		inferred = LayoutNCHW
	default:
		return fmt.Errorf("input shape %v is not %v or %v", d.InputShape, nhwcShape, nchwShape)
	}
	if d.Layout == "" {
		d.Layout = inferred
	} else if d.Layout != inferred {
		return fmt.Errorf("layout %s does not match input shape %v", d.Layout, d.InputShape)
	}

	if !slices.Equal(d.OutputShape, []int64{2}) && !slices.Equal(d.OutputShape, []int64{1, 2}) {
		return fmt.Errorf("output shape %v does not hold exactly two scores", d.OutputShape)
	}

	if len(d.Classes) != 0 && len(d.Classes) != 2 {
		return fmt.Errorf("expected 2 class labels, got %d", len(d.Classes))
	}
	return nil
}

// fill copies an NHWC input tensor into dst in the model's layout.
func (d *Descriptor) fill(dst []float32, t *tensor.Tensor) {
	if d.Layout != LayoutNCHW {
		copy(dst, t.Data)
		return
	}
	plane := tensor.Height * tensor.Width
	for p := 0; p < plane; p++ {
		src := p * tensor.Channels
		for c := 0; c < tensor.Channels; c++ {
			dst[c*plane+p] = t.Data[src+c]
		}
	}
}
