package inference

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-maskwatch/pkg/tensor"
)

// OpenCVEngine runs the ONNX model through OpenCV's DNN module.
type OpenCVEngine struct {
	desc   Descriptor
	logger *slog.Logger

	mu     sync.Mutex // Protects inference
	net    gocv.Net
	blob   gocv.Mat
	closed bool
}

// NewOpenCVEngine reads the ONNX weights at path.
func NewOpenCVEngine(path string, desc Descriptor, logger *slog.Logger) (*OpenCVEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := desc.Validate(); err != nil {
		return nil, loadErr(BackendOpenCV, path, err)
	}

	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, loadErr(BackendOpenCV, path, errors.New("failed to read ONNX network"))
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	sizes := make([]int, len(desc.InputShape))
	for i, d := range desc.InputShape {
		sizes[i] = int(d)
	}

	return &OpenCVEngine{
		desc:   desc,
		logger: logger,
		net:    net,
		blob:   gocv.NewMatWithSizes(sizes, gocv.MatTypeCV32F),
	}, nil
}

// Predict fills the input blob from t and runs a forward pass.
func (e *OpenCVEngine) Predict(t *tensor.Tensor) (Scores, error) {
	if err := checkInput(BackendOpenCV, t); err != nil {
		return Scores{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Scores{}, predictErr(BackendOpenCV, errors.New("engine closed"))
	}

	in, err := e.blob.DataPtrFloat32()
	if err != nil {
		return Scores{}, predictErr(BackendOpenCV, fmt.Errorf("input blob: %w", err))
	}
	e.desc.fill(in, t)

	e.net.SetInput(e.blob, e.desc.InputName)

	output := e.net.Forward(e.desc.OutputName)
	defer output.Close()

	if output.Empty() {
		return Scores{}, predictErr(BackendOpenCV, errors.New("empty output"))
	}
	out, err := output.DataPtrFloat32()
	if err != nil {
		return Scores{}, predictErr(BackendOpenCV, fmt.Errorf("output: %w", err))
	}
	return scoresFrom(BackendOpenCV, out)
}

// Descriptor returns the model metadata.
func (e *OpenCVEngine) Descriptor() Descriptor {
	return e.desc
}

// Backend returns BackendOpenCV.
func (e *OpenCVEngine) Backend() Backend {
	return BackendOpenCV
}

// Close releases the network.
func (e *OpenCVEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	e.blob.Close()
	return e.net.Close()
}
