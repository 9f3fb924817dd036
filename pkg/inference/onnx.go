package inference

import (
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/teslashibe/go-maskwatch/pkg/tensor"
)

// The onnxruntime environment is process-wide; engines share it and the
// last one to close tears it down.
var (
	ortMu      sync.Mutex
	ortEngines int
)

func acquireRuntime(lib string) error {
	ortMu.Lock()
	defer ortMu.Unlock()

	if !ort.IsInitialized() {
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	ortEngines++
	return nil
}

func releaseRuntime(logger *slog.Logger) {
	ortMu.Lock()
	defer ortMu.Unlock()

	ortEngines--
	if ortEngines > 0 || !ort.IsInitialized() {
		return
	}
	if err := ort.DestroyEnvironment(); err != nil {
		logger.Warn("failed to destroy ONNX environment", "error", err)
	}
}

// ONNXEngine runs the model with onnxruntime. Input and output tensors are
// allocated once and reused for every prediction.
type ONNXEngine struct {
	desc   Descriptor
	logger *slog.Logger

	mu      sync.Mutex // Protects the session and its tensors
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	closed  bool
}

// NewONNXEngine creates a session for the weights at path.
func NewONNXEngine(path string, desc Descriptor, lib string, logger *slog.Logger) (*ONNXEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := desc.Validate(); err != nil {
		return nil, loadErr(BackendONNX, path, err)
	}
	if err := acquireRuntime(lib); err != nil {
		return nil, loadErr(BackendONNX, lib, err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(desc.InputShape...))
	if err != nil {
		releaseRuntime(logger)
		return nil, loadErr(BackendONNX, path, fmt.Errorf("failed to create input tensor: %w", err))
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(desc.OutputShape...))
	if err != nil {
		input.Destroy()
		releaseRuntime(logger)
		return nil, loadErr(BackendONNX, path, fmt.Errorf("failed to create output tensor: %w", err))
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{desc.InputName}, []string{desc.OutputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		releaseRuntime(logger)
		return nil, loadErr(BackendONNX, path, fmt.Errorf("failed to create ONNX session: %w", err))
	}

	return &ONNXEngine{
		desc:    desc,
		logger:  logger,
		session: session,
		input:   input,
		output:  output,
	}, nil
}

// Predict copies t into the session input and runs the model.
func (e *ONNXEngine) Predict(t *tensor.Tensor) (Scores, error) {
	if err := checkInput(BackendONNX, t); err != nil {
		return Scores{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Scores{}, predictErr(BackendONNX, fmt.Errorf("engine closed"))
	}

	e.desc.fill(e.input.GetData(), t)

	if err := e.session.Run(); err != nil {
		return Scores{}, predictErr(BackendONNX, err)
	}
	return scoresFrom(BackendONNX, e.output.GetData())
}

// Descriptor returns the model metadata.
func (e *ONNXEngine) Descriptor() Descriptor {
	return e.desc
}

// Backend returns BackendONNX.
func (e *ONNXEngine) Backend() Backend {
	return BackendONNX
}

// Close destroys the session and its tensors.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	e.session.Destroy()
	e.input.Destroy()
	e.output.Destroy()
	releaseRuntime(e.logger)
	return nil
}
