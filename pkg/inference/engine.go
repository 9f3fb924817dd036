// Package inference runs the two-class mask classifier.
//
// An Engine is loaded once from a JSON descriptor plus a weights file and is
// then asked for one pair of scores per input tensor. The engine reports the
// scores in the order the model emits them; mapping them to classes is the
// caller's business.
package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/teslashibe/go-maskwatch/pkg/tensor"
)

// Scores is the model output, in output order.
type Scores [2]float32

// Engine produces scores for preprocessed frames.
type Engine interface {
	// Predict runs one forward pass. The tensor is only read.
	Predict(t *tensor.Tensor) (Scores, error)

	// Descriptor returns the loaded model's metadata.
	Descriptor() Descriptor

	// Backend returns the runtime name.
	Backend() Backend

	io.Closer
}

// Backend selects the runtime that executes the model.
type Backend string

const (
	BackendONNX   Backend = "onnx"
	BackendOpenCV Backend = "opencv"
	BackendMock   Backend = "mock"
)

// ParseBackend parses a backend name; empty means ONNX.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case "":
		return BackendONNX, nil
	case BackendONNX, BackendOpenCV:
		return b, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// Options configures Load.
type Options struct {
	Backend Backend

	// Descriptor is the path of the JSON topology file.
	Descriptor string

	// Weights is the path of the ONNX weights file.
	Weights string

	// OnnxRuntimeLib is the onnxruntime shared library path. Empty uses the
	// platform default search.
	OnnxRuntimeLib string

	Logger *slog.Logger
}

// Load reads the descriptor, checks the weights and creates the engine.
// Native model construction cannot be interrupted; if ctx ends first Load
// returns ctx's error and closes the engine once it finishes loading.
func Load(ctx context.Context, opts Options) (Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backend, err := ParseBackend(string(opts.Backend))
	if err != nil {
		return nil, loadErr(opts.Backend, "", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, loadErr(backend, "", err)
	}

	desc, err := ReadDescriptor(opts.Descriptor)
	if err != nil {
		return nil, loadErr(backend, opts.Descriptor, err)
	}
	if info, err := os.Stat(opts.Weights); err != nil {
		return nil, loadErr(backend, opts.Weights, err)
	} else if info.IsDir() || info.Size() == 0 {
		return nil, loadErr(backend, opts.Weights, errors.New("weights file is empty or a directory"))
	}

	type result struct {
		engine Engine
		err    error
	}
	done := make(chan result, 1)

	go func() {
		var r result
		switch backend {
		case BackendOpenCV:
			r.engine, r.err = NewOpenCVEngine(opts.Weights, desc, logger)
		default:
			r.engine, r.err = NewONNXEngine(opts.Weights, desc, opts.OnnxRuntimeLib, logger)
		}
		done <- r
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		logger.Info("model loaded",
			"name", desc.Name,
			"backend", backend,
			"layout", desc.Layout,
			"classes", desc.Classes,
		)
		return r.engine, nil

	case <-ctx.Done():
		go func() {
			if r := <-done; r.engine != nil {
				r.engine.Close()
			}
		}()
		return nil, loadErr(backend, opts.Weights, ctx.Err())
	}
}

// checkInput rejects tensors the engine cannot consume.
func checkInput(backend Backend, t *tensor.Tensor) error {
	switch {
	case t == nil:
		return predictErr(backend, errors.New("nil tensor"))
	case t.Released():
		return predictErr(backend, errors.New("tensor already released"))
	case t.Shape != tensor.InputShape || len(t.Data) != tensor.InputShape.Len():
		return predictErr(backend, fmt.Errorf("tensor shape %s, want %s", t.Shape, tensor.InputShape))
	}
	return nil
}

// scoresFrom converts raw model output to Scores.
func scoresFrom(backend Backend, out []float32) (Scores, error) {
	if len(out) != 2 {
		return Scores{}, predictErr(backend, fmt.Errorf("model returned %d values, want 2", len(out)))
	}
	return Scores{out[0], out[1]}, nil
}
