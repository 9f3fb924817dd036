// Package config provides configuration loading for go-maskwatch commands.
// Values come from environment variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultCamera           = "0"
	DefaultCaptureWidth     = 270
	DefaultCaptureHeight    = 480
	DefaultModelDescriptor  = "model/model.json"
	DefaultModelWeights     = "model/model.onnx"
	DefaultBackend          = "onnx"
	DefaultResampler        = "crop-and-resize"
	DefaultFPS              = 30.0
	DefaultWebPort          = "8080"
	DefaultLogLevel         = "info"
	DefaultMaskIndex        = 0
	DefaultMirror           = true
	DefaultOnnxRuntimeLib   = ""
	defaultDotEnvFile       = ".env"
	supportedBackendsString = "onnx, opencv"
)

// Config holds process-level configuration.
// Flag parsing is done in cmd/maskwatch; this struct is data only.
type Config struct {
	// Camera is a device index ("0") or a capture URL/file path.
	Camera string

	// Capture resolution delivered by the capture layer (portrait by default).
	CaptureWidth  int
	CaptureHeight int

	// Mirror flips frames horizontally, as a front camera preview does.
	Mirror bool

	// Model artifact.
	ModelDescriptor string
	ModelWeights    string
	Backend         string // "onnx" or "opencv"
	OnnxRuntimeLib  string // shared library path for onnxruntime

	// MaskIndex is the output index holding the "mask" score when the
	// descriptor does not name its classes.
	MaskIndex int

	// Resampler used by the preprocessor.
	Resampler string

	// FPS bounds how often the loop re-arms.
	FPS float64

	// WebPort for the dashboard; empty disables it.
	WebPort string

	LogLevel string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Camera:          DefaultCamera,
		CaptureWidth:    DefaultCaptureWidth,
		CaptureHeight:   DefaultCaptureHeight,
		Mirror:          DefaultMirror,
		ModelDescriptor: DefaultModelDescriptor,
		ModelWeights:    DefaultModelWeights,
		Backend:         DefaultBackend,
		OnnxRuntimeLib:  DefaultOnnxRuntimeLib,
		MaskIndex:       DefaultMaskIndex,
		Resampler:       DefaultResampler,
		FPS:             DefaultFPS,
		WebPort:         DefaultWebPort,
		LogLevel:        DefaultLogLevel,
	}
}

// Load reads an optional .env file and then the environment.
// A missing .env file is not an error; a malformed one is.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{defaultDotEnvFile}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	return FromEnv(), nil
}

// FromEnv builds a Config from environment variables over the defaults.
func FromEnv() Config {
	cfg := Default()

	cfg.Camera = getEnv("MASKWATCH_CAMERA", cfg.Camera)
	cfg.CaptureWidth = getEnvAsInt("MASKWATCH_CAPTURE_WIDTH", cfg.CaptureWidth)
	cfg.CaptureHeight = getEnvAsInt("MASKWATCH_CAPTURE_HEIGHT", cfg.CaptureHeight)
	cfg.Mirror = getEnvAsBool("MASKWATCH_MIRROR", cfg.Mirror)
	cfg.ModelDescriptor = getEnv("MASKWATCH_MODEL_DESCRIPTOR", cfg.ModelDescriptor)
	cfg.ModelWeights = getEnv("MASKWATCH_MODEL_WEIGHTS", cfg.ModelWeights)
	cfg.Backend = strings.ToLower(getEnv("MASKWATCH_BACKEND", cfg.Backend))
	cfg.OnnxRuntimeLib = getEnv("ONNXRUNTIME_LIB", cfg.OnnxRuntimeLib)
	cfg.MaskIndex = getEnvAsInt("MASKWATCH_MASK_INDEX", cfg.MaskIndex)
	cfg.Resampler = getEnv("MASKWATCH_RESAMPLER", cfg.Resampler)
	cfg.FPS = getEnvAsFloat("MASKWATCH_FPS", cfg.FPS)
	cfg.WebPort = getEnv("MASKWATCH_WEB_PORT", cfg.WebPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg
}

// Validate checks ranges and required values.
func (c Config) Validate() error {
	var errs []error

	if c.Camera == "" {
		errs = append(errs, errors.New("camera must not be empty"))
	}
	if c.CaptureWidth <= 0 || c.CaptureHeight <= 0 {
		errs = append(errs, fmt.Errorf("capture resolution must be positive, got %dx%d", c.CaptureWidth, c.CaptureHeight))
	}
	if c.ModelDescriptor == "" || c.ModelWeights == "" {
		errs = append(errs, errors.New("model descriptor and weights are required"))
	}
	switch c.Backend {
	case "onnx", "opencv":
	default:
		errs = append(errs, fmt.Errorf("unsupported backend %q (want one of: %s)", c.Backend, supportedBackendsString))
	}
	if c.MaskIndex != 0 && c.MaskIndex != 1 {
		errs = append(errs, fmt.Errorf("mask index must be 0 or 1, got %d", c.MaskIndex))
	}
	if c.FPS < 0 {
		errs = append(errs, fmt.Errorf("fps must not be negative, got %v", c.FPS))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
