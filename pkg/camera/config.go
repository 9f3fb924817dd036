// Package camera provides frame sources and runtime-configurable capture
// settings for the mask watcher.
package camera

import "fmt"

// Config holds the capture parameters. The capture layer always hands frames
// to the pipeline at exactly Width x Height.
type Config struct {
	// === Resolution ===
	Width     int `json:"width"`     // Frame width in pixels after the capture resize
	Height    int `json:"height"`    // Frame height in pixels after the capture resize
	Framerate int `json:"framerate"` // FPS requested from the device

	// Mirror flips frames horizontally (front camera preview).
	Mirror bool `json:"mirror"`
}

// Capture limits.
const (
	MinDimension = 16
	MaxDimension = 4096
	MaxFramerate = 120
)

// DefaultConfig returns the portrait working resolution the classifier was
// tuned for: 270x480, mirrored like a selfie camera.
func DefaultConfig() Config {
	return Config{
		Width:     270,
		Height:    480,
		Framerate: 30,
		Mirror:    true,
	}
}

// Portrait reports whether the frame is taller than it is wide.
func (c Config) Portrait() bool {
	return c.Height > c.Width
}

func (c Config) String() string {
	return fmt.Sprintf("%dx%d@%d", c.Width, c.Height, c.Framerate)
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < MinDimension || c.Width > MaxDimension {
		errors = append(errors, fmt.Sprintf("width must be between %d and %d", MinDimension, MaxDimension))
	}
	if c.Height < MinDimension || c.Height > MaxDimension {
		errors = append(errors, fmt.Sprintf("height must be between %d and %d", MinDimension, MaxDimension))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}

	return errors
}

// Capabilities returns the capture limits for the dashboard.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"min_dimension": MinDimension,
		"max_dimension": MaxDimension,
		"max_framerate": MaxFramerate,
		"presets":       PresetNames(),
	}
}
