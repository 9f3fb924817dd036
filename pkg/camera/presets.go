package camera

// Preset names for common capture shapes
const (
	PresetPortrait   = "portrait"
	PresetHDPortrait = "hd-portrait"
	PresetSquare     = "square"
	PresetLandscape  = "landscape"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetPortrait:   DefaultConfig(),
		PresetHDPortrait: HDPortraitConfig(),
		PresetSquare:     SquareConfig(),
		PresetLandscape:  LandscapeConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetPortrait,
		PresetHDPortrait,
		PresetSquare,
		PresetLandscape,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// HDPortraitConfig doubles the default portrait resolution.
// Sharper crops at roughly four times the resize cost.
func HDPortraitConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 540
	cfg.Height = 960
	return cfg
}

// SquareConfig captures a square frame; the center crop is a no-op.
func SquareConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 480
	cfg.Height = 480
	return cfg
}

// LandscapeConfig is for fixed webcams mounted sideways to the subject.
func LandscapeConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 480
	cfg.Height = 270
	cfg.Mirror = false
	return cfg
}
