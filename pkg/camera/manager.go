package camera

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Manager holds the active capture configuration. Changes go through
// OnConfigChange before they are stored, one at a time.
type Manager struct {
	mu      sync.RWMutex
	current Config

	// applyMu serializes SetConfig so two updates never reach the device at
	// once.
	applyMu sync.Mutex

	// OnConfigChange applies cfg to the running pipeline. A non-nil error
	// rejects the change and the previous config stays active.
	OnConfigChange func(cfg Config) error
}

// Patch is a partial update. Nil fields keep their current value; Preset,
// when set, replaces the base config before the other fields apply.
type Patch struct {
	Preset    string `json:"preset,omitempty"`
	Width     *int   `json:"width,omitempty"`
	Height    *int   `json:"height,omitempty"`
	Framerate *int   `json:"framerate,omitempty"`
	Mirror    *bool  `json:"mirror,omitempty"`
}

// NewManager creates a manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{current: cfg}
}

// GetConfig returns the active configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetConfig validates cfg, applies it and makes it active.
func (m *Manager) SetConfig(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("validation failed: %s", strings.Join(problems, "; "))
	}

	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	if apply := m.OnConfigChange; apply != nil {
		if err := apply(cfg); err != nil {
			return fmt.Errorf("failed to apply config: %w", err)
		}
	}

	m.mu.Lock()
	m.current = cfg
	m.mu.Unlock()
	return nil
}

// Apply merges p into the active configuration and sets the result.
func (m *Manager) Apply(p Patch) error {
	cfg := m.GetConfig()

	if p.Preset != "" {
		preset := GetPreset(p.Preset)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", p.Preset)
		}
		cfg = *preset
	}
	if p.Width != nil {
		cfg.Width = *p.Width
	}
	if p.Height != nil {
		cfg.Height = *p.Height
	}
	if p.Framerate != nil {
		cfg.Framerate = *p.Framerate
	}
	if p.Mirror != nil {
		cfg.Mirror = *p.Mirror
	}

	return m.SetConfig(cfg)
}

// UpdateConfig applies a decoded JSON body, as received by the dashboard.
// Unknown keys are ignored.
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode camera update: %w", err)
	}
	var p Patch
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("invalid camera update: %w", err)
	}
	return m.Apply(p)
}

// GetConfigJSON returns the active config as a generic map.
func (m *Manager) GetConfigJSON() map[string]interface{} {
	cfg := m.GetConfig()
	return map[string]interface{}{
		"width":     cfg.Width,
		"height":    cfg.Height,
		"framerate": cfg.Framerate,
		"mirror":    cfg.Mirror,
	}
}
