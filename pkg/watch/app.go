// Package watch wires the camera, model, classification loop and dashboard
// into one application.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/teslashibe/go-maskwatch/internal/config"
	"github.com/teslashibe/go-maskwatch/pkg/camera"
	"github.com/teslashibe/go-maskwatch/pkg/decision"
	"github.com/teslashibe/go-maskwatch/pkg/inference"
	"github.com/teslashibe/go-maskwatch/pkg/maskloop"
	"github.com/teslashibe/go-maskwatch/pkg/preprocess"
	"github.com/teslashibe/go-maskwatch/pkg/web"
)

// App is the mask watcher orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config config.Config
	logger *slog.Logger
	stills []string

	// Pipeline
	source    camera.Source
	engine    inference.Engine
	mapping   decision.Mapping
	resampler preprocess.Resampler
	cameraMgr *camera.Manager

	// Sinks
	webServer *web.Server
	logSink   *maskloop.LogSink

	// Guards the running loop; held across a loop restart.
	mu     sync.Mutex
	loop   *maskloop.Loop
	pre    *preprocess.Preprocessor
	runCtx context.Context
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithSource uses src instead of opening the configured camera.
func WithSource(src camera.Source) Option {
	return func(a *App) { a.source = src }
}

// WithStills replays still images instead of opening the camera.
func WithStills(paths []string) Option {
	return func(a *App) { a.stills = paths }
}

// WithEngine uses e instead of loading the configured model.
func WithEngine(e inference.Engine) Option {
	return func(a *App) { a.engine = e }
}

// New creates an application with the given configuration.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	resampler, err := preprocess.ParseResampler(cfg.Resampler)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:    cfg,
		logger:    slog.Default(),
		resampler: resampler,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "watch")
	return a, nil
}

// Init opens the camera, loads the model and prepares the dashboard.
// Call this after New() and before Run().
func (a *App) Init(ctx context.Context) error {
	camCfg := camera.Config{
		Width:     a.config.CaptureWidth,
		Height:    a.config.CaptureHeight,
		Framerate: framerate(a.config.FPS),
		Mirror:    a.config.Mirror,
	}
	if errs := camCfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("camera config: %v", errs)
	}
	a.cameraMgr = camera.NewManager(camCfg)
	a.logSink = maskloop.NewLogSink(a.logger)

	// The dashboard comes up first so it can show "Loading..." while the
	// model loads.
	if a.config.WebPort != "" {
		a.webServer = web.NewServer(a.config.WebPort, a.logger)
		a.webServer.SetReady(false)
	}

	if err := a.initSource(camCfg); err != nil {
		return err
	}
	if err := a.initEngine(ctx); err != nil {
		a.source.Close()
		return err
	}

	pre, err := preprocess.New(preprocess.Config{Width: camCfg.Width, Height: camCfg.Height, Resampler: a.resampler})
	if err != nil {
		return err
	}
	a.pre = pre

	a.cameraMgr.OnConfigChange = a.applyCameraConfig
	if a.webServer != nil {
		a.webServer.OnGetStats = a.stats
		a.webServer.OnGetCameraConfig = func() interface{} {
			return a.cameraMgr.GetConfigJSON()
		}
		a.webServer.OnSetCameraConfig = a.cameraMgr.UpdateConfig
	}

	a.logger.Info("initialized",
		"source", a.source.Name(),
		"backend", a.engine.Backend(),
		"capture", camCfg.String(),
		"crop", pre.CropBox().String(),
		"resampler", a.resampler,
		"mask_index", a.mapping.MaskIndex,
	)
	return nil
}

func (a *App) initSource(camCfg camera.Config) error {
	if a.source != nil {
		return nil
	}

	var err error
	if len(a.stills) > 0 {
		a.source, err = camera.LoadStillSource(camCfg, a.stills,
			camera.WithRepeat(), camera.WithStillLogger(a.logger))
	} else {
		a.source, err = camera.OpenDevice(a.config.Camera, camCfg, a.logger)
	}
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	return nil
}

func (a *App) initEngine(ctx context.Context) error {
	if a.engine == nil {
		engine, err := inference.Load(ctx, inference.Options{
			Backend:        inference.Backend(a.config.Backend),
			Descriptor:     a.config.ModelDescriptor,
			Weights:        a.config.ModelWeights,
			OnnxRuntimeLib: a.config.OnnxRuntimeLib,
			Logger:         a.logger,
		})
		if err != nil {
			return err
		}
		a.engine = engine
	}

	a.mapping = decision.MappingFromClasses(a.engine.Descriptor().Classes,
		decision.Mapping{MaskIndex: a.config.MaskIndex})
	return nil
}

// Run starts the classification loop and the dashboard.
// Blocks until ctx is cancelled or the camera goes away.
func (a *App) Run(ctx context.Context) error {
	if a.webServer != nil {
		go func() {
			if err := a.webServer.Start(ctx); err != nil {
				a.logger.Error("dashboard stopped", "error", err)
			}
		}()
	}

	a.mu.Lock()
	a.runCtx = ctx
	err := a.startLoopLocked()
	a.mu.Unlock()
	if err != nil {
		return err
	}

	if a.webServer != nil {
		a.webServer.SetReady(true)
	}

	for {
		loop := a.currentLoop()
		select {
		case <-ctx.Done():
			return nil
		case <-loop.Done():
		}

		// A camera reconfiguration swaps the loop while holding a.mu, so
		// once we get the lock the current loop is the one to watch.
		if a.currentLoop() != loop {
			continue
		}
		if err := loop.Err(); err != nil {
			return fmt.Errorf("frame loop: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		return errors.New("frame loop stopped")
	}
}

// startLoopLocked starts a fresh loop with the current preprocessor.
// Caller holds a.mu.
func (a *App) startLoopLocked() error {
	sinks := maskloop.MultiSink{a.logSink}
	if a.webServer != nil {
		sinks = append(sinks, a.webServer)
	}

	loop, err := maskloop.New(maskloop.Config{
		Mapping: a.mapping,
		Pacer:   maskloop.NewRatePacer(a.config.FPS),
	}, maskloop.Deps{
		Source:       a.source,
		Preprocessor: a.pre,
		Engine:       a.engine,
		Sink:         sinks,
		Logger:       a.logger,
	})
	if err != nil {
		return err
	}
	if err := loop.Start(a.runCtx); err != nil {
		return err
	}
	a.loop = loop
	return nil
}

// applyCameraConfig reconfigures the device, then replaces the running
// loop with one whose preprocessor expects the new resolution.
func (a *App) applyCameraConfig(cfg camera.Config) error {
	r, ok := a.source.(camera.Reconfigurable)
	if !ok {
		return fmt.Errorf("source %s cannot be reconfigured", a.source.Name())
	}

	pre, err := preprocess.New(preprocess.Config{Width: cfg.Width, Height: cfg.Height, Resampler: a.resampler})
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Frames of the new size fail preprocessing in the old loop until it
	// is replaced; they are published as Unknown.
	if err := r.Reconfigure(cfg); err != nil {
		return err
	}
	a.pre = pre

	if a.loop == nil || a.runCtx == nil {
		return nil
	}

	a.loop.Cancel()
	<-a.loop.Done()
	if err := a.startLoopLocked(); err != nil {
		return fmt.Errorf("restart loop: %w", err)
	}

	a.logger.Info("camera reconfigured", "capture", cfg.String(), "crop", pre.CropBox().String(), "loop_id", a.loop.ID())
	return nil
}

func (a *App) currentLoop() *maskloop.Loop {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loop
}

// Latest returns the most recent snapshot of the running loop.
func (a *App) Latest() maskloop.Snapshot {
	if l := a.currentLoop(); l != nil {
		return l.Latest()
	}
	return maskloop.Snapshot{}
}

// LoopID returns the ID of the running loop, or "" before Run.
func (a *App) LoopID() string {
	if l := a.currentLoop(); l != nil {
		return l.ID()
	}
	return ""
}

// CameraManager returns the runtime camera config manager.
func (a *App) CameraManager() *camera.Manager {
	return a.cameraMgr
}

// WebServer returns the dashboard, or nil when disabled.
func (a *App) WebServer() *web.Server {
	return a.webServer
}

func (a *App) stats() interface{} {
	out := map[string]interface{}{}
	if l := a.currentLoop(); l != nil {
		out["loop_id"] = l.ID()
		out["status"] = l.Status()
		out["loop"] = l.Stats()
	}
	if s, ok := a.source.(camera.SourceWithStats); ok {
		out["source"] = s.Stats()
	}
	return out
}

// Shutdown stops the loop and releases the camera and the model.
func (a *App) Shutdown() {
	a.mu.Lock()
	loop := a.loop
	a.mu.Unlock()

	if loop != nil {
		loop.Cancel()
		<-loop.Done()
	}
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.logger.Warn("close camera", "error", err)
		}
	}
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			a.logger.Warn("close engine", "error", err)
		}
	}
	a.logger.Info("shut down")
}

// framerate converts the loop rate to a device framerate request.
func framerate(fps float64) int {
	if fps <= 0 {
		return camera.DefaultConfig().Framerate
	}
	return int(math.Min(math.Ceil(fps), camera.MaxFramerate))
}
