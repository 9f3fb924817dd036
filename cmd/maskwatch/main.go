// maskwatch classifies a live camera feed as masked or unmasked and shows
// the result on a local dashboard.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/teslashibe/go-maskwatch/internal/config"
	"github.com/teslashibe/go-maskwatch/internal/log"
	"github.com/teslashibe/go-maskwatch/pkg/watch"
)

func main() {
	cfg, stills, err := parseFlags()
	log.Init(cfg.LogLevel)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	app, err := watch.New(cfg, watch.WithLogger(log.L()), watch.WithStills(stills))
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}
	log.Info("starting maskwatch",
		"camera", cfg.Camera,
		"model", cfg.ModelWeights,
		"backend", cfg.Backend,
		"fps", cfg.FPS,
		"stills", len(stills),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}

// parseFlags loads env/.env configuration and applies flag overrides.
func parseFlags() (config.Config, []string, error) {
	envFile := flag.String("env", ".env", "Optional .env file")
	cameraID := flag.String("camera", "", "Camera index or stream URL (overrides MASKWATCH_CAMERA)")
	descriptor := flag.String("model", "", "Model descriptor JSON (overrides MASKWATCH_MODEL_DESCRIPTOR)")
	weights := flag.String("weights", "", "Model weights file (overrides MASKWATCH_MODEL_WEIGHTS)")
	backend := flag.String("backend", "", "Inference backend: onnx, opencv")
	port := flag.String("port", "", "Dashboard port (overrides MASKWATCH_WEB_PORT)")
	fps := flag.Float64("fps", -1, "Maximum classifications per second, 0 for unpaced")
	stills := flag.String("stills", "", "Comma-separated images to replay instead of the camera")
	noMirror := flag.Bool("no-mirror", false, "Do not mirror frames")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return config.Default(), nil, err
	}

	if *cameraID != "" {
		cfg.Camera = *cameraID
	}
	if *descriptor != "" {
		cfg.ModelDescriptor = *descriptor
	}
	if *weights != "" {
		cfg.ModelWeights = *weights
	}
	if *backend != "" {
		cfg.Backend = strings.ToLower(*backend)
	}
	if *port != "" {
		cfg.WebPort = *port
	}
	if *fps >= 0 {
		cfg.FPS = *fps
	}
	if *noMirror {
		cfg.Mirror = false
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	var paths []string
	for _, p := range strings.Split(*stills, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return cfg, paths, nil
}
