// Package web serves the mask state overlay, a small JSON API and a
// websocket feed of state changes.
package web

import (
	"context"
	_ "embed"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-maskwatch/pkg/hub"
	"github.com/teslashibe/go-maskwatch/pkg/maskloop"
)

//go:embed static/index.html
var indexHTML []byte

// StateView is the state as the dashboard renders it.
type StateView struct {
	maskloop.Snapshot

	Label string `json:"label"`
	Color string `json:"color"`
	Ready bool   `json:"ready"`
}

// Server is the dashboard server. It implements maskloop.Sink.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	ready atomic.Bool
	board *maskloop.Board

	// Hub for websocket broadcast
	stateHub *hub.Hub

	// Stats callback
	OnGetStats func() interface{}

	// Camera API callbacks
	OnGetCameraConfig func() interface{}
	OnSetCameraConfig func(params map[string]interface{}) error
}

// NewServer creates a dashboard server listening on port.
func NewServer(port string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		port:     port,
		logger:   logger,
		board:    maskloop.NewBoard(),
		stateHub: hub.New("state", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Mask Watch",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	// API routes
	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/state", s.handleState)
	api.Get("/stats", s.handleStats)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleSetCamera)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.stateHub.Serve))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured port until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the state hub and serves HTTP on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.stateHub.Run(ctx)
	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown failed", "error", err)
		}
	}()

	s.logger.Info("dashboard listening", "url", "http://"+ln.Addr().String())
	return s.app.Listener(ln)
}

// Publish records a snapshot and pushes it to websocket clients.
func (s *Server) Publish(snap maskloop.Snapshot) {
	s.board.Publish(snap)
	s.broadcast()
}

// SetReady flips the loading indicator. Until ready the overlay shows
// "Loading...".
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	s.broadcast()
}

// Ready reports whether the model is loaded and the loop running.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// State returns the current view.
func (s *Server) State() StateView {
	snap := s.board.Load()
	view := StateView{
		Snapshot: snap,
		Label:    snap.State.Label(),
		Color:    snap.State.Color(),
		Ready:    s.ready.Load(),
	}
	if !view.Ready {
		view.Label = "Loading..."
	}
	return view
}

func (s *Server) broadcast() {
	if err := s.stateHub.PublishJSON(s.State()); err != nil {
		s.logger.Warn("encode state failed", "error", err)
	}
}
