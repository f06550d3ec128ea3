// Package web serves the moodbox dashboard: a JSON API over the running
// session plus websocket feeds for status, emotions and the annotated
// camera view.
package web

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/moodbox/internal/log"
	"github.com/teslashibe/moodbox/pkg/catalog"
	"github.com/teslashibe/moodbox/pkg/hub"
	"github.com/teslashibe/moodbox/pkg/mood"
	"github.com/teslashibe/moodbox/pkg/playback"
	"github.com/teslashibe/moodbox/pkg/session"
)

//go:embed static
var embedded embed.FS

// Backend is the session surface the dashboard drives.
type Backend interface {
	Overview() (session.Overview, error)
	History() ([]mood.Event, error)
	Play() error
	Pause() error
	Toggle() error
	Skip() error
	ToggleMute() error
	SetVolume(v float64) error
	InjectEmotion(cat mood.Category) error
}

// Config configures the server.
type Config struct {
	Addr string

	// Static is an optional directory that replaces the embedded dashboard.
	Static string
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg     Config
	app     *fiber.App
	backend Backend
	catalog *catalog.Catalog
	logger  *slog.Logger

	statusHub  *hub.Hub
	emotionHub *hub.Hub
	cameraHub  *hub.Hub
}

// NewServer wires routes over backend.
func NewServer(cfg Config, backend Backend, cat *catalog.Catalog) *Server {
	s := &Server{
		cfg:        cfg,
		backend:    backend,
		catalog:    cat,
		logger:     log.With("component", "web"),
		statusHub:  hub.New("status"),
		emotionHub: hub.New("emotions"),
		cameraHub:  hub.New("camera"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "moodbox",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/history", s.handleHistory)
	api.Get("/catalog", s.handleCatalog)
	api.Post("/transport/:command", s.handleTransport)
	api.Post("/volume", s.handleVolume)
	api.Post("/emotion", s.handleEmotion)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/emotions", websocket.New(s.handleEmotionsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	if dir := cfg.Static; dir != "" && isDir(dir) {
		app.Static("/", dir)
	} else {
		sub, _ := fs.Sub(embedded, "static")
		app.Use("/", filesystem.New(filesystem.Config{
			Root:  http.FS(sub),
			Index: "index.html",
		}))
	}

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.emotionHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "url", "http://"+s.cfg.Addr)
		errc <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil {
			return err
		}
		return nil
	}
}

// PublishState pushes a playback snapshot to status clients.
func (s *Server) PublishState(snap playback.Snapshot) {
	s.publish(s.statusHub, "playback", snap)
}

// PublishStatus pushes a session status change.
func (s *Server) PublishStatus(st session.Status) {
	s.publish(s.statusHub, "status", st)
}

// PublishTrack announces a track change.
func (s *Server) PublishTrack(t catalog.Track) {
	s.publish(s.statusHub, "track", t)
}

// PublishEmotion pushes an accepted emotion event.
func (s *Server) PublishEmotion(ev mood.Event) {
	s.publish(s.emotionHub, "emotion", newHistoryEntry(ev))
}

// PublishError reports a non-fatal playback problem.
func (s *Server) PublishError(err error) {
	s.publish(s.statusHub, "error", fiber.Map{"message": err.Error()})
}

// SendCameraFrame pushes an annotated JPEG to camera clients.
func (s *Server) SendCameraFrame(jpeg []byte) {
	s.cameraHub.BroadcastBinary(jpeg)
}

func (s *Server) publish(h *hub.Hub, kind string, v any) {
	if err := h.Publish(kind, v); err != nil {
		s.logger.Warn("publish failed", "kind", kind, "error", err)
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
