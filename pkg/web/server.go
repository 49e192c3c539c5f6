// Package web serves the most recent converted images over HTTP and pushes
// new ones to websocket clients.
package web

import (
	"errors"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/teslashibe/go-spot/pkg/hub"
	"github.com/teslashibe/go-spot/pkg/protocol"
	"github.com/teslashibe/go-spot/pkg/spot"
)

// DefaultPreviewQuality is the JPEG quality of published previews.
const DefaultPreviewQuality = 80

// published is the latest image of one source.
type published struct {
	data    protocol.ImageData
	preview []byte
}

// Server publishes converted image batches.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	previewQuality int
	synchronized   func() bool

	mu     sync.RWMutex
	latest map[spot.ImageSource]published
	status protocol.StatusData

	// Hubs for websocket broadcast
	framesHub *hub.Hub
	statusHub *hub.Hub
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPreviewQuality sets the JPEG quality of previews, 1-100.
func WithPreviewQuality(q int) Option {
	return func(s *Server) { s.previewQuality = q }
}

// WithSyncState reports whether the clock skew estimate has converged.
// Without it the server counts as synchronized once a batch is published.
func WithSyncState(fn func() bool) Option {
	return func(s *Server) { s.synchronized = fn }
}

// NewServer creates a new image server
func NewServer(port string, opts ...Option) *Server {
	s := &Server{
		port:           port,
		logger:         slog.Default(),
		previewQuality: DefaultPreviewQuality,
		latest:         make(map[spot.ImageSource]published),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.framesHub = hub.New("frames", hub.WithLogger(s.logger), hub.WithHandler(s.handleClientMessage))
	s.statusHub = hub.New("status", hub.WithLogger(s.logger), hub.WithHandler(s.handleClientMessage))

	app := fiber.New(fiber.Config{
		AppName:               "Spot Images",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/sources", s.handleListSources)
	api.Get("/sources/:name/camera_info", s.handleCameraInfo)
	api.Get("/sources/:name/image.jpg", s.handlePreview)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/frames", websocket.New(s.handleFramesWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) startHubs() {
	go s.framesHub.Run()
	go s.statusHub.Run()
}

// Start starts the server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("image server listening", "url", "http://localhost:"+s.port)
	s.startHubs()
	return s.app.Listen(":" + s.port)
}

// Serve serves on an existing listener and blocks until it stops.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("image server listening", "addr", ln.Addr().String())
	s.startHubs()
	return s.app.Listener(ln)
}

// StartAsync starts the server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("image server stopped", "error", err)
		}
	}()
}

// Publish stores a batch as the latest images and pushes it to clients. For
// each image an image message is broadcast followed by its JPEG preview.
func (s *Server) Publish(batch *spot.BatchResult) {
	if batch == nil {
		return
	}

	sources := batch.Sources()
	sort.Slice(sources, func(i, j int) bool { return sources[i].String() < sources[j].String() })

	for _, src := range sources {
		iwc := batch.Images[src]
		preview, err := spot.EncodePreviewJPEG(iwc.Image, s.previewQuality)
		if err != nil {
			s.logger.Warn("preview failed", "source", src.String(), "error", err)
			preview = nil
		}
		data := protocol.NewImageData(batch.ID, src, iwc, len(preview))

		s.mu.Lock()
		s.latest[src] = published{data: data, preview: preview}
		s.mu.Unlock()

		msg, err := protocol.NewImageMessage(data)
		if err != nil {
			s.logger.Error("encode image message", "source", src.String(), "error", err)
			continue
		}
		s.broadcast(s.framesHub, msg)
		if len(preview) > 0 {
			s.framesHub.BroadcastBinary(preview)
		}
	}

	for _, f := range batch.Failures {
		if msg, err := protocol.NewFailureMessage(batch.ID, f); err == nil {
			s.broadcast(s.framesHub, msg)
		}
	}

	s.mu.Lock()
	s.status.Batches++
	s.status.Failures += uint64(len(batch.Failures))
	s.status.LastBatchID = batch.ID.String()
	s.status.LastBatchAt = time.Now().UnixMilli()
	if batch.Skew != nil {
		s.status.ClockSkew = batch.Skew.AsDuration().String()
	}
	s.mu.Unlock()

	if msg, err := protocol.NewStatusMessage(s.Status()); err == nil {
		s.broadcast(s.statusHub, msg)
	}
}

// Status returns the current server state.
func (s *Server) Status() protocol.StatusData {
	s.mu.RLock()
	st := s.status
	st.Sources = make([]string, 0, len(s.latest))
	for src := range s.latest {
		st.Sources = append(st.Sources, src.String())
	}
	s.mu.RUnlock()

	sort.Strings(st.Sources)
	if s.synchronized != nil {
		st.Synchronized = s.synchronized()
	} else {
		st.Synchronized = st.Batches > 0
	}
	st.Clients = s.framesHub.ClientCount() + s.statusHub.ClientCount()
	return st
}

func (s *Server) broadcast(h *hub.Hub, msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		s.logger.Error("encode message", "type", string(msg.Type), "error", err)
		return
	}
	h.Broadcast(hub.NewJSONMessage(data))
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.framesHub.Stop()
	s.statusHub.Stop()
	return s.app.Shutdown()
}
