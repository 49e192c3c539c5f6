package web

import (
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-spot/pkg/hub"
	"github.com/teslashibe/go-spot/pkg/protocol"
	"github.com/teslashibe/go-spot/pkg/spot"
)

// handleStatus returns the server state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

// handleListSources returns metadata of the latest image of every source
func (s *Server) handleListSources(c *fiber.Ctx) error {
	st := s.Status()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.ImageData, 0, len(st.Sources))
	for _, name := range st.Sources {
		var src spot.ImageSource
		if err := src.UnmarshalText([]byte(name)); err != nil {
			continue
		}
		if p, ok := s.latest[src]; ok {
			out = append(out, p.data)
		}
	}
	return c.JSON(out)
}

// lookup resolves the :name parameter, a vendor source name such as
// "frontleft_depth", to the latest published image.
func (s *Server) lookup(c *fiber.Ctx) (published, error) {
	src, err := spot.ParseSourceName(c.Params("name"))
	if err != nil {
		return published{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	s.mu.RLock()
	p, ok := s.latest[src]
	s.mu.RUnlock()
	if !ok {
		return published{}, fiber.NewError(fiber.StatusNotFound, "no image published for "+src.String())
	}
	return p, nil
}

// handleCameraInfo returns the calibration of a source's latest image
func (s *Server) handleCameraInfo(c *fiber.Ctx) error {
	p, err := s.lookup(c)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(p.data.CameraInfo)
}

// handlePreview returns the JPEG preview of a source's latest image
func (s *Server) handlePreview(c *fiber.Ctx) error {
	p, err := s.lookup(c)
	if err != nil {
		return jsonError(c, err)
	}
	if len(p.preview) == 0 {
		return jsonError(c, fiber.NewError(fiber.StatusNotFound, "no preview for "+p.data.Source))
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(p.preview)
}

func jsonError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// handleFramesWS streams image messages and previews
func (s *Server) handleFramesWS(c *websocket.Conn) {
	hub.NewClient(s.framesHub, c).Run()
}

// handleStatusWS sends the current status, then every update
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.statusHub, c)
	if msg, err := protocol.NewStatusMessage(s.Status()); err == nil {
		if data, err := msg.Bytes(); err == nil {
			client.Send(hub.NewJSONMessage(data))
		}
	}
	client.Run()
}

// handleClientMessage answers pings from websocket clients
func (s *Server) handleClientMessage(c *hub.Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.logger.Debug("ignoring client message", "error", err)
		return
	}
	if msg.Type != protocol.TypePing {
		return
	}
	ping, err := msg.GetPingData()
	if err != nil {
		return
	}
	pingTS := ping.Timestamp
	if pingTS == 0 {
		pingTS = msg.Timestamp
	}
	pong, err := protocol.NewPongMessage(ping.ID, pingTS, time.Now().UnixMilli())
	if err != nil {
		return
	}
	if data, err := pong.Bytes(); err == nil {
		c.Send(hub.NewJSONMessage(data))
	}
}
