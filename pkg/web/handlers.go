package web

import (
	"errors"
	"slices"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/moodbox/pkg/catalog"
	"github.com/teslashibe/moodbox/pkg/hub"
	"github.com/teslashibe/moodbox/pkg/mood"
	"github.com/teslashibe/moodbox/pkg/playback"
	"github.com/teslashibe/moodbox/pkg/sampler"
	"github.com/teslashibe/moodbox/pkg/session"
)

// historyEntry decorates an event for display.
type historyEntry struct {
	mood.Event
	Emoji string `json:"emoji"`
	Color string `json:"color"`
}

func newHistoryEntry(ev mood.Event) historyEntry {
	return historyEntry{Event: ev, Emoji: ev.Category.Emoji(), Color: ev.Category.Color()}
}

// catalogGroup lists one category's tracks.
type catalogGroup struct {
	Category mood.Category   `json:"category"`
	Emoji    string          `json:"emoji"`
	Tracks   []catalog.Track `json:"tracks"`
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

type emotionRequest struct {
	Category string `json:"category"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	ov, err := s.backend.Overview()
	if err != nil {
		return backendError(err)
	}
	return c.JSON(ov)
}

// handleHistory returns the history most recent first.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	events, err := s.backend.History()
	if err != nil {
		return backendError(err)
	}
	entries := make([]historyEntry, 0, len(events))
	for _, ev := range events {
		entries = append(entries, newHistoryEntry(ev))
	}
	slices.Reverse(entries)
	return c.JSON(entries)
}

func (s *Server) handleCatalog(c *fiber.Ctx) error {
	groups := make([]catalogGroup, 0, len(s.catalog.Categories()))
	for _, cat := range s.catalog.Categories() {
		groups = append(groups, catalogGroup{
			Category: cat,
			Emoji:    cat.Emoji(),
			Tracks:   s.catalog.TracksFor(cat),
		})
	}
	return c.JSON(groups)
}

func (s *Server) handleTransport(c *fiber.Ctx) error {
	var err error
	switch cmd := c.Params("command"); cmd {
	case "play":
		err = s.backend.Play()
	case "pause":
		err = s.backend.Pause()
	case "toggle":
		err = s.backend.Toggle()
	case "skip", "next":
		err = s.backend.Skip()
	case "mute":
		err = s.backend.ToggleMute()
	default:
		return fiber.NewError(fiber.StatusBadRequest, "unknown transport command "+cmd)
	}
	if err != nil {
		return backendError(err)
	}
	return s.handleStatus(c)
}

func (s *Server) handleVolume(c *fiber.Ctx) error {
	var req volumeRequest
	if err := c.BodyParser(&req); err != nil || req.Volume == nil {
		return fiber.NewError(fiber.StatusBadRequest, "body must be {\"volume\": 0..1}")
	}
	if v := *req.Volume; v < 0 || v > 1 {
		return fiber.NewError(fiber.StatusBadRequest, "volume must be between 0 and 1")
	}
	if err := s.backend.SetVolume(*req.Volume); err != nil {
		return backendError(err)
	}
	return s.handleStatus(c)
}

func (s *Server) handleEmotion(c *fiber.Ctx) error {
	var req emotionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "body must be {\"category\": name}")
	}
	cat, err := mood.ParseCategory(req.Category)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.backend.InjectEmotion(cat); err != nil {
		return backendError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"category": cat})
}

// backendError maps domain errors onto HTTP status codes.
func backendError(err error) error {
	switch {
	case errors.Is(err, playback.ErrNothingLoaded), errors.Is(err, playback.ErrPlaybackRejected):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, mood.ErrUnknownCategory):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, sampler.ErrDemoQueueFull):
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	case errors.Is(err, session.ErrClosed), errors.Is(err, session.ErrNotStarted):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}

func (s *Server) handleStatusWS(c *websocket.Conn) {
	var greeting []hub.Message
	if ov, err := s.backend.Overview(); err == nil {
		if msg, err := hub.NewEnvelope("overview", ov); err == nil {
			greeting = append(greeting, msg)
		}
	}
	s.statusHub.Serve(c, greeting...)
}

func (s *Server) handleEmotionsWS(c *websocket.Conn) {
	var greeting []hub.Message
	if events, err := s.backend.History(); err == nil {
		for _, ev := range events {
			if msg, err := hub.NewEnvelope("emotion", newHistoryEntry(ev)); err == nil {
				greeting = append(greeting, msg)
			}
		}
	}
	s.emotionHub.Serve(c, greeting...)
}

func (s *Server) handleCameraWS(c *websocket.Conn) {
	s.cameraHub.Serve(c)
}
