package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clayworth/gapless/internal/logger"
	"github.com/clayworth/gapless/internal/playback"
	"github.com/clayworth/gapless/internal/player"
	"github.com/clayworth/gapless/internal/store"
)

// playerManager defines the interface required by PlayerHandler for
// session management
type playerManager interface {
	Open(ctx context.Context, bookID uuid.UUID) (*player.Session, error)
	Get(bookID uuid.UUID) (*player.Session, bool)
	Close(bookID uuid.UUID) error
}

// SeekRequest represents a request to move the playhead
type SeekRequest struct {
	PositionSeconds float64 `json:"position_seconds"`
}

// SkipRequest represents a relative playhead move. Negative seconds rewind.
type SkipRequest struct {
	Seconds float64 `json:"seconds" binding:"required"`
}

// VolumeRequest represents a volume change
type VolumeRequest struct {
	Volume float64 `json:"volume"`
}

// RateRequest represents a playback rate change
type RateRequest struct {
	Rate float64 `json:"rate" binding:"required"`
}

// PlayerStateResponse represents the state of one listening session
type PlayerStateResponse struct {
	BookID    string               `json:"book_id"`
	State     playback.PublicState `json:"state"`
	LastError string               `json:"last_error,omitempty"`
}

// PlayerHandler handles listening session API requests
type PlayerHandler struct {
	manager playerManager
}

// NewPlayerHandler creates a new player handler instance
func NewPlayerHandler(manager *player.Manager) *PlayerHandler {
	return &PlayerHandler{manager: manager}
}

// Open handles POST /api/player/:book_id
// Opening an already open book returns its current state unchanged.
func (h *PlayerHandler) Open(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	session, err := h.manager.Open(ctx, bookID)
	if err != nil {
		respondPlaybackError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionState(session))
}

// GetState handles GET /api/player/:book_id
func (h *PlayerHandler) GetState(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionState(session))
}

// Play handles POST /api/player/:book_id/play
func (h *PlayerHandler) Play(c *gin.Context) {
	h.control(c, func(s *player.Session) error {
		return s.Controller.Play()
	})
}

// Pause handles POST /api/player/:book_id/pause
func (h *PlayerHandler) Pause(c *gin.Context) {
	h.control(c, func(s *player.Session) error {
		return s.Controller.Pause()
	})
}

// Seek handles POST /api/player/:book_id/seek
func (h *PlayerHandler) Seek(c *gin.Context) {
	var req SeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}
	h.control(c, func(s *player.Session) error {
		return s.Controller.SeekToVirtualTime(c.Request.Context(), req.PositionSeconds)
	})
}

// Skip handles POST /api/player/:book_id/skip
func (h *PlayerHandler) Skip(c *gin.Context) {
	var req SkipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}
	h.control(c, func(s *player.Session) error {
		if req.Seconds >= 0 {
			return s.Controller.SkipForward(c.Request.Context(), req.Seconds)
		}
		return s.Controller.SkipBackward(c.Request.Context(), -req.Seconds)
	})
}

// SetVolume handles PUT /api/player/:book_id/volume
func (h *PlayerHandler) SetVolume(c *gin.Context) {
	var req VolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}
	h.control(c, func(s *player.Session) error {
		return s.Controller.SetVolume(req.Volume)
	})
}

// SetRate handles PUT /api/player/:book_id/rate
func (h *PlayerHandler) SetRate(c *gin.Context) {
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}
	h.control(c, func(s *player.Session) error {
		return s.Controller.SetPlaybackRate(req.Rate)
	})
}

// Close handles DELETE /api/player/:book_id
func (h *PlayerHandler) Close(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
		return
	}
	if err := h.manager.Close(bookID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "no_session",
			Message: "No open session for book",
		})
		return
	}
	c.JSON(http.StatusOK, DeleteResponse{Message: "Session closed"})
}

// session resolves the path parameter to an open session, writing the
// error response itself on failure.
func (h *PlayerHandler) session(c *gin.Context) (*player.Session, bool) {
	bookID, ok := parseBookID(c)
	if !ok {
		return nil, false
	}
	session, found := h.manager.Get(bookID)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "no_session",
			Message: "No open session for book",
		})
		return nil, false
	}
	return session, true
}

// control runs one controller operation against the session in the path
// and replies with the resulting state.
func (h *PlayerHandler) control(c *gin.Context, op func(*player.Session) error) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := op(session); err != nil {
		respondPlaybackError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionState(session))
}

func sessionState(s *player.Session) PlayerStateResponse {
	resp := PlayerStateResponse{
		BookID: s.BookID.String(),
		State:  s.Controller.State(),
	}
	if err := s.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	return resp
}

// respondPlaybackError maps playback errors to HTTP responses
func respondPlaybackError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrBookNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "book_not_found",
			Message: "Book not found",
		})
		return
	case errors.Is(err, playback.ErrNotReady), errors.Is(err, playback.ErrNotInitialized):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "not_ready",
			Message: "Playback is not ready for that operation",
		})
		return
	}

	var pe *playback.Error
	if errors.As(err, &pe) {
		status := http.StatusInternalServerError
		if pe.Kind == playback.KindResolution {
			status = http.StatusBadGateway
		}
		if pe.Kind == playback.KindInitialization || pe.Kind == playback.KindInvalidTimeline {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, ErrorResponse{
			Error:   pe.Kind.String() + "_error",
			Message: pe.Message,
		})
		return
	}

	logger.Log.Error().Err(err).Msg("Player operation failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Player operation failed",
	})
}

// SetupPlayerRoutes registers listening session routes
func SetupPlayerRoutes(apiGroup *gin.RouterGroup, manager *player.Manager) {
	handler := NewPlayerHandler(manager)
	group := apiGroup.Group("/player")
	{
		group.POST("/:book_id", handler.Open)
		group.GET("/:book_id", handler.GetState)
		group.DELETE("/:book_id", handler.Close)
		group.POST("/:book_id/play", handler.Play)
		group.POST("/:book_id/pause", handler.Pause)
		group.POST("/:book_id/seek", handler.Seek)
		group.POST("/:book_id/skip", handler.Skip)
		group.PUT("/:book_id/volume", handler.SetVolume)
		group.PUT("/:book_id/rate", handler.SetRate)
	}
}
