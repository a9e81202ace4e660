package signer

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clayworth/gapless/internal/logger"
)

// ChunkSource supplies the storage key and duration behind one chunk. The
// catalog service implements it.
type ChunkSource interface {
	GetChunkMedia(ctx context.Context, bookID uuid.UUID, sequence int) (string, float64, error)
}

// Handler serves the resolve endpoint and signed media paths.
type Handler struct {
	signer *Service
	chunks ChunkSource
}

// NewHandler creates a signing endpoint handler.
func NewHandler(signer *Service, chunks ChunkSource) *Handler {
	return &Handler{signer: signer, chunks: chunks}
}

// resolveRequest is the wire format of a batched resolution call
type resolveRequest struct {
	BookID       string `json:"book_id" binding:"required"`
	ChunkIndices []int  `json:"chunk_indices" binding:"required"`
}

// resolveResponse mirrors what an external signing backend would return.
// URL map keys are chunk indices in decimal string form.
type resolveResponse struct {
	URLs             map[string]string `json:"urls"`
	ExpiresInSeconds int64             `json:"expires_in_seconds"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Resolve handles POST /v1/resolve: it mints a signed URL for every
// requested chunk of the book.
func (h *Handler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	bookID, err := uuid.Parse(req.BookID)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:   "invalid_id",
			Message: "Invalid book ID format",
		})
		return
	}
	if len(req.ChunkIndices) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:   "invalid_request",
			Message: "chunk_indices must not be empty",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	urls := make(map[string]string, len(req.ChunkIndices))
	for _, index := range req.ChunkIndices {
		objectKey, duration, err := h.chunks.GetChunkMedia(ctx, bookID, index)
		if err != nil {
			logger.Log.Warn().
				Err(err).
				Str("book_id", bookID.String()).
				Int("chunk_index", index).
				Msg("Resolve request for unknown chunk")
			c.JSON(http.StatusNotFound, errorResponse{
				Error:   "chunk_not_found",
				Message: "Unknown book or chunk index",
			})
			return
		}
		urls[strconv.Itoa(index)] = h.signer.SignURL(objectKey, duration)
	}

	c.JSON(http.StatusOK, resolveResponse{
		URLs:             urls,
		ExpiresInSeconds: int64(h.signer.TTL().Seconds()),
	})
}

// Media handles GET /media/*object_key: it verifies the signature and
// expiry. Audio bytes live in object storage; this endpoint exists so
// signed URLs can be validated end to end in development.
func (h *Handler) Media(c *gin.Context) {
	objectKey := c.Param("object_key")
	if len(objectKey) > 0 && objectKey[0] == '/' {
		objectKey = objectKey[1:]
	}

	if err := h.signer.Verify(objectKey, c.Request.URL.Query()); err != nil {
		c.JSON(http.StatusForbidden, errorResponse{
			Error:   "invalid_signature",
			Message: err.Error(),
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// SetupResolveRoutes registers the signing backend routes on the router
// root: the resolve endpoint under /v1 and the signed media paths.
func SetupResolveRoutes(router *gin.Engine, signer *Service, chunks ChunkSource) {
	handler := NewHandler(signer, chunks)
	router.POST("/v1/resolve", handler.Resolve)
	router.GET("/media/*object_key", handler.Media)
}
