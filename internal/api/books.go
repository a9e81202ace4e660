// Package api provides HTTP handlers for the REST API endpoints.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clayworth/gapless/internal/logger"
	"github.com/clayworth/gapless/internal/models"
	"github.com/clayworth/gapless/internal/store"
	"github.com/clayworth/gapless/internal/timeline"
)

// Request/Response DTOs

// BookListResponse represents a paginated list of books
type BookListResponse struct {
	Items  []*models.Book `json:"items"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// TimelineChunk is one chunk of a book's virtual timeline
type TimelineChunk struct {
	Sequence        int     `json:"sequence"`
	DurationSeconds float64 `json:"duration_seconds"`
	VirtualStart    float64 `json:"virtual_start"`
}

// TimelineResponse represents the stitched timeline of a book
type TimelineResponse struct {
	BookID               string          `json:"book_id"`
	TotalDurationSeconds float64         `json:"total_duration_seconds"`
	BoundaryOffsets      []float64       `json:"boundary_offsets"`
	Chunks               []TimelineChunk `json:"chunks"`
}

// DeleteResponse represents a successful delete operation
type DeleteResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// BookHandler handles catalog API requests
type BookHandler struct {
	books *store.Service
}

// NewBookHandler creates a new catalog handler instance
func NewBookHandler(books *store.Service) *BookHandler {
	return &BookHandler{books: books}
}

// CreateBook handles POST /api/books
func (h *BookHandler) CreateBook(c *gin.Context) {
	var input store.CreateBookInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	book, err := h.books.CreateBook(c.Request.Context(), input)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTitle) ||
			errors.Is(err, store.ErrNoChunks) ||
			errors.Is(err, timeline.ErrInvalidTimeline) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_book",
				Message: err.Error(),
			})
			return
		}
		logger.Log.Error().Err(err).Msg("Failed to ingest book")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "ingest_failed",
			Message: "Failed to ingest book",
		})
		return
	}

	c.JSON(http.StatusCreated, book)
}

// ListBooks handles GET /api/books
func (h *BookHandler) ListBooks(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	books, err := h.books.ListBooks(c.Request.Context(), limit, offset)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to list books")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list books",
		})
		return
	}

	c.JSON(http.StatusOK, BookListResponse{
		Items:  books,
		Limit:  limit,
		Offset: offset,
	})
}

// GetBook handles GET /api/books/:book_id
func (h *BookHandler) GetBook(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
		return
	}

	book, err := h.books.GetBook(c.Request.Context(), bookID)
	if err != nil {
		respondBookError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// GetTimeline handles GET /api/books/:book_id/timeline
func (h *BookHandler) GetTimeline(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
		return
	}

	infos, err := h.books.GetBookChunks(c.Request.Context(), bookID)
	if err != nil {
		respondBookError(c, err)
		return
	}
	tl, err := timeline.New(infos)
	if err != nil {
		logger.Log.Error().
			Err(err).
			Str("book_id", bookID.String()).
			Msg("Stored chunk table no longer forms a valid timeline")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "invalid_timeline",
			Message: "Stored chunk metadata is inconsistent",
		})
		return
	}

	chunks := make([]TimelineChunk, len(infos))
	offsets := tl.BoundaryOffsets()
	for i, info := range infos {
		chunks[i] = TimelineChunk{
			Sequence:        info.Sequence,
			DurationSeconds: info.DurationSeconds,
			VirtualStart:    offsets[i],
		}
	}

	c.JSON(http.StatusOK, TimelineResponse{
		BookID:               bookID.String(),
		TotalDurationSeconds: tl.TotalDuration(),
		BoundaryOffsets:      offsets,
		Chunks:               chunks,
	})
}

// DeleteBook handles DELETE /api/books/:book_id
func (h *BookHandler) DeleteBook(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
		return
	}

	if err := h.books.DeleteBook(c.Request.Context(), bookID); err != nil {
		respondBookError(c, err)
		return
	}

	logger.Log.Info().
		Str("book_id", bookID.String()).
		Msg("Book deleted")

	c.JSON(http.StatusOK, DeleteResponse{Message: "Book deleted"})
}

// parseBookID extracts and validates the book_id path parameter, writing
// the error response itself on failure.
func parseBookID(c *gin.Context) (uuid.UUID, bool) {
	bookID, err := uuid.Parse(c.Param("book_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid book ID format",
		})
		return uuid.Nil, false
	}
	return bookID, true
}

// respondBookError maps catalog errors to HTTP responses
func respondBookError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrBookNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "book_not_found",
			Message: "Book not found",
		})
		return
	}
	logger.Log.Error().Err(err).Msg("Catalog operation failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Catalog operation failed",
	})
}

// SetupBookRoutes registers catalog routes
func SetupBookRoutes(apiGroup *gin.RouterGroup, books *store.Service) {
	handler := NewBookHandler(books)
	group := apiGroup.Group("/books")
	{
		group.POST("", handler.CreateBook)
		group.GET("", handler.ListBooks)
		group.GET("/:book_id", handler.GetBook)
		group.GET("/:book_id/timeline", handler.GetTimeline)
		group.DELETE("/:book_id", handler.DeleteBook)
	}
}
