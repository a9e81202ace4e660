// Package store provides the book catalog service: ingest of synthesized
// books with their chunk tables, and the ordered chunk metadata the playback
// engine builds its timeline from.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clayworth/gapless/internal/db"
	"github.com/clayworth/gapless/internal/logger"
	"github.com/clayworth/gapless/internal/models"
	"github.com/clayworth/gapless/internal/timeline"
)

// ChunkInput describes one chunk of a book being ingested.
type ChunkInput struct {
	Sequence        int     `json:"sequence"`
	DurationSeconds float64 `json:"duration_seconds" binding:"required,gt=0"`
	ObjectKey       string  `json:"object_key" binding:"required"`
}

// CreateBookInput describes a book being ingested from the synthesis pipeline.
type CreateBookInput struct {
	Title    string       `json:"title" binding:"required"`
	Author   string       `json:"author"`
	Narrator *string      `json:"narrator,omitempty"`
	Chunks   []ChunkInput `json:"chunks" binding:"required"`
}

// Service handles catalog operations for books and their chunks
type Service struct {
	database *db.DB
	repos    *db.Repositories
}

// NewService creates a new catalog service instance
func NewService(database *db.DB, repos *db.Repositories) *Service {
	return &Service{
		database: database,
		repos:    repos,
	}
}

// CreateBook validates and persists a book together with its chunk table.
// The chunk metadata must form a valid timeline (contiguous sequences from
// 0, positive durations); timeline.ErrInvalidTimeline is returned otherwise.
// Book and chunks are written in one transaction.
func (s *Service) CreateBook(ctx context.Context, input CreateBookInput) (*models.Book, error) {
	if input.Title == "" {
		return nil, ErrInvalidTitle
	}
	if len(input.Chunks) == 0 {
		return nil, ErrNoChunks
	}

	// Validate the chunk table by building the timeline it would produce
	infos := make([]timeline.ChunkInfo, len(input.Chunks))
	for i, c := range input.Chunks {
		infos[i] = timeline.ChunkInfo{Sequence: c.Sequence, DurationSeconds: c.DurationSeconds}
	}
	tl, err := timeline.New(infos)
	if err != nil {
		return nil, err
	}

	book := models.NewBook(input.Title, input.Author)
	book.Narrator = input.Narrator
	book.DurationSeconds = tl.TotalDuration()
	book.ChunkCount = len(input.Chunks)

	chunks := make([]*models.Chunk, len(input.Chunks))
	for i, c := range input.Chunks {
		chunks[i] = models.NewChunk(book.ID, c.Sequence, c.DurationSeconds, c.ObjectKey)
	}

	err = s.database.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.repos.Books.CreateTx(tx, book); err != nil {
			return err
		}
		return s.repos.Chunks.CreateBatchTx(tx, chunks)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist book: %w", err)
	}

	logger.Log.Info().
		Str("book_id", book.ID.String()).
		Str("title", book.Title).
		Int("chunks", book.ChunkCount).
		Float64("duration_seconds", book.DurationSeconds).
		Msg("Book ingested")

	return book, nil
}

// GetBook retrieves a single book by ID
func (s *Service) GetBook(ctx context.Context, bookID uuid.UUID) (*models.Book, error) {
	book, err := s.repos.Books.GetByID(ctx, bookID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// ListBooks retrieves books with pagination
func (s *Service) ListBooks(ctx context.Context, limit, offset int) ([]*models.Book, error) {
	return s.repos.Books.List(ctx, limit, offset)
}

// DeleteBook removes a book and its chunks in one transaction
func (s *Service) DeleteBook(ctx context.Context, bookID uuid.UUID) error {
	err := s.database.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.repos.Chunks.DeleteByBookTx(tx, bookID); err != nil {
			return err
		}
		return s.repos.Books.DeleteTx(tx, bookID)
	})
	if err != nil {
		if db.IsNotFound(err) {
			return ErrBookNotFound
		}
		return fmt.Errorf("failed to delete book: %w", err)
	}
	return nil
}

// GetBookChunks returns the ordered chunk metadata the playback engine
// builds its timeline from. This is the metadata-service contract: the
// result is orderable by sequence and the total duration is derived from
// the per-chunk durations, never trusted separately.
func (s *Service) GetBookChunks(ctx context.Context, bookID uuid.UUID) ([]timeline.ChunkInfo, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	chunks, err := s.repos.Chunks.GetByBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}

	infos := make([]timeline.ChunkInfo, len(chunks))
	for i, c := range chunks {
		infos[i] = timeline.ChunkInfo{Sequence: c.Sequence, DurationSeconds: c.DurationSeconds}
	}
	return infos, nil
}

// GetChunkMedia returns the storage key and duration of one chunk, used by
// the development signer to mint playable URLs.
func (s *Service) GetChunkMedia(ctx context.Context, bookID uuid.UUID, sequence int) (string, float64, error) {
	chunk, err := s.repos.Chunks.GetBySequence(ctx, bookID, sequence)
	if err != nil {
		if db.IsNotFound(err) {
			return "", 0, ErrBookNotFound
		}
		return "", 0, fmt.Errorf("failed to get chunk: %w", err)
	}
	return chunk.ObjectKey, chunk.DurationSeconds, nil
}
