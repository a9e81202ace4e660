package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clayworth/gapless/internal/models"
)

// ChunkRepository handles database operations for audio chunks
type ChunkRepository struct {
	db *DB
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// CreateBatchTx inserts a set of chunks using an existing transaction
func (r *ChunkRepository) CreateBatchTx(tx *gorm.DB, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := tx.Create(chunks).Error; err != nil {
		return fmt.Errorf("failed to create chunks: %w", MapGormError(err))
	}
	return nil
}

// GetByBook retrieves all chunks for a book ordered by sequence
func (r *ChunkRepository) GetByBook(ctx context.Context, bookID uuid.UUID) ([]*models.Chunk, error) {
	var chunks []*models.Chunk
	err := r.db.WithContext(ctx).
		Where("book_id = ?", bookID.String()).
		Order("sequence ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", MapGormError(err))
	}
	return chunks, nil
}

// GetBySequence retrieves a single chunk of a book by its sequence number
func (r *ChunkRepository) GetBySequence(ctx context.Context, bookID uuid.UUID, sequence int) (*models.Chunk, error) {
	var chunk models.Chunk
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND sequence = ?", bookID.String(), sequence).
		First(&chunk).Error
	if err != nil {
		return nil, MapGormError(err)
	}
	return &chunk, nil
}

// DeleteByBookTx removes all chunks of a book using an existing transaction
func (r *ChunkRepository) DeleteByBookTx(tx *gorm.DB, bookID uuid.UUID) error {
	if err := tx.Where("book_id = ?", bookID.String()).Delete(&models.Chunk{}).Error; err != nil {
		return fmt.Errorf("failed to delete chunks: %w", MapGormError(err))
	}
	return nil
}
