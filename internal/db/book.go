package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clayworth/gapless/internal/models"
)

// BookRepository handles database operations for books
type BookRepository struct {
	db *DB
}

// NewBookRepository creates a new book repository
func NewBookRepository(db *DB) *BookRepository {
	return &BookRepository{db: db}
}

// CreateTx inserts a new book using an existing transaction
func (r *BookRepository) CreateTx(tx *gorm.DB, book *models.Book) error {
	if err := tx.Create(book).Error; err != nil {
		return fmt.Errorf("failed to create book: %w", MapGormError(err))
	}
	return nil
}

// GetByID retrieves a book by its UUID
func (r *BookRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	var book models.Book
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&book)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &book, nil
}

// List retrieves all books ordered by creation time, with pagination
func (r *BookRepository) List(ctx context.Context, limit, offset int) ([]*models.Book, error) {
	var books []*models.Book
	query := r.db.WithContext(ctx).Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&books).Error; err != nil {
		return nil, fmt.Errorf("failed to list books: %w", MapGormError(err))
	}
	return books, nil
}

// DeleteTx removes a book using an existing transaction
func (r *BookRepository) DeleteTx(tx *gorm.DB, id uuid.UUID) error {
	result := tx.Where("id = ?", id.String()).Delete(&models.Book{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete book: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
