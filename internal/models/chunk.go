package models

import (
	"time"

	"github.com/google/uuid"
)

// Chunk represents one independently encoded audio segment of a book.
// Sequence numbers are 0-based and contiguous within a book; the chunk's
// position on the virtual timeline is derived from the durations of the
// chunks before it, never stored.
type Chunk struct {
	ID              uuid.UUID `json:"id" gorm:"type:text;primaryKey;column:id"`
	BookID          uuid.UUID `json:"book_id" gorm:"type:text;not null;index;column:book_id"`
	Sequence        int       `json:"sequence" gorm:"type:integer;not null;uniqueIndex:idx_chunks_book_sequence,composite:book_id;column:sequence"`
	DurationSeconds float64   `json:"duration_seconds" gorm:"type:real;not null;column:duration_seconds" validate:"required,gt=0"`
	ObjectKey       string    `json:"object_key" gorm:"type:text;not null;column:object_key" validate:"required"`
	CreatedAt       time.Time `json:"created_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:created_at"`

	Book *Book `json:"-" gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE"`
}

// NewChunk creates a new Chunk with a generated UUID
func NewChunk(bookID uuid.UUID, sequence int, durationSeconds float64, objectKey string) *Chunk {
	return &Chunk{
		ID:              uuid.New(),
		BookID:          bookID,
		Sequence:        sequence,
		DurationSeconds: durationSeconds,
		ObjectKey:       objectKey,
		CreatedAt:       time.Now().UTC(),
	}
}
