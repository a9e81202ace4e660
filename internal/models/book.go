package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Book represents one synthesized audiobook in the library.
type Book struct {
	ID              uuid.UUID `json:"id" gorm:"type:text;primaryKey;column:id"`
	Title           string    `json:"title" gorm:"type:text;not null;column:title" validate:"required,min=1,max=512"`
	Author          string    `json:"author" gorm:"type:text;not null;column:author"`
	Narrator        *string   `json:"narrator,omitempty" gorm:"type:text;column:narrator"`
	DurationSeconds float64   `json:"duration_seconds" gorm:"type:real;not null;default:0;column:duration_seconds"`
	ChunkCount      int       `json:"chunk_count" gorm:"type:integer;not null;default:0;column:chunk_count"`
	CreatedAt       time.Time `json:"created_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:created_at"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:updated_at"`
}

// NewBook creates a new Book with generated UUID and timestamps
func NewBook(title, author string) *Book {
	now := time.Now().UTC()
	return &Book{
		ID:        uuid.New(),
		Title:     title,
		Author:    author,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DurationString returns the total duration in HH:MM:SS format
func (b *Book) DurationString() string {
	total := int64(b.DurationSeconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
