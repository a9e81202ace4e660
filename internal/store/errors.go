package store

import "errors"

// Custom catalog service errors
var (
	// ErrBookNotFound indicates the requested book does not exist
	ErrBookNotFound = errors.New("book not found")

	// ErrNoChunks indicates a book was submitted without any chunks
	ErrNoChunks = errors.New("book has no chunks")

	// ErrInvalidTitle indicates the book title is empty
	ErrInvalidTitle = errors.New("book title must not be empty")
)

// IsBookNotFound checks if the error is a book not found error
func IsBookNotFound(err error) bool {
	return errors.Is(err, ErrBookNotFound)
}
