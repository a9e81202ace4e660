package db

// Repositories provides access to all database repositories
type Repositories struct {
	Books  *BookRepository
	Chunks *ChunkRepository
}

// NewRepositories creates a new repository collection
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		Books:  NewBookRepository(db),
		Chunks: NewChunkRepository(db),
	}
}
