package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clayworth/gapless/internal/db"
	"github.com/clayworth/gapless/internal/logger"
	"github.com/clayworth/gapless/internal/timeline"
)

func TestMain(m *testing.M) {
	logger.Init("error", false)
	os.Exit(m.Run())
}

func setupService(t *testing.T) *Service {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(sqlDB, "file://../../migrations"))

	return NewService(database, db.NewRepositories(database))
}

func validInput() CreateBookInput {
	return CreateBookInput{
		Title:  "Northanger Abbey",
		Author: "Jane Austen",
		Chunks: []ChunkInput{
			{Sequence: 0, DurationSeconds: 120.5, ObjectKey: "books/na/chunk_0000.mp3"},
			{Sequence: 1, DurationSeconds: 98.25, ObjectKey: "books/na/chunk_0001.mp3"},
			{Sequence: 2, DurationSeconds: 143, ObjectKey: "books/na/chunk_0002.mp3"},
		},
	}
}

func TestCreateBook(t *testing.T) {
	t.Run("persists book with derived duration and chunk count", func(t *testing.T) {
		svc := setupService(t)

		book, err := svc.CreateBook(context.Background(), validInput())
		require.NoError(t, err)
		assert.Equal(t, "Northanger Abbey", book.Title)
		assert.Equal(t, 3, book.ChunkCount)
		assert.InDelta(t, 361.75, book.DurationSeconds, 1e-9)

		got, err := svc.GetBook(context.Background(), book.ID)
		require.NoError(t, err)
		assert.Equal(t, book.ID, got.ID)
	})

	t.Run("rejects empty title", func(t *testing.T) {
		svc := setupService(t)
		input := validInput()
		input.Title = ""
		_, err := svc.CreateBook(context.Background(), input)
		assert.ErrorIs(t, err, ErrInvalidTitle)
	})

	t.Run("rejects empty chunk table", func(t *testing.T) {
		svc := setupService(t)
		input := validInput()
		input.Chunks = nil
		_, err := svc.CreateBook(context.Background(), input)
		assert.ErrorIs(t, err, ErrNoChunks)
	})

	t.Run("rejects non-contiguous sequences", func(t *testing.T) {
		svc := setupService(t)
		input := validInput()
		input.Chunks[2].Sequence = 5
		_, err := svc.CreateBook(context.Background(), input)
		assert.ErrorIs(t, err, timeline.ErrInvalidTimeline)
	})

	t.Run("rejects non-positive durations", func(t *testing.T) {
		svc := setupService(t)
		input := validInput()
		input.Chunks[1].DurationSeconds = 0
		_, err := svc.CreateBook(context.Background(), input)
		assert.ErrorIs(t, err, timeline.ErrInvalidTimeline)
	})

	t.Run("accepts chunks submitted out of order", func(t *testing.T) {
		svc := setupService(t)
		input := validInput()
		input.Chunks[0], input.Chunks[2] = input.Chunks[2], input.Chunks[0]

		book, err := svc.CreateBook(context.Background(), input)
		require.NoError(t, err)

		infos, err := svc.GetBookChunks(context.Background(), book.ID)
		require.NoError(t, err)
		require.Len(t, infos, 3)
		for i, info := range infos {
			assert.Equal(t, i, info.Sequence)
		}
	})
}

func TestGetBookChunks(t *testing.T) {
	svc := setupService(t)
	book, err := svc.CreateBook(context.Background(), validInput())
	require.NoError(t, err)

	infos, err := svc.GetBookChunks(context.Background(), book.ID)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, 120.5, infos[0].DurationSeconds)

	// The chunk table must build a timeline: this is the engine's contract.
	tl, err := timeline.New(infos)
	require.NoError(t, err)
	assert.InDelta(t, 361.75, tl.TotalDuration(), 1e-9)

	_, err = svc.GetBookChunks(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestGetChunkMedia(t *testing.T) {
	svc := setupService(t)
	book, err := svc.CreateBook(context.Background(), validInput())
	require.NoError(t, err)

	key, dur, err := svc.GetChunkMedia(context.Background(), book.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "books/na/chunk_0001.mp3", key)
	assert.Equal(t, 98.25, dur)

	_, _, err = svc.GetChunkMedia(context.Background(), book.ID, 9)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestDeleteBook(t *testing.T) {
	svc := setupService(t)
	book, err := svc.CreateBook(context.Background(), validInput())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBook(context.Background(), book.ID))

	_, err = svc.GetBook(context.Background(), book.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)

	// Chunks go with the book.
	_, _, err = svc.GetChunkMedia(context.Background(), book.ID, 0)
	assert.ErrorIs(t, err, ErrBookNotFound)

	assert.ErrorIs(t, svc.DeleteBook(context.Background(), book.ID), ErrBookNotFound)
}

func TestListBooks(t *testing.T) {
	svc := setupService(t)

	for _, title := range []string{"One", "Two", "Three"} {
		input := validInput()
		input.Title = title
		_, err := svc.CreateBook(context.Background(), input)
		require.NoError(t, err)
	}

	books, err := svc.ListBooks(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Len(t, books, 2)

	rest, err := svc.ListBooks(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}
