package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clayworth/gapless/internal/db"
	"github.com/clayworth/gapless/internal/logger"
	"github.com/clayworth/gapless/internal/store"
)

func TestMain(m *testing.M) {
	logger.Init("error", false)
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func setupCatalog(t *testing.T) *store.Service {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(sqlDB, "file://../../migrations"))

	return store.NewService(database, db.NewRepositories(database))
}

func setupBookRouter(t *testing.T) (*gin.Engine, *store.Service) {
	t.Helper()
	catalog := setupCatalog(t)
	router := gin.New()
	SetupBookRoutes(router.Group("/api"), catalog)
	return router, catalog
}

func performJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func bookPayload() gin.H {
	return gin.H{
		"title":  "Persuasion",
		"author": "Jane Austen",
		"chunks": []gin.H{
			{"sequence": 0, "duration_seconds": 100.0, "object_key": "books/p/chunk_0000.mp3"},
			{"sequence": 1, "duration_seconds": 200.0, "object_key": "books/p/chunk_0001.mp3"},
		},
	}
}

func createBook(t *testing.T, router *gin.Engine) string {
	t.Helper()
	w := performJSON(t, router, http.MethodPost, "/api/books", bookPayload())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var book struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	return book.ID
}

func TestCreateBookEndpoint(t *testing.T) {
	t.Run("ingests a valid book", func(t *testing.T) {
		router, _ := setupBookRouter(t)
		w := performJSON(t, router, http.MethodPost, "/api/books", bookPayload())
		require.Equal(t, http.StatusCreated, w.Code)

		var book struct {
			Title           string  `json:"title"`
			DurationSeconds float64 `json:"duration_seconds"`
			ChunkCount      int     `json:"chunk_count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
		assert.Equal(t, "Persuasion", book.Title)
		assert.Equal(t, 300.0, book.DurationSeconds)
		assert.Equal(t, 2, book.ChunkCount)
	})

	t.Run("rejects a gapped chunk table", func(t *testing.T) {
		router, _ := setupBookRouter(t)
		payload := bookPayload()
		payload["chunks"] = []gin.H{
			{"sequence": 0, "duration_seconds": 100.0, "object_key": "a"},
			{"sequence": 3, "duration_seconds": 100.0, "object_key": "b"},
		}
		w := performJSON(t, router, http.MethodPost, "/api/books", payload)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects a missing title", func(t *testing.T) {
		router, _ := setupBookRouter(t)
		payload := bookPayload()
		delete(payload, "title")
		w := performJSON(t, router, http.MethodPost, "/api/books", payload)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetBookEndpoints(t *testing.T) {
	router, _ := setupBookRouter(t)
	bookID := createBook(t, router)

	t.Run("get by id", func(t *testing.T) {
		w := performJSON(t, router, http.MethodGet, "/api/books/"+bookID, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("list", func(t *testing.T) {
		w := performJSON(t, router, http.MethodGet, "/api/books?limit=10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp BookListResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Items, 1)
	})

	t.Run("timeline", func(t *testing.T) {
		w := performJSON(t, router, http.MethodGet, fmt.Sprintf("/api/books/%s/timeline", bookID), nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp TimelineResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 300.0, resp.TotalDurationSeconds)
		assert.Equal(t, []float64{0, 100}, resp.BoundaryOffsets)
		require.Len(t, resp.Chunks, 2)
		assert.Equal(t, 100.0, resp.Chunks[1].VirtualStart)
	})

	t.Run("unknown id is a 404", func(t *testing.T) {
		w := performJSON(t, router, http.MethodGet, "/api/books/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id is a 400", func(t *testing.T) {
		w := performJSON(t, router, http.MethodGet, "/api/books/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDeleteBookEndpoint(t *testing.T) {
	router, _ := setupBookRouter(t)
	bookID := createBook(t, router)

	w := performJSON(t, router, http.MethodDelete, "/api/books/"+bookID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performJSON(t, router, http.MethodDelete, "/api/books/"+bookID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
