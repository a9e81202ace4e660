package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clayworth/gapless/internal/playback"
	"github.com/clayworth/gapless/internal/player"
)

// noopHandle is a decode handle that accepts everything and plays nothing.
type noopHandle struct{}

func (noopHandle) Load(context.Context, string) error { return nil }
func (noopHandle) Play() error                        { return nil }
func (noopHandle) Pause() error                       { return nil }
func (noopHandle) Seek(float64) error                 { return nil }
func (noopHandle) Position() float64                  { return 0 }
func (noopHandle) SetVolume(float64)                  {}
func (noopHandle) SetRate(float64)                    {}
func (noopHandle) Stop()                              {}
func (noopHandle) SetListener(playback.Listener)      {}

type staticResolver struct{}

func (staticResolver) EnsureResolved(_ context.Context, indices []int) (map[int]string, error) {
	urls := make(map[int]string, len(indices))
	for _, i := range indices {
		urls[i] = "https://cdn.test/chunk"
	}
	return urls, nil
}

func (staticResolver) PrefetchAhead(int, int) {}
func (staticResolver) Invalidate()            {}

// setupPlayerRouter wires the player routes over a real catalog and a
// session manager with inert handles.
func setupPlayerRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	catalog := setupCatalog(t)

	manager := player.NewManager(
		catalog,
		func(uuid.UUID, int) playback.URLResolver { return staticResolver{} },
		func() playback.Handle { return noopHandle{} },
		playback.Config{
			TransitionThreshold:  5,
			PrefetchWindow:       2,
			InitialResolveWindow: 2,
		})
	t.Cleanup(manager.Stop)

	router := gin.New()
	apiGroup := router.Group("/api")
	SetupBookRoutes(apiGroup, catalog)
	SetupPlayerRoutes(apiGroup, manager)

	return router, createBook(t, router)
}

func playerState(t *testing.T, w interface{ Bytes() []byte }) PlayerStateResponse {
	t.Helper()
	var resp PlayerStateResponse
	require.NoError(t, json.Unmarshal(w.Bytes(), &resp))
	return resp
}

func TestPlayerEndpoints(t *testing.T) {
	t.Run("open then control a session", func(t *testing.T) {
		router, bookID := setupPlayerRouter(t)

		w := performJSON(t, router, http.MethodPost, "/api/player/"+bookID, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		state := playerState(t, w.Body)
		assert.Equal(t, bookID, state.BookID)
		assert.Equal(t, 300.0, state.State.VirtualDuration)
		assert.False(t, state.State.IsPlaying)

		w = performJSON(t, router, http.MethodPost, "/api/player/"+bookID+"/play", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, playerState(t, w.Body).State.IsPlaying)

		w = performJSON(t, router, http.MethodPost, "/api/player/"+bookID+"/seek",
			gin.H{"position_seconds": 150.0})
		require.Equal(t, http.StatusOK, w.Code)
		state = playerState(t, w.Body)
		assert.Equal(t, 1, state.State.CurrentChunk)
		assert.Equal(t, 150.0, state.State.VirtualCurrentTime)

		w = performJSON(t, router, http.MethodPost, "/api/player/"+bookID+"/skip",
			gin.H{"seconds": -50.0})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 100.0, playerState(t, w.Body).State.VirtualCurrentTime)

		w = performJSON(t, router, http.MethodPut, "/api/player/"+bookID+"/volume",
			gin.H{"volume": 0.5})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0.5, playerState(t, w.Body).State.Volume)

		w = performJSON(t, router, http.MethodPut, "/api/player/"+bookID+"/rate",
			gin.H{"rate": 1.25})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1.25, playerState(t, w.Body).State.PlaybackRate)

		w = performJSON(t, router, http.MethodPost, "/api/player/"+bookID+"/pause", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, playerState(t, w.Body).State.IsPlaying)

		w = performJSON(t, router, http.MethodGet, "/api/player/"+bookID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = performJSON(t, router, http.MethodDelete, "/api/player/"+bookID, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("opening an unknown book is a 404", func(t *testing.T) {
		router, _ := setupPlayerRouter(t)
		w := performJSON(t, router, http.MethodPost, "/api/player/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "book_not_found", resp.Error)
	})

	t.Run("controls without a session are a 404", func(t *testing.T) {
		router, bookID := setupPlayerRouter(t)
		w := performJSON(t, router, http.MethodPost, "/api/player/"+bookID+"/play", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "no_session", resp.Error)
	})

	t.Run("malformed id is a 400", func(t *testing.T) {
		router, _ := setupPlayerRouter(t)
		w := performJSON(t, router, http.MethodGet, "/api/player/nope", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("closing twice is a 404", func(t *testing.T) {
		router, bookID := setupPlayerRouter(t)
		w := performJSON(t, router, http.MethodPost, "/api/player/"+bookID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = performJSON(t, router, http.MethodDelete, "/api/player/"+bookID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		w = performJSON(t, router, http.MethodDelete, "/api/player/"+bookID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
