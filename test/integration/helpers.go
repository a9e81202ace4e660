//go:build integration
// +build integration

package integration

import (
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/clayworth/gapless/internal/api"
	"github.com/clayworth/gapless/internal/db"
	"github.com/clayworth/gapless/internal/logger"
	"github.com/clayworth/gapless/internal/playback"
	"github.com/clayworth/gapless/internal/player"
	"github.com/clayworth/gapless/internal/resolver"
	"github.com/clayworth/gapless/internal/signer"
	"github.com/clayworth/gapless/internal/store"
)

// setupTestDB creates an in-memory test database with migrations applied
func setupTestDB(t *testing.T) (*db.DB, *db.Repositories, func()) {
	t.Helper()
	logger.Init("error", false)

	database, err := db.New(":memory:")
	require.NoError(t, err, "Failed to create in-memory database")

	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err, "Failed to get SQL DB")

	// Resolve the migrations directory relative to this file so tests work
	// regardless of working directory
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to get current file path")

	testDir := filepath.Dir(filename)
	rootDir := filepath.Dir(filepath.Dir(testDir))
	migrationsPath := "file://" + filepath.Join(rootDir, "migrations")

	require.NoError(t, db.RunMigrations(sqlDB, migrationsPath), "Failed to run migrations")

	repos := db.NewRepositories(database)
	cleanup := func() {
		database.Close()
	}
	return database, repos, cleanup
}

// testStack is a fully wired service: catalog, embedded signer and player
// sessions behind one router, the way the production server assembles them.
type testStack struct {
	Router   *gin.Engine
	Catalog  *store.Service
	Sessions *player.Manager
}

// setupTestStack wires the full API surface over the given database. The
// signed URLs it mints point at signerBase, which must serve the stack's
// own router.
func setupTestStack(t *testing.T, database *db.DB, repos *db.Repositories, signerBase func() string) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog := store.NewService(database, repos)
	signerService := signer.New("integration-secret", "http://signer.test", 15*time.Minute)

	resolverFactory := func(bookID uuid.UUID, chunkCount int) playback.URLResolver {
		return resolver.New(resolver.Config{
			BaseURL:            signerBase(),
			RequestTimeout:     5 * time.Second,
			BatchSize:          10,
			ExpirySafetyMargin: time.Minute,
		}, bookID, chunkCount)
	}
	handleFactory := func() playback.Handle {
		return playback.NewClockHandle(signer.DurationFromURL, 20*time.Millisecond)
	}
	sessions := player.NewManager(catalog, resolverFactory, handleFactory, playback.Config{
		TransitionThreshold:  1.0,
		PrefetchWindow:       2,
		InitialResolveWindow: 2,
	})
	t.Cleanup(sessions.Stop)

	router := gin.New()
	router.Use(gin.Recovery())
	apiGroup := router.Group("/api")
	api.SetupHealthRoutes(apiGroup, database)
	api.SetupBookRoutes(apiGroup, catalog)
	api.SetupPlayerRoutes(apiGroup, sessions)
	signer.SetupResolveRoutes(router, signerService, catalog)

	return &testStack{Router: router, Catalog: catalog, Sessions: sessions}
}
