package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clayworth/gapless/internal/logger"
)

// fakeSigner is a scripted signing backend for resolver tests
type fakeSigner struct {
	mu        sync.Mutex
	requests  [][]int
	failNext  int
	expiresIn int64
}

func (f *fakeSigner) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.requests = append(f.requests, req.ChunkIndices)
		fail := f.failNext > 0
		if fail {
			f.failNext--
		}
		expiresIn := f.expiresIn
		f.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		urls := make(map[string]string, len(req.ChunkIndices))
		for _, idx := range req.ChunkIndices {
			urls[strconv.Itoa(idx)] = "https://cdn.example.com/" + req.BookID + "/" + strconv.Itoa(idx) + ".mp3?sig=abc"
		}
		if expiresIn == 0 {
			expiresIn = 900
		}
		_ = json.NewEncoder(w).Encode(resolveResponse{URLs: urls, ExpiresInSeconds: expiresIn})
	}
}

func (f *fakeSigner) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestClient(t *testing.T, signer *fakeSigner, chunkCount int) (*Client, *httptest.Server) {
	t.Helper()
	logger.Init("error", false)

	server := httptest.NewServer(signer.handler())
	t.Cleanup(server.Close)

	client := New(Config{
		BaseURL:            server.URL,
		RequestTimeout:     2 * time.Second,
		BatchSize:          10,
		ExpirySafetyMargin: 60 * time.Second,
	}, uuid.New(), chunkCount)

	return client, server
}

func TestEnsureResolved_ResolvesAndCaches(t *testing.T) {
	signer := &fakeSigner{}
	client, _ := newTestClient(t, signer, 5)

	urls, err := client.EnsureResolved(context.Background(), []int{0, 1, 2})

	require.NoError(t, err)
	require.Len(t, urls, 3)
	assert.Contains(t, urls[1], "/1.mp3")
	assert.Equal(t, 1, signer.requestCount())

	// Second call with valid cache entries is a no-op on the wire
	urls, err = client.EnsureResolved(context.Background(), []int{0, 1, 2})
	require.NoError(t, err)
	require.Len(t, urls, 3)
	assert.Equal(t, 1, signer.requestCount())
}

func TestEnsureResolved_BatchesLargeRequests(t *testing.T) {
	signer := &fakeSigner{}
	client, _ := newTestClient(t, signer, 25)

	indices := make([]int, 25)
	for i := range indices {
		indices[i] = i
	}

	urls, err := client.EnsureResolved(context.Background(), indices)

	require.NoError(t, err)
	assert.Len(t, urls, 25)
	// 25 misses with a batch cap of 10 means exactly 3 requests
	require.Equal(t, 3, signer.requestCount())
	for _, batch := range signer.requests {
		assert.LessOrEqual(t, len(batch), 10)
	}
}

func TestEnsureResolved_RefreshesNearExpiry(t *testing.T) {
	signer := &fakeSigner{expiresIn: 900}
	client, _ := newTestClient(t, signer, 3)

	_, err := client.EnsureResolved(context.Background(), []int{0})
	require.NoError(t, err)
	require.Equal(t, 1, signer.requestCount())

	// Move the clock to within the 60s safety margin of the 900s expiry
	client.now = func() time.Time { return time.Now().Add(850 * time.Second) }

	_, err = client.EnsureResolved(context.Background(), []int{0})
	require.NoError(t, err)
	assert.Equal(t, 2, signer.requestCount(), "entry near expiry must be re-resolved")
}

func TestEnsureResolved_OutOfRange(t *testing.T) {
	signer := &fakeSigner{}
	client, _ := newTestClient(t, signer, 3)

	_, err := client.EnsureResolved(context.Background(), []int{5})

	assert.ErrorIs(t, err, ErrChunkOutOfRange)
	assert.Equal(t, 0, signer.requestCount())
}

func TestEnsureResolved_BackendFailure(t *testing.T) {
	signer := &fakeSigner{failNext: 1}
	client, _ := newTestClient(t, signer, 3)

	_, err := client.EnsureResolved(context.Background(), []int{0})

	assert.ErrorIs(t, err, ErrResolutionFailed)
}

func TestEnsureResolved_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	signer := &fakeSigner{failNext: 10}
	client, _ := newTestClient(t, signer, 3)

	for i := 0; i < breakerFailureThreshold; i++ {
		_, err := client.EnsureResolved(context.Background(), []int{0})
		require.ErrorIs(t, err, ErrResolutionFailed)
	}
	requestsSoFar := signer.requestCount()

	// Breaker is open now: the backend must not see further requests
	_, err := client.EnsureResolved(context.Background(), []int{0})
	assert.ErrorIs(t, err, ErrResolutionFailed)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, requestsSoFar, signer.requestCount())
}

func TestPrefetchAhead_ResolvesWindow(t *testing.T) {
	signer := &fakeSigner{}
	client, _ := newTestClient(t, signer, 10)

	client.PrefetchAhead(2, 3)

	require.Eventually(t, func() bool {
		return client.CachedCount() == 3
	}, 2*time.Second, 10*time.Millisecond)

	// Chunks 3, 4, 5 should now be cached; a foreground call hits no wire
	before := signer.requestCount()
	urls, err := client.EnsureResolved(context.Background(), []int{3, 4, 5})
	require.NoError(t, err)
	assert.Len(t, urls, 3)
	assert.Equal(t, before, signer.requestCount())
}

func TestPrefetchAhead_ClampsAtBookEnd(t *testing.T) {
	signer := &fakeSigner{}
	client, _ := newTestClient(t, signer, 5)

	// Window extends past the last chunk; only chunk 4 remains
	client.PrefetchAhead(3, 5)

	require.Eventually(t, func() bool {
		return client.CachedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Prefetch from the last chunk has nothing to do
	client.PrefetchAhead(4, 3)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, client.CachedCount())
}

func TestInvalidate_EmptiesCacheAndIsIdempotent(t *testing.T) {
	signer := &fakeSigner{}
	client, _ := newTestClient(t, signer, 3)

	_, err := client.EnsureResolved(context.Background(), []int{0, 1})
	require.NoError(t, err)
	require.Equal(t, 2, client.CachedCount())

	client.Invalidate()
	assert.Equal(t, 0, client.CachedCount())

	client.Invalidate()
	assert.Equal(t, 0, client.CachedCount())
}
