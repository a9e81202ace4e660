// Package resolver obtains and caches time-limited playable URLs for the
// chunks of one book from the signing backend.
//
// Cache entries are advisory: they are never trusted past their expiry
// minus a safety margin, and every consumer re-checks through
// EnsureResolved before use. The cache has a single writer (this client)
// and entries are replaced wholesale, never mutated in place.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clayworth/gapless/internal/logger"
)

// Resolution errors
var (
	// ErrResolutionFailed indicates the signing backend could not be
	// reached or rejected the request
	ErrResolutionFailed = errors.New("url resolution failed")

	// ErrChunkOutOfRange indicates a requested chunk index does not exist
	// in the book
	ErrChunkOutOfRange = errors.New("chunk index out of range")
)

const (
	breakerFailureThreshold = 3
	breakerResetTimeout     = 30 * time.Second
)

// Config holds the signing backend connection settings
type Config struct {
	BaseURL            string
	APIKey             string
	RequestTimeout     time.Duration
	BatchSize          int
	ExpirySafetyMargin time.Duration
	// HTTPClient overrides the default transport, mainly for tests
	HTTPClient *http.Client
}

// cacheEntry is one resolved URL with its expiry. Entries are immutable;
// a refresh stores a new entry.
type cacheEntry struct {
	url       string
	expiresAt time.Time
}

// Client resolves signed chunk URLs for a single book session.
type Client struct {
	cfg        Config
	httpClient *http.Client
	bookID     uuid.UUID
	chunkCount int
	breaker    *breaker
	now        func() time.Time

	mu    sync.RWMutex
	cache map[int]cacheEntry
}

// New creates a resolver client for one book. chunkCount bounds the valid
// chunk index range.
func New(cfg Config, bookID uuid.UUID, chunkCount int) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		bookID:     bookID,
		chunkCount: chunkCount,
		breaker:    newBreaker(breakerFailureThreshold, breakerResetTimeout),
		now:        time.Now,
		cache:      make(map[int]cacheEntry),
	}
}

// resolveRequest is the wire format of a batched resolution call
type resolveRequest struct {
	BookID       string `json:"book_id"`
	ChunkIndices []int  `json:"chunk_indices"`
}

// resolveResponse is the signing backend's reply. URL map keys are chunk
// indices in decimal string form.
type resolveResponse struct {
	URLs             map[string]string `json:"urls"`
	ExpiresInSeconds int64             `json:"expires_in_seconds"`
}

// EnsureResolved returns playable URLs for the given chunk indices,
// resolving any whose cache entry is missing or within the expiry safety
// margin. Misses are grouped into batched requests of at most the
// configured batch size, amortizing the fixed per-request signing cost.
// Calling it for already-valid entries is an idempotent no-op.
func (c *Client) EnsureResolved(ctx context.Context, indices []int) (map[int]string, error) {
	wanted := make([]int, 0, len(indices))
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= c.chunkCount {
			return nil, fmt.Errorf("%w: %d (book has %d chunks)", ErrChunkOutOfRange, idx, c.chunkCount)
		}
		if !seen[idx] {
			seen[idx] = true
			wanted = append(wanted, idx)
		}
	}
	sort.Ints(wanted)

	missing := c.missingIndices(wanted)

	for start := 0; start < len(missing); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(missing) {
			end = len(missing)
		}
		if err := c.resolveBatch(ctx, missing[start:end]); err != nil {
			return nil, err
		}
	}

	result := make(map[int]string, len(wanted))
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, idx := range wanted {
		entry, ok := c.cache[idx]
		if !ok {
			return nil, fmt.Errorf("%w: chunk %d missing after resolution", ErrResolutionFailed, idx)
		}
		result[idx] = entry.url
	}
	return result, nil
}

// PrefetchAhead resolves URLs for the windowSize chunks after
// currentChunkIndex in the background. Prefetch is an optimization, not a
// correctness requirement: failures are retried once, then logged and
// dropped, never surfaced as playback errors.
func (c *Client) PrefetchAhead(currentChunkIndex, windowSize int) {
	indices := make([]int, 0, windowSize)
	for i := currentChunkIndex + 1; i <= currentChunkIndex+windowSize && i < c.chunkCount; i++ {
		if i >= 0 {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		defer cancel()

		_, err := c.EnsureResolved(ctx, indices)
		if err != nil {
			// One silent retry before giving up
			_, err = c.EnsureResolved(ctx, indices)
		}
		if err != nil {
			logger.Log.Warn().
				Err(err).
				Str("book_id", c.bookID.String()).
				Ints("chunk_indices", indices).
				Msg("Background URL prefetch failed")
		}
	}()
}

// Invalidate drops every cached entry and resets the breaker. Safe to call
// repeatedly.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[int]cacheEntry)
	c.mu.Unlock()
	c.breaker.reset()
}

// CachedCount returns the number of currently cached entries, valid or not.
func (c *Client) CachedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// missingIndices filters wanted down to the indices that need resolution:
// absent from the cache or expiring within the safety margin.
func (c *Client) missingIndices(wanted []int) []int {
	deadline := c.now().Add(c.cfg.ExpirySafetyMargin)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var missing []int
	for _, idx := range wanted {
		entry, ok := c.cache[idx]
		if !ok || !entry.expiresAt.After(deadline) {
			missing = append(missing, idx)
		}
	}
	return missing
}

// resolveBatch performs one signing request for a group of chunk indices
// and stores the results.
func (c *Client) resolveBatch(ctx context.Context, indices []int) error {
	if len(indices) == 0 {
		return nil
	}

	var resp resolveResponse
	err := c.breaker.call(func() error {
		var callErr error
		resp, callErr = c.doResolve(ctx, indices)
		return callErr
	})
	if err != nil {
		if errors.Is(err, ErrBreakerOpen) {
			return fmt.Errorf("%w: %w", ErrResolutionFailed, err)
		}
		return err
	}

	expiresAt := c.now().Add(time.Duration(resp.ExpiresInSeconds) * time.Second)

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, url := range resp.URLs {
		idx, convErr := strconv.Atoi(key)
		if convErr != nil {
			logger.Log.Warn().
				Str("book_id", c.bookID.String()).
				Str("chunk_key", key).
				Msg("Signing backend returned non-numeric chunk key")
			continue
		}
		c.cache[idx] = cacheEntry{url: url, expiresAt: expiresAt}
	}

	logger.Log.Debug().
		Str("book_id", c.bookID.String()).
		Ints("chunk_indices", indices).
		Time("expires_at", expiresAt).
		Msg("Resolved chunk URLs")

	return nil
}

// doResolve is the raw HTTP exchange with the signing backend
func (c *Client) doResolve(ctx context.Context, indices []int) (resolveResponse, error) {
	body, err := json.Marshal(resolveRequest{
		BookID:       c.bookID.String(),
		ChunkIndices: indices,
	})
	if err != nil {
		return resolveResponse{}, fmt.Errorf("%w: encode request: %w", ErrResolutionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/resolve", bytes.NewReader(body))
	if err != nil {
		return resolveResponse{}, fmt.Errorf("%w: build request: %w", ErrResolutionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return resolveResponse{}, fmt.Errorf("%w: %w", ErrResolutionFailed, err)
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	if httpResp.StatusCode != http.StatusOK {
		return resolveResponse{}, fmt.Errorf("%w: signing backend returned status %d", ErrResolutionFailed, httpResp.StatusCode)
	}

	var resp resolveResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return resolveResponse{}, fmt.Errorf("%w: decode response: %w", ErrResolutionFailed, err)
	}
	if resp.ExpiresInSeconds <= 0 {
		return resolveResponse{}, fmt.Errorf("%w: non-positive expiry %d", ErrResolutionFailed, resp.ExpiresInSeconds)
	}
	return resp, nil
}
