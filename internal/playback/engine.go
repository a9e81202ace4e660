// Package playback implements the gapless playback core: a dual-handle
// engine that hides chunk boundaries behind one continuous virtual
// timeline, and the facade publishing normalized state to the UI.
//
// The engine owns two decode handles. At most one is audible (active); the
// other silently preloads the next chunk ahead of a boundary so the swap at
// chunk end is inaudible. Chunk ends are recognized only on the handle's
// own end-of-track signal, never by comparing positions to durations.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clayworth/gapless/internal/logger"
	"github.com/clayworth/gapless/internal/timeline"
)

const defaultLoadTimeout = 10 * time.Second

// MetadataSource supplies the ordered chunk table for a book. The catalog
// service implements it; tests substitute fakes.
type MetadataSource interface {
	GetBookChunks(ctx context.Context, bookID uuid.UUID) ([]timeline.ChunkInfo, error)
}

// URLResolver is the engine's view of the signed-URL resolver.
type URLResolver interface {
	EnsureResolved(ctx context.Context, indices []int) (map[int]string, error)
	PrefetchAhead(currentChunkIndex, windowSize int)
	Invalidate()
}

// ResolverFactory creates a resolver session for one book.
type ResolverFactory func(bookID uuid.UUID, chunkCount int) URLResolver

// Config holds playback engine tuning parameters
type Config struct {
	// TransitionThreshold is the remaining-seconds mark at which the next
	// chunk starts preloading
	TransitionThreshold float64
	// PrefetchWindow is how many upcoming chunk URLs stay resolved ahead of
	// the playhead
	PrefetchWindow int
	// InitialResolveWindow is how many chunk URLs are resolved during
	// Initialize
	InitialResolveWindow int
	// LoadTimeout bounds background preload resolution and loads
	LoadTimeout time.Duration
}

// Engine is the dual-handle playback state machine. All methods are safe
// for concurrent use; handle events and caller operations serialize on one
// mutex.
type Engine struct {
	metadata    MetadataSource
	newResolver ResolverFactory
	cfg         Config
	observer    Observer

	mu         sync.Mutex
	handles    [2]Handle
	active     int
	bookID     uuid.UUID
	tl         *timeline.Timeline
	res        URLResolver
	state      State
	transition TransitionState
	pos        timeline.Position
	preloaded  int
	generation uint64
	loading    bool
	volume     float64
	rate       float64
}

// handleListener routes one handle's native events into the engine with
// the handle's slot attached.
type handleListener struct {
	engine *Engine
	slot   int
}

func (l handleListener) OnTick(position float64)   { l.engine.onTick(l.slot, position) }
func (l handleListener) OnEnded()                  { l.engine.onEnded(l.slot) }
func (l handleListener) OnPlaybackError(err error) { l.engine.onHandleError(l.slot, err) }

// NewEngine creates an engine over two decode handles. The observer
// receives normalized events; pass NopObserver{} if none is needed.
func NewEngine(metadata MetadataSource, factory ResolverFactory, primary, secondary Handle, cfg Config, observer Observer) *Engine {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if observer == nil {
		observer = NopObserver{}
	}
	e := &Engine{
		metadata:    metadata,
		newResolver: factory,
		cfg:         cfg,
		observer:    observer,
		handles:     [2]Handle{primary, secondary},
		state:       StateUninitialized,
		preloaded:   timeline.NoChunk,
		volume:      1.0,
		rate:        1.0,
	}
	primary.SetListener(handleListener{engine: e, slot: 0})
	secondary.SetListener(handleListener{engine: e, slot: 1})
	return e
}

// Initialize loads a book: fetches its chunk table, builds the timeline,
// resolves an initial URL window and loads chunk 0 into the active handle.
// Re-initializing releases the previous book first. Zero chunks or a
// metadata failure is fatal (KindInitialization); malformed chunk metadata
// is fatal (KindInvalidTimeline); URL or load failures are recoverable and
// leave the engine uninitialized.
func (e *Engine) Initialize(ctx context.Context, bookID uuid.UUID) error {
	e.mu.Lock()
	e.releaseLocked()
	e.generation++
	gen := e.generation
	e.loading = true
	e.mu.Unlock()

	commit := func(fn func()) bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.generation != gen {
			// A concurrent Initialize or Cleanup superseded this one
			return false
		}
		e.loading = false
		fn()
		return true
	}
	fail := func(err error) error {
		commit(func() { e.state = StateUninitialized })
		return err
	}

	infos, err := e.metadata.GetBookChunks(ctx, bookID)
	if err != nil {
		return fail(NewError(KindInitialization, NoChunkIndex, "failed to load chunk metadata", err))
	}
	if len(infos) == 0 {
		return fail(NewError(KindInitialization, NoChunkIndex, "book has no chunks", nil))
	}

	tl, err := timeline.New(infos)
	if err != nil {
		return fail(NewError(KindInvalidTimeline, NoChunkIndex, "malformed chunk metadata", err))
	}

	res := e.newResolver(bookID, tl.ChunkCount())

	window := e.cfg.InitialResolveWindow
	if window < 1 {
		window = 1
	}
	if window > tl.ChunkCount() {
		window = tl.ChunkCount()
	}
	indices := make([]int, window)
	for i := range indices {
		indices[i] = i
	}
	urls, err := res.EnsureResolved(ctx, indices)
	if err != nil {
		return fail(NewError(KindResolution, 0, "failed to resolve initial chunk urls", err))
	}

	if err := e.handles[0].Load(ctx, urls[0]); err != nil {
		return fail(NewError(KindPlayback, 0, "failed to load first chunk", err))
	}

	if !commit(func() {
		e.bookID = bookID
		e.tl = tl
		e.res = res
		e.active = 0
		e.state = StateReady
		e.transition = TransitionIdle
		e.pos = timeline.Position{ChunkIndex: 0, LocalTime: 0}
		e.preloaded = timeline.NoChunk
		e.handles[0].SetVolume(e.volume)
		e.handles[0].SetRate(e.rate)
		e.handles[1].SetVolume(e.volume)
		e.handles[1].SetRate(e.rate)
	}) {
		return NewError(KindInitialization, NoChunkIndex, "initialization superseded", nil)
	}

	res.PrefetchAhead(0, e.cfg.PrefetchWindow)

	logger.Log.Info().
		Str("book_id", bookID.String()).
		Int("chunks", tl.ChunkCount()).
		Float64("total_duration", tl.TotalDuration()).
		Msg("Playback engine initialized")

	return nil
}

// Play starts or resumes playback on the active handle.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StatePlaying:
		return nil
	case StateReady, StatePaused:
		if err := e.handles[e.active].Play(); err != nil {
			return NewError(KindPlayback, e.pos.ChunkIndex, "failed to start playback", err)
		}
		e.state = StatePlaying
		return nil
	default:
		return ErrNotReady
	}
}

// Pause suspends playback, keeping the current position.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateUninitialized {
		return ErrNotInitialized
	}
	if e.state != StatePlaying {
		return nil
	}
	if err := e.handles[e.active].Pause(); err != nil {
		return NewError(KindPlayback, e.pos.ChunkIndex, "failed to pause playback", err)
	}
	e.state = StatePaused
	return nil
}

// SeekToVirtualTime moves playback to a point on the virtual timeline,
// clamped to [0, totalDuration]. Any in-flight boundary transition is
// cancelled first and can no longer interfere: a preload scheduled before
// the seek is discarded even if it completes afterwards. The reported
// position only changes once the underlying load and seek succeeded.
func (e *Engine) SeekToVirtualTime(ctx context.Context, virtualTime float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tl == nil {
		return ErrNotInitialized
	}

	e.generation++
	e.cancelTransitionLocked()

	target := e.tl.ToChunkPosition(virtualTime)
	wasPlaying := e.state == StatePlaying
	needLoad := target.ChunkIndex != e.pos.ChunkIndex || e.state == StateEnded

	if needLoad {
		urls, err := e.res.EnsureResolved(ctx, []int{target.ChunkIndex})
		if err != nil {
			return NewError(KindResolution, target.ChunkIndex, "failed to resolve chunk url for seek", err)
		}
		if err := e.handles[e.active].Load(ctx, urls[target.ChunkIndex]); err != nil {
			return NewError(KindPlayback, target.ChunkIndex, "failed to load chunk for seek", err)
		}
	}

	if err := e.handles[e.active].Seek(target.LocalTime); err != nil {
		return NewError(KindPlayback, target.ChunkIndex, "failed to seek within chunk", err)
	}

	if wasPlaying && needLoad {
		if err := e.handles[e.active].Play(); err != nil {
			return NewError(KindPlayback, target.ChunkIndex, "failed to resume after seek", err)
		}
	}

	chunkChanged := target.ChunkIndex != e.pos.ChunkIndex
	e.pos = target
	if e.state == StateEnded {
		e.state = StatePaused
	}

	if chunkChanged {
		e.observer.OnChunkChange(target.ChunkIndex)
	}
	virtual, _ := e.tl.ToVirtualTime(target.ChunkIndex, target.LocalTime)
	e.observer.OnTimeUpdate(virtual)

	e.res.PrefetchAhead(target.ChunkIndex, e.cfg.PrefetchWindow)
	return nil
}

// SetVolume sets the output gain, clamped to [0, 1]. Both handles receive
// it so a mid-transition swap does not reset the user's choice.
func (e *Engine) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
	e.handles[0].SetVolume(v)
	e.handles[1].SetVolume(v)
}

// SetRate sets the playback rate, clamped to [0.25, 4]. Applied to both
// handles for the same reason as SetVolume.
func (e *Engine) SetRate(r float64) {
	if r < 0.25 {
		r = 0.25
	}
	if r > 4 {
		r = 4
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rate = r
	e.handles[0].SetRate(r)
	e.handles[1].SetRate(r)
}

// Cleanup releases both handles, the resolver cache and the timeline.
// Unconditional and idempotent: safe in any state, safe to call twice.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.releaseLocked()
}

// releaseLocked drops all per-book state. Callers must hold the mutex.
func (e *Engine) releaseLocked() {
	e.handles[0].Stop()
	e.handles[1].Stop()
	if e.res != nil {
		e.res.Invalidate()
		e.res = nil
	}
	e.tl = nil
	e.bookID = uuid.Nil
	e.state = StateUninitialized
	e.transition = TransitionIdle
	e.pos = timeline.Position{}
	e.preloaded = timeline.NoChunk
	e.loading = false
	e.active = 0
}

// cancelTransitionLocked aborts any in-flight boundary transition. Callers
// must hold the mutex and must have bumped the generation first so a late
// preload completion is discarded.
func (e *Engine) cancelTransitionLocked() {
	if e.transition != TransitionIdle {
		e.transition = TransitionIdle
		e.observer.OnTransition(false)
	}
	if e.preloaded != timeline.NoChunk {
		e.handles[1-e.active].Stop()
		e.preloaded = timeline.NoChunk
	}
}

// Snapshot returns the current normalized public state.
func (e *Engine) Snapshot() PublicState {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := PublicState{
		CurrentChunk:    e.pos.ChunkIndex,
		ChunkLocalTime:  e.pos.LocalTime,
		IsPlaying:       e.state == StatePlaying,
		IsLoading:       e.loading,
		IsTransitioning: e.transition != TransitionIdle,
		Volume:          e.volume,
		PlaybackRate:    e.rate,
	}
	if e.tl != nil {
		s.VirtualDuration = e.tl.TotalDuration()
		s.ChunkBoundaryOffsets = e.tl.BoundaryOffsets()
		if virtual, err := e.tl.ToVirtualTime(e.pos.ChunkIndex, e.pos.LocalTime); err == nil {
			s.VirtualCurrentTime = virtual
		}
	}
	return s
}

// State returns the engine lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Transition returns the boundary sub-state.
func (e *Engine) Transition() TransitionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transition
}

// CurrentVirtualTime returns the playhead position on the virtual timeline.
func (e *Engine) CurrentVirtualTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tl == nil {
		return 0
	}
	virtual, err := e.tl.ToVirtualTime(e.pos.ChunkIndex, e.pos.LocalTime)
	if err != nil {
		return 0
	}
	return virtual
}

// TotalVirtualDuration returns the full book duration, 0 when uninitialized.
func (e *Engine) TotalVirtualDuration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tl == nil {
		return 0
	}
	return e.tl.TotalDuration()
}

// onTick handles a position update from a handle. Boundary detection rides
// on this native signal rather than a separate timer so positions are never
// double-reported.
func (e *Engine) onTick(slot int, position float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if slot != e.active || e.state != StatePlaying || e.tl == nil {
		return
	}

	e.pos.LocalTime = position
	virtual, err := e.tl.ToVirtualTime(e.pos.ChunkIndex, position)
	if err != nil {
		return
	}
	e.observer.OnTimeUpdate(virtual)

	if e.transition != TransitionIdle || !e.tl.IsNearChunkEnd(virtual, e.cfg.TransitionThreshold) {
		return
	}
	next := e.tl.NextChunkIndex(e.pos.ChunkIndex)
	if next == timeline.NoChunk {
		return
	}

	e.transition = TransitionPreparing
	e.observer.OnTransition(true)
	go e.preload(e.generation, next)
}

// preload resolves and loads the next chunk into the inactive handle. A
// generation mismatch afterwards means a seek or cleanup superseded this
// preload and its result is discarded.
func (e *Engine) preload(gen uint64, next int) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.LoadTimeout)
	defer cancel()

	e.mu.Lock()
	if e.generation != gen || e.res == nil {
		e.mu.Unlock()
		return
	}
	res := e.res
	target := e.handles[1-e.active]
	e.mu.Unlock()

	urls, err := res.EnsureResolved(ctx, []int{next})
	if err != nil {
		// One silent retry; a miss here only costs the seamless swap
		urls, err = res.EnsureResolved(ctx, []int{next})
	}
	if err == nil {
		err = target.Load(ctx, urls[next])
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen || e.transition != TransitionPreparing {
		target.Stop()
		return
	}
	if err != nil {
		logger.Log.Warn().
			Err(err).
			Int("chunk_index", next).
			Msg("Next-chunk preload failed, boundary will block")
		return
	}
	e.preloaded = next
}

// onEnded handles the active handle's end-of-track signal: the only
// authoritative sign that a chunk boundary was reached.
func (e *Engine) onEnded(slot int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if slot != e.active || e.tl == nil || e.state != StatePlaying {
		return
	}

	next := e.tl.NextChunkIndex(e.pos.ChunkIndex)
	if next == timeline.NoChunk {
		e.finishLocked()
		return
	}

	if e.preloaded == next {
		e.swapLocked(next)
		return
	}

	e.blockingAdvanceLocked(next)
}

// finishLocked marks the book finished. Callers must hold the mutex.
func (e *Engine) finishLocked() {
	if d, err := e.tl.ChunkDuration(e.pos.ChunkIndex); err == nil {
		e.pos.LocalTime = d
	}
	e.state = StateEnded
	e.cancelTransitionLocked()
	e.handles[e.active].Pause()
	e.observer.OnTimeUpdate(e.tl.TotalDuration())
	logger.Log.Info().
		Str("book_id", e.bookID.String()).
		Msg("Playback reached end of book")
}

// swapLocked performs the seamless handoff to the preloaded inactive
// handle. Callers must hold the mutex.
func (e *Engine) swapLocked(next int) {
	e.transition = TransitionSwapping

	old := e.handles[e.active]
	old.Pause()
	e.active = 1 - e.active
	e.preloaded = timeline.NoChunk

	if err := e.handles[e.active].Play(); err != nil {
		e.transition = TransitionIdle
		e.state = StatePaused
		e.observer.OnTransition(false)
		e.observer.OnError(NewError(KindPlayback, next, "failed to start preloaded chunk", err))
		return
	}

	e.pos = timeline.Position{ChunkIndex: next, LocalTime: 0}
	e.transition = TransitionIdle
	e.observer.OnTransition(false)
	e.observer.OnChunkChange(next)

	e.res.PrefetchAhead(next, e.cfg.PrefetchWindow)

	logger.Log.Debug().
		Int("chunk_index", next).
		Msg("Seamless chunk transition")
}

// blockingAdvanceLocked is the preload-miss fallback: load the next chunk
// into the active handle synchronously. An audible gap is preferable to a
// hang. Callers must hold the mutex.
func (e *Engine) blockingAdvanceLocked(next int) {
	logger.Log.Warn().
		Int("chunk_index", next).
		Str("transition_state", e.transition.String()).
		Msg("Preload miss at chunk boundary, falling back to blocking load")

	e.transition = TransitionSwapping

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.LoadTimeout)
	defer cancel()

	fail := func(err error) {
		e.transition = TransitionIdle
		e.state = StatePaused
		e.observer.OnTransition(false)
		e.observer.OnError(err)
	}

	urls, err := e.res.EnsureResolved(ctx, []int{next})
	if err != nil {
		fail(NewError(KindResolution, next, "failed to resolve next chunk at boundary", err))
		return
	}
	if err := e.handles[e.active].Load(ctx, urls[next]); err != nil {
		fail(NewError(KindPlayback, next, "failed to load next chunk at boundary", err))
		return
	}
	if err := e.handles[e.active].Play(); err != nil {
		fail(NewError(KindPlayback, next, "failed to start next chunk at boundary", err))
		return
	}

	e.pos = timeline.Position{ChunkIndex: next, LocalTime: 0}
	e.transition = TransitionIdle
	e.observer.OnTransition(false)
	e.observer.OnChunkChange(next)

	e.res.PrefetchAhead(next, e.cfg.PrefetchWindow)
}

// onHandleError handles a decode/output failure signal from either handle.
func (e *Engine) onHandleError(slot int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tl == nil {
		return
	}

	if slot != e.active {
		// Preload decode failure; boundary will fall back to blocking load
		logger.Log.Warn().
			Err(err).
			Msg("Inactive handle reported error during preload")
		e.preloaded = timeline.NoChunk
		return
	}

	if e.state == StatePlaying {
		e.handles[e.active].Pause()
		e.state = StatePaused
	}
	e.observer.OnError(NewError(KindPlayback, e.pos.ChunkIndex, "decode failure", err))
}
