package playback

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/clayworth/gapless/internal/logger"
)

// StateSink receives PublicState snapshots after every meaningful engine
// event. Called from the controller's publisher goroutine, never from
// inside an engine callback.
type StateSink func(PublicState)

// ErrorSink receives engine errors that occur outside a caller's control
// flow, such as a decode failure mid-chunk.
type ErrorSink func(error)

// Controller is the public playback facade: it translates external control
// calls into engine operations and republishes normalized state snapshots.
// One controller drives one listening session.
type Controller struct {
	engine  *Engine
	sink    StateSink
	errSink ErrorSink

	kick chan struct{}
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewController creates a playback facade over a fresh engine. sink and
// errSink may be nil when the caller polls State instead.
func NewController(metadata MetadataSource, factory ResolverFactory, primary, secondary Handle, cfg Config, sink StateSink, errSink ErrorSink) *Controller {
	c := &Controller{
		sink:    sink,
		errSink: errSink,
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	c.engine = NewEngine(metadata, factory, primary, secondary, cfg, c)
	go c.publishLoop()
	return c
}

// publishLoop republishes a snapshot whenever an engine event requested
// one. Snapshots are taken outside the engine's event path, so a burst of
// ticks collapses into however many publishes the sink can keep up with.
func (c *Controller) publishLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.kick:
			if c.sink != nil {
				c.sink(c.engine.Snapshot())
			}
		}
	}
}

// requestPublish schedules a snapshot publish without blocking the caller.
func (c *Controller) requestPublish() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// OnChunkChange implements Observer.
func (c *Controller) OnChunkChange(int) { c.requestPublish() }

// OnTimeUpdate implements Observer.
func (c *Controller) OnTimeUpdate(float64) { c.requestPublish() }

// OnTransition implements Observer.
func (c *Controller) OnTransition(bool) { c.requestPublish() }

// OnError implements Observer.
func (c *Controller) OnError(err error) {
	logger.Log.Error().Err(err).Msg("Playback error")
	if c.errSink != nil {
		c.errSink(err)
	}
	c.requestPublish()
}

// Open loads a book and prepares chunk 0 for playback.
func (c *Controller) Open(ctx context.Context, bookID uuid.UUID) error {
	err := c.engine.Initialize(ctx, bookID)
	c.requestPublish()
	return err
}

// Play starts or resumes playback.
func (c *Controller) Play() error {
	err := c.engine.Play()
	c.requestPublish()
	return err
}

// Pause suspends playback.
func (c *Controller) Pause() error {
	err := c.engine.Pause()
	c.requestPublish()
	return err
}

// SeekToVirtualTime moves the playhead to a point on the virtual timeline.
func (c *Controller) SeekToVirtualTime(ctx context.Context, seconds float64) error {
	err := c.engine.SeekToVirtualTime(ctx, seconds)
	c.requestPublish()
	return err
}

// SkipForward advances the playhead by the given number of seconds,
// clamped to the end of the book.
func (c *Controller) SkipForward(ctx context.Context, seconds float64) error {
	return c.SeekToVirtualTime(ctx, c.engine.CurrentVirtualTime()+seconds)
}

// SkipBackward rewinds the playhead by the given number of seconds,
// clamped to the start of the book.
func (c *Controller) SkipBackward(ctx context.Context, seconds float64) error {
	return c.SeekToVirtualTime(ctx, c.engine.CurrentVirtualTime()-seconds)
}

// SetVolume sets the output gain, clamped to [0, 1].
func (c *Controller) SetVolume(v float64) error {
	c.engine.SetVolume(v)
	c.requestPublish()
	return nil
}

// SetPlaybackRate sets the speed multiplier, clamped to [0.25, 4].
func (c *Controller) SetPlaybackRate(r float64) error {
	c.engine.SetRate(r)
	c.requestPublish()
	return nil
}

// CurrentVirtualTime returns the playhead position in seconds. External
// session layers snapshot this to persist a bookmark.
func (c *Controller) CurrentVirtualTime() float64 {
	return c.engine.CurrentVirtualTime()
}

// TotalVirtualDuration returns the book's full duration in seconds.
func (c *Controller) TotalVirtualDuration() float64 {
	return c.engine.TotalVirtualDuration()
}

// State returns the current snapshot for polling consumers.
func (c *Controller) State() PublicState {
	return c.engine.Snapshot()
}

// Close releases the engine and stops the publisher. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.mu.Unlock()

	c.engine.Cleanup()
	if !alreadyClosed {
		close(c.done)
	}
}
