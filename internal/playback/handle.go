package playback

import "context"

// Handle is the opaque decode/output capability the engine drives. Two
// handles are held at a time; at most one is audible. Implementations must
// deliver their native signals (position tick, end of track, decode error)
// through the registered Listener, and those signals are the only clock the
// engine trusts: the engine never declares a chunk finished by comparing
// positions to durations.
type Handle interface {
	// Load fetches and prepares the resource at url, replacing whatever was
	// loaded before and resetting the position to 0.
	Load(ctx context.Context, url string) error
	// Play starts or resumes output. Fails if nothing is loaded.
	Play() error
	// Pause suspends output, keeping the position.
	Pause() error
	// Seek moves to the given local position in seconds.
	Seek(seconds float64) error
	// Position reports the current local position in seconds.
	Position() float64
	// SetVolume sets the output gain, 0..1.
	SetVolume(v float64)
	// SetRate sets the playback rate multiplier.
	SetRate(r float64)
	// Stop halts output and detaches the loaded resource.
	Stop()
	// SetListener registers the receiver of this handle's native events.
	SetListener(l Listener)
}

// Listener receives a Handle's native playback signals.
type Listener interface {
	// OnTick reports the current local position while playing.
	OnTick(position float64)
	// OnEnded fires exactly once when the loaded resource finishes.
	OnEnded()
	// OnPlaybackError reports a decode or output failure.
	OnPlaybackError(err error)
}

// Observer receives normalized engine events. Implementations must not call
// back into the engine from the callback itself.
type Observer interface {
	// OnChunkChange fires when playback moves to a different chunk, whether
	// by seamless transition or by seek.
	OnChunkChange(chunkIndex int)
	// OnTimeUpdate fires on every position tick with the virtual time.
	OnTimeUpdate(virtualTime float64)
	// OnTransition fires when a boundary transition starts (true) and
	// completes or is cancelled (false).
	OnTransition(active bool)
	// OnError reports failures that occur outside a caller's control flow,
	// such as a decode error mid-chunk.
	OnError(err error)
}

// NopObserver is an Observer that ignores every event.
type NopObserver struct{}

// OnChunkChange implements Observer.
func (NopObserver) OnChunkChange(int) {}

// OnTimeUpdate implements Observer.
func (NopObserver) OnTimeUpdate(float64) {}

// OnTransition implements Observer.
func (NopObserver) OnTransition(bool) {}

// OnError implements Observer.
func (NopObserver) OnError(error) {}
