package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNothingLoaded indicates Play or Seek was called on a handle with no
// loaded resource.
var ErrNothingLoaded = errors.New("no resource loaded")

// DurationFunc reports the media duration behind a playable URL. The
// server wires this to the signed-URL duration hint; tests supply fixed
// values.
type DurationFunc func(url string) (float64, error)

// ClockHandle is a decode handle driven by wall-clock time instead of an
// audio device: while playing it advances its position in real time
// (scaled by the playback rate), emits ticks at a fixed cadence and an end
// event when the position reaches the media duration. It gives the
// headless service the same event surface a real decoder has, with actual
// audio rendered client-side.
type ClockHandle struct {
	durationOf DurationFunc
	tick       time.Duration

	mu          sync.Mutex
	listener    Listener
	loaded      bool
	url         string
	duration    float64
	position    float64
	rate        float64
	volume      float64
	playing     bool
	session     int
	lastAdvance time.Time
}

// NewClockHandle creates a clock-driven handle emitting ticks at the given
// interval.
func NewClockHandle(durationOf DurationFunc, tickInterval time.Duration) *ClockHandle {
	return &ClockHandle{
		durationOf: durationOf,
		tick:       tickInterval,
		rate:       1.0,
		volume:     1.0,
	}
}

// SetListener implements Handle.
func (h *ClockHandle) SetListener(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = l
}

// Load implements Handle. It probes the media duration and resets the
// position to 0, replacing any previously loaded resource.
func (h *ClockHandle) Load(_ context.Context, url string) error {
	duration, err := h.durationOf(url)
	if err != nil {
		return fmt.Errorf("failed to probe media duration: %w", err)
	}
	if duration <= 0 {
		return fmt.Errorf("media at %s has non-positive duration", url)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.session++
	h.playing = false
	h.loaded = true
	h.url = url
	h.duration = duration
	h.position = 0
	return nil
}

// Play implements Handle.
func (h *ClockHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.loaded {
		return ErrNothingLoaded
	}
	if h.playing {
		return nil
	}
	h.playing = true
	h.lastAdvance = time.Now()
	h.session++

	go h.run(h.session)
	return nil
}

// Pause implements Handle.
func (h *ClockHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.playing {
		return nil
	}
	h.advanceLocked()
	h.playing = false
	return nil
}

// Seek implements Handle. The position is clamped to [0, duration].
func (h *ClockHandle) Seek(seconds float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.loaded {
		return ErrNothingLoaded
	}
	if seconds < 0 {
		seconds = 0
	}
	if seconds > h.duration {
		seconds = h.duration
	}
	h.position = seconds
	h.lastAdvance = time.Now()
	return nil
}

// Position implements Handle.
func (h *ClockHandle) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.playing {
		h.advanceLocked()
	}
	return h.position
}

// SetVolume implements Handle. A headless handle has nothing to attenuate;
// the value is kept so state snapshots report it faithfully.
func (h *ClockHandle) SetVolume(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = v
}

// SetRate implements Handle. The rate scales how fast the clock advances.
func (h *ClockHandle) SetRate(r float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.playing {
		h.advanceLocked()
	}
	h.rate = r
}

// Stop implements Handle.
func (h *ClockHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.session++
	h.playing = false
	h.loaded = false
	h.url = ""
	h.duration = 0
	h.position = 0
}

// advanceLocked folds elapsed wall time into the position. Callers must
// hold the mutex.
func (h *ClockHandle) advanceLocked() {
	now := time.Now()
	h.position += now.Sub(h.lastAdvance).Seconds() * h.rate
	h.lastAdvance = now
	if h.position > h.duration {
		h.position = h.duration
	}
}

// run emits ticks until the session is superseded or the media ends.
// Listener callbacks are invoked without holding the mutex: the engine
// calls back into handle methods from its event processing.
func (h *ClockHandle) run(session int) {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for range ticker.C {
		h.mu.Lock()
		if h.session != session || !h.playing {
			h.mu.Unlock()
			return
		}
		h.advanceLocked()
		ended := h.position >= h.duration
		if ended {
			h.playing = false
		}
		position := h.position
		listener := h.listener
		h.mu.Unlock()

		if listener != nil {
			listener.OnTick(position)
			if ended {
				listener.OnEnded()
			}
		}
		if ended {
			return
		}
	}
}
