package playback

// State represents the lifecycle state of the playback engine
type State int

const (
	// StateUninitialized indicates no book is loaded
	StateUninitialized State = iota
	// StateReady indicates chunk 0 is loaded and playback can start
	StateReady
	// StatePlaying indicates audio is advancing
	StatePlaying
	// StatePaused indicates playback is suspended at the current position
	StatePaused
	// StateEnded indicates the last chunk finished playing
	StateEnded
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// TransitionState is the orthogonal sub-state tracking chunk boundary
// handoff. It is only meaningful while playing and resets to Idle on every
// explicit seek and on cleanup.
type TransitionState int

const (
	// TransitionIdle indicates no boundary handoff is underway
	TransitionIdle TransitionState = iota
	// TransitionPreparing indicates the next chunk is being preloaded into
	// the inactive handle
	TransitionPreparing
	// TransitionSwapping indicates the handles are being exchanged at a
	// chunk boundary
	TransitionSwapping
)

// String returns the string representation of TransitionState
func (s TransitionState) String() string {
	switch s {
	case TransitionIdle:
		return "idle"
	case TransitionPreparing:
		return "preparing"
	case TransitionSwapping:
		return "swapping"
	default:
		return "unknown"
	}
}

// PublicState is the normalized snapshot handed to the UI after every
// meaningful engine event. Consumers never mutate it.
type PublicState struct {
	VirtualCurrentTime   float64   `json:"virtual_current_time"`
	VirtualDuration      float64   `json:"virtual_duration"`
	CurrentChunk         int       `json:"current_chunk"`
	ChunkLocalTime       float64   `json:"chunk_local_time"`
	ChunkBoundaryOffsets []float64 `json:"chunk_boundary_offsets"`
	IsPlaying            bool      `json:"is_playing"`
	IsLoading            bool      `json:"is_loading"`
	IsTransitioning      bool      `json:"is_transitioning"`
	Volume               float64   `json:"volume"`
	PlaybackRate         float64   `json:"playback_rate"`
}
