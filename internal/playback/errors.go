package playback

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrNotReady indicates a play request arrived before any chunk was
	// loaded into the active handle
	ErrNotReady = errors.New("playback engine not ready")

	// ErrNotInitialized indicates an operation that requires a loaded book
	// was called on an uninitialized engine
	ErrNotInitialized = errors.New("playback engine not initialized")
)

// NoChunkIndex marks an Error that is not tied to a specific chunk.
const NoChunkIndex = -1

// ErrorKind classifies playback errors
type ErrorKind int

const (
	// KindInitialization indicates book metadata could not be loaded or the
	// book has no chunks. Fatal: not retried automatically.
	KindInitialization ErrorKind = iota
	// KindInvalidTimeline indicates malformed chunk metadata. Fatal.
	KindInvalidTimeline
	// KindResolution indicates URL signing failed. Recoverable.
	KindResolution
	// KindPlayback indicates a decode or output failure on a specific
	// chunk. Recoverable.
	KindPlayback
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindInitialization:
		return "initialization"
	case KindInvalidTimeline:
		return "invalid_timeline"
	case KindResolution:
		return "resolution"
	case KindPlayback:
		return "playback"
	default:
		return "unknown"
	}
}

// Error is a structured playback error carrying enough context for the
// caller to decide between retrying and surfacing a message: the error
// kind, whether it is recoverable, and the offending chunk if any.
type Error struct {
	Kind        ErrorKind
	ChunkIndex  int
	Message     string
	Cause       error
	Recoverable bool
}

// NewError creates a playback error of the given kind. chunkIndex may be
// NoChunkIndex when no single chunk is at fault.
func NewError(kind ErrorKind, chunkIndex int, message string, cause error) *Error {
	return &Error{
		Kind:        kind,
		ChunkIndex:  chunkIndex,
		Message:     message,
		Cause:       cause,
		Recoverable: kind == KindResolution || kind == KindPlayback,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.ChunkIndex != NoChunkIndex {
		prefix = fmt.Sprintf("%s (chunk %d)", prefix, e.ChunkIndex)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRecoverable reports whether err is a playback error the user can retry
func IsRecoverable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Recoverable
	}
	return false
}
