package timeline

import "errors"

var (
	// ErrInvalidTimeline is returned when chunk metadata cannot form a valid
	// timeline: no chunks, non-contiguous sequence numbers, or a chunk with
	// a non-positive duration.
	ErrInvalidTimeline = errors.New("invalid timeline")

	// ErrChunkIndexOutOfRange is returned when a chunk index does not exist
	// in the timeline.
	ErrChunkIndexOutOfRange = errors.New("chunk index out of range")
)
