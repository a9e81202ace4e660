// Package timeline maps between the virtual timeline of a stitched
// audiobook (0..totalDuration) and positions inside its individual chunks.
// A Timeline holds only the per-chunk duration table; it performs no I/O
// and is safe for concurrent readers once built.
package timeline

import (
	"fmt"
	"sort"
)

// NoChunk is the sentinel returned by NextChunkIndex and PreviousChunkIndex
// when there is no adjacent chunk.
const NoChunk = -1

// ChunkInfo is the metadata-service view of one chunk: its ordinal position
// in the book and its authoritative duration.
type ChunkInfo struct {
	Sequence        int
	DurationSeconds float64
}

// Chunk is one entry of the built timeline with derived virtual offsets.
// VirtualEnd - VirtualStart always equals DurationSeconds.
type Chunk struct {
	Sequence        int
	DurationSeconds float64
	VirtualStart    float64
	VirtualEnd      float64
}

// Position identifies a point inside a specific chunk.
type Position struct {
	ChunkIndex int
	LocalTime  float64
}

// Timeline is the immutable duration table for one book. Build it with New;
// all methods are read-only afterwards.
type Timeline struct {
	chunks []Chunk
	total  float64
}

// New builds a timeline from chunk metadata. Input order does not matter:
// chunks are sorted by sequence first. Sequences must be contiguous from 0
// and every duration must be positive, otherwise ErrInvalidTimeline is
// returned (wrapped with the offending detail).
func New(infos []ChunkInfo) (*Timeline, error) {
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: no chunks", ErrInvalidTimeline)
	}

	sorted := make([]ChunkInfo, len(infos))
	copy(sorted, infos)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Sequence < sorted[j].Sequence
	})

	chunks := make([]Chunk, len(sorted))
	var offset float64
	for i, info := range sorted {
		if info.Sequence != i {
			return nil, fmt.Errorf("%w: sequence %d at position %d (must be contiguous from 0)",
				ErrInvalidTimeline, info.Sequence, i)
		}
		if info.DurationSeconds <= 0 {
			return nil, fmt.Errorf("%w: chunk %d has non-positive duration %f",
				ErrInvalidTimeline, info.Sequence, info.DurationSeconds)
		}
		chunks[i] = Chunk{
			Sequence:        info.Sequence,
			DurationSeconds: info.DurationSeconds,
			VirtualStart:    offset,
			VirtualEnd:      offset + info.DurationSeconds,
		}
		offset += info.DurationSeconds
	}

	return &Timeline{chunks: chunks, total: offset}, nil
}

// TotalDuration returns the full virtual duration of the book in seconds.
func (t *Timeline) TotalDuration() float64 {
	return t.total
}

// ChunkCount returns the number of chunks in the timeline.
func (t *Timeline) ChunkCount() int {
	return len(t.chunks)
}

// ChunkDuration returns the duration of the chunk at the given index.
func (t *Timeline) ChunkDuration(index int) (float64, error) {
	if index < 0 || index >= len(t.chunks) {
		return 0, fmt.Errorf("%w: %d", ErrChunkIndexOutOfRange, index)
	}
	return t.chunks[index].DurationSeconds, nil
}

// BoundaryOffsets returns the virtual start offset of every chunk, in order.
// The slice is a copy; callers may hold it across timeline replacement.
func (t *Timeline) BoundaryOffsets() []float64 {
	offsets := make([]float64, len(t.chunks))
	for i, c := range t.chunks {
		offsets[i] = c.VirtualStart
	}
	return offsets
}

// ToChunkPosition resolves a virtual time to the chunk containing it and the
// local offset within that chunk. The input is clamped to [0, totalDuration]
// rather than rejected, since scrub gestures routinely overshoot. Chunk
// intervals are half-open [start, end), except that the exact total duration
// resolves to the last chunk at its full local duration.
func (t *Timeline) ToChunkPosition(virtualTime float64) Position {
	if virtualTime <= 0 {
		return Position{ChunkIndex: 0, LocalTime: 0}
	}
	if virtualTime >= t.total {
		last := len(t.chunks) - 1
		return Position{ChunkIndex: last, LocalTime: t.chunks[last].DurationSeconds}
	}

	// Binary search for the first chunk whose end is strictly past the time.
	idx := sort.Search(len(t.chunks), func(i int) bool {
		return t.chunks[i].VirtualEnd > virtualTime
	})
	return Position{
		ChunkIndex: idx,
		LocalTime:  virtualTime - t.chunks[idx].VirtualStart,
	}
}

// ToVirtualTime converts a (chunk index, local time) pair back to virtual
// time. LocalTime is clamped to [0, chunkDuration].
func (t *Timeline) ToVirtualTime(chunkIndex int, localTime float64) (float64, error) {
	if chunkIndex < 0 || chunkIndex >= len(t.chunks) {
		return 0, fmt.Errorf("%w: %d", ErrChunkIndexOutOfRange, chunkIndex)
	}
	c := t.chunks[chunkIndex]
	if localTime < 0 {
		localTime = 0
	}
	if localTime > c.DurationSeconds {
		localTime = c.DurationSeconds
	}
	return c.VirtualStart + localTime, nil
}

// IsNearChunkEnd reports whether the chunk containing virtualTime has at
// most thresholdSeconds of audio remaining.
func (t *Timeline) IsNearChunkEnd(virtualTime, thresholdSeconds float64) bool {
	pos := t.ToChunkPosition(virtualTime)
	remaining := t.chunks[pos.ChunkIndex].DurationSeconds - pos.LocalTime
	return remaining <= thresholdSeconds
}

// NextChunkIndex returns the index after the given one, or NoChunk at the
// end of the book.
func (t *Timeline) NextChunkIndex(index int) int {
	if index < 0 || index+1 >= len(t.chunks) {
		return NoChunk
	}
	return index + 1
}

// PreviousChunkIndex returns the index before the given one, or NoChunk at
// the start of the book.
func (t *Timeline) PreviousChunkIndex(index int) int {
	if index <= 0 || index >= len(t.chunks) {
		return NoChunk
	}
	return index - 1
}
