package media

import "io"

// Muxer writes compressed samples into a container.
// This is a port implemented by container adapters.
//
// Lifecycle: AddTrack (any number of times), Start, WriteSampleData
// (any number of times), Stop, Release. Stop is only valid after a
// successful Start; Release is always valid once.
type Muxer interface {
	// AddTrack registers a track and returns its output index
	AddTrack(format TrackFormat) (int, error)

	// Start commits the track list and makes the muxer ready for samples
	Start() error

	// WriteSampleData appends data[:info.Size] to the track at index track
	WriteSampleData(track int, data []byte, info SampleInfo) error

	// Stop finalizes the container (index, trailer)
	Stop() error

	// Release frees the muxer. The sink handle stays owned by the caller.
	Release() error
}

// MuxerOpener binds a new muxer producing the given format to a sink
type MuxerOpener func(dst io.WriteSeeker, format OutputFormat) (Muxer, error)
