package media

import "io"

// Demuxer reads compressed samples out of a container.
// This is a port implemented by container adapters.
//
// A demuxer is bound to exactly one source when it is opened; track indices
// are stable for its whole lifetime. Only selected tracks produce samples.
type Demuxer interface {
	// TrackCount returns the number of tracks in the container
	TrackCount() int

	// TrackFormat returns the format of the track at index i
	TrackFormat(i int) (TrackFormat, error)

	// SelectTrack adds the track at index i to the set of tracks being read
	SelectTrack(i int) error

	// SeekTo positions every selected track on a sync sample relative to timeUs
	SeekTo(timeUs int64, mode SeekMode) error

	// ReadSampleData copies the current sample into buf starting at offset 0
	// and returns its size. It returns io.EOF when no sample is left and an
	// error wrapping ErrBufferTooSmall when the sample does not fit in buf.
	ReadSampleData(buf []byte) (int, error)

	// SampleTime returns the presentation time of the current sample in
	// microseconds, or -1 when no sample is left
	SampleTime() int64

	// SampleFlags returns the flags of the current sample
	SampleFlags() SampleFlags

	// SampleTrackIndex returns the track index of the current sample, or -1
	SampleTrackIndex() int

	// Advance moves to the next sample and reports whether one is available
	Advance() bool

	// Release frees the demuxer. The source handle stays owned by the caller.
	Release() error
}

// DemuxerOpener binds a new demuxer to a readable, seekable source
type DemuxerOpener func(src io.ReadSeeker) (Demuxer, error)
