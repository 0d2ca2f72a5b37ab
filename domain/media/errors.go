package media

import "errors"

// Errors reported by container adapters
var (
	ErrBufferTooSmall        = errors.New("buffer too small for sample")
	ErrTrackIndex            = errors.New("track index out of range")
	ErrMuxerState            = errors.New("muxer is not in the required state")
	ErrUnsupportedTrack      = errors.New("track format not supported by this container")
	ErrNonMonotonicTimestamp = errors.New("sample timestamp goes backwards")
	ErrReleased              = errors.New("already released")
)
