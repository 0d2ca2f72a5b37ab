package audio

import (
	"io"
)

// Extractor copies the first audio track of a container into a new audio-only container.
// This is a port that can be implemented by different application adapters.
//
// Both handles are already open and owned by the caller. On success Extract
// returns the number of samples copied.
type Extractor interface {
	Extract(src io.ReadSeeker, dst io.WriteSeeker) (int64, error)
}

// FileChecker defines the interface for checking file existence
type FileChecker interface {
	// Exists returns true if the file exists
	Exists(path string) bool
}

// SourceFile is an opened input handle
type SourceFile interface {
	io.ReadSeeker
	io.Closer
}

// SinkFile is an opened, truncated output handle
type SinkFile interface {
	io.WriteSeeker
	io.Closer
}

// FileStore opens and removes the files an extraction works on
type FileStore interface {
	FileChecker

	// OpenSource opens path read-only
	OpenSource(path string) (SourceFile, error)

	// CreateSink creates or truncates path for writing, creating parent directories
	CreateSink(path string) (SinkFile, error)

	// Remove deletes path; a missing file is not an error
	Remove(path string) error

	// Size returns the size of path in bytes
	Size(path string) (int64, error)
}
