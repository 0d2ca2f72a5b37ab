package audio

import (
	"errors"
	"fmt"
)

// Extraction error kinds. Match them with errors.Is.
var (
	ErrSourceOpen     = errors.New("source container could not be opened")
	ErrNoAudioTrack   = errors.New("no audio track found")
	ErrSinkOpen       = errors.New("output container could not be created")
	ErrSampleTooLarge = errors.New("sample exceeds transfer buffer")
	ErrIO             = errors.New("i/o error during sample transfer")
)

// NoSample marks an ExtractionError not tied to a particular sample
const NoSample int64 = -1

// ExtractionError is returned by an Extractor when an extraction fails
type ExtractionError struct {
	Kind   error // one of the Err* kinds above
	Sample int64 // 0-based index of the sample being processed, or NoSample
	Err    error // underlying cause, may be nil
}

// NewExtractionError creates an ExtractionError not tied to a sample
func NewExtractionError(kind, cause error) *ExtractionError {
	return &ExtractionError{Kind: kind, Sample: NoSample, Err: cause}
}

// NewSampleError creates an ExtractionError for the sample at index sample
func NewSampleError(kind error, sample int64, cause error) *ExtractionError {
	return &ExtractionError{Kind: kind, Sample: sample, Err: cause}
}

func (e *ExtractionError) Error() string {
	msg := e.Kind.Error()
	if e.Sample != NoSample {
		msg = fmt.Sprintf("%s at sample %d", msg, e.Sample)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As
func (e *ExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Kind returns the extraction error kind carried by err, or nil
func Kind(err error) error {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return nil
}
