package media

// SampleFlags carries per-sample attributes
type SampleFlags uint32

const (
	// SampleFlagSync marks a sample decoding can start from
	SampleFlagSync SampleFlags = 1 << iota
)

// SampleInfo describes one compressed sample handed to a muxer.
// The payload itself travels separately so the caller can reuse its buffer.
type SampleInfo struct {
	Size               int
	PresentationTimeUs int64
	Flags              SampleFlags
}

// SeekMode controls which sync sample SeekTo lands on
type SeekMode int

const (
	// SeekPreviousSync lands on the last sync sample at or before the target
	SeekPreviousSync SeekMode = iota
	// SeekNextSync lands on the first sync sample at or after the target
	SeekNextSync
	// SeekClosestSync lands on the sync sample nearest to the target
	SeekClosestSync
)
