package remux

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"m4a-extractor/domain/audio"
	"m4a-extractor/domain/media"
)

const (
	// DefaultMinBufferSize is the floor of the transfer buffer size
	DefaultMinBufferSize = 256 * 1024

	// DefaultProgressInterval is the number of samples between progress notifications
	DefaultProgressInterval = 256
)

// Remuxer implements audio.Extractor by copying compressed samples from a
// demuxer to a muxer without decoding them.
//
// A Remuxer holds no per-call state and may be reused, but a single call is
// synchronous and must not share its handles with a concurrent call.
type Remuxer struct {
	openDemuxer      media.DemuxerOpener
	openMuxer        media.MuxerOpener
	format           media.OutputFormat
	observer         media.Observer
	logger           *slog.Logger
	minBufferSize    int
	progressInterval int64
	allocate         func(size int) []byte
}

// Option is a functional option for configuring Remuxer
type Option func(*Remuxer)

// WithOutputFormat sets the container variant of the output
func WithOutputFormat(format media.OutputFormat) Option {
	return func(r *Remuxer) {
		r.format = format
	}
}

// WithObserver sets the receiver of status lines
func WithObserver(observer media.Observer) Option {
	return func(r *Remuxer) {
		r.observer = observer
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Remuxer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMinBufferSize overrides the transfer buffer floor
func WithMinBufferSize(size int) Option {
	return func(r *Remuxer) {
		if size > 0 {
			r.minBufferSize = size
		}
	}
}

// WithProgressInterval overrides how many samples pass between progress notifications
func WithProgressInterval(samples int) Option {
	return func(r *Remuxer) {
		if samples > 0 {
			r.progressInterval = int64(samples)
		}
	}
}

// WithBufferAllocator sets the function that allocates the transfer buffer (for testing)
func WithBufferAllocator(allocate func(size int) []byte) Option {
	return func(r *Remuxer) {
		if allocate != nil {
			r.allocate = allocate
		}
	}
}

// New creates a Remuxer reading with openDemuxer and writing with openMuxer
func New(openDemuxer media.DemuxerOpener, openMuxer media.MuxerOpener, opts ...Option) *Remuxer {
	r := &Remuxer{
		openDemuxer:      openDemuxer,
		openMuxer:        openMuxer,
		format:           media.OutputMPEG4,
		logger:           slog.New(slog.DiscardHandler),
		minBufferSize:    DefaultMinBufferSize,
		progressInterval: DefaultProgressInterval,
		allocate:         func(size int) []byte { return make([]byte, size) },
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Extract copies the first audio track of src into a new container written to dst.
// It returns the number of samples copied; on failure the count covers the
// samples written before the failure and the error is an *audio.ExtractionError.
func (r *Remuxer) Extract(src io.ReadSeeker, dst io.WriteSeeker) (n int64, err error) {
	var (
		demuxer media.Demuxer
		muxer   media.Muxer
		started bool
	)

	defer func() {
		r.cleanup(demuxer, muxer, started)

		if err != nil {
			r.logger.Error("audio extraction failed", "error", err, "samples", n)
			r.status(fmt.Sprintf("Extraction failed: %v", err))
			return
		}
		r.logger.Info("audio extraction complete", "samples", n)
		r.status(fmt.Sprintf("Done. Samples written: %d", n))
	}()

	demuxer, err = r.openDemuxer(src)
	if err != nil {
		demuxer = nil
		return 0, audio.NewExtractionError(audio.ErrSourceOpen, err)
	}

	track, format, err := FirstAudioTrack(demuxer)
	if err != nil {
		if errors.Is(err, audio.ErrNoAudioTrack) {
			r.status("No audio track found in this video.")
		}
		return 0, err
	}
	r.logger.Debug("audio track selected", "track", track, "mime", format.MIME, "max_input_size", format.MaxInputSize)
	r.status("Audio MIME: " + format.MIME)

	muxer, err = r.openMuxer(dst, r.format)
	if err != nil {
		muxer = nil
		return 0, audio.NewExtractionError(audio.ErrSinkOpen, err)
	}

	outTrack, err := muxer.AddTrack(format)
	if err != nil {
		return 0, audio.NewExtractionError(audio.ErrSinkOpen, err)
	}

	if err := muxer.Start(); err != nil {
		return 0, audio.NewExtractionError(audio.ErrSinkOpen, err)
	}
	started = true

	if err := demuxer.SelectTrack(track); err != nil {
		return 0, audio.NewExtractionError(audio.ErrSourceOpen, err)
	}
	if err := demuxer.SeekTo(0, media.SeekPreviousSync); err != nil {
		return 0, audio.NewExtractionError(audio.ErrIO, err)
	}

	return r.copySamples(demuxer, muxer, outTrack, r.bufferSize(format))
}

// copySamples moves every remaining sample of the selected track through one buffer
func (r *Remuxer) copySamples(demuxer media.Demuxer, muxer media.Muxer, outTrack, bufferSize int) (int64, error) {
	buf := r.allocate(bufferSize)

	var (
		n    int64
		info media.SampleInfo
	)
	for {
		size, err := demuxer.ReadSampleData(buf)
		if errors.Is(err, io.EOF) || (err == nil && size < 0) {
			return n, nil
		}
		if errors.Is(err, media.ErrBufferTooSmall) {
			return n, audio.NewSampleError(audio.ErrSampleTooLarge, n, err)
		}
		if err != nil {
			return n, audio.NewSampleError(audio.ErrIO, n, err)
		}

		info.Size = size
		info.PresentationTimeUs = demuxer.SampleTime()
		info.Flags = 0

		if err := muxer.WriteSampleData(outTrack, buf[:size], info); err != nil {
			return n, audio.NewSampleError(audio.ErrIO, n, err)
		}

		demuxer.Advance()
		n++

		if n%r.progressInterval == 0 {
			r.logger.Debug("transfer progress", "samples", n)
			r.status(fmt.Sprintf("Processed samples: %d", n))
		}
	}
}

// bufferSize returns max(floor, declared max input size)
func (r *Remuxer) bufferSize(format media.TrackFormat) int {
	return max(r.minBufferSize, format.MaxInputSize)
}

// cleanup releases whatever the call managed to create. Failures are logged only.
func (r *Remuxer) cleanup(demuxer media.Demuxer, muxer media.Muxer, started bool) {
	if demuxer != nil {
		if err := demuxer.Release(); err != nil {
			r.logger.Debug("demuxer release failed", "error", err)
		}
	}

	if muxer == nil {
		return
	}

	if started {
		if err := muxer.Stop(); err != nil {
			r.logger.Warn("output container finalization failed", "finalization", true, "stage", "stop", "error", err)
		}
	}
	if err := muxer.Release(); err != nil {
		r.logger.Warn("output container finalization failed", "finalization", true, "stage", "release", "error", err)
	}
}

func (r *Remuxer) status(msg string) {
	if r.observer != nil {
		r.observer.OnStatus(msg)
	}
}

// Ensure Remuxer implements audio.Extractor
var _ audio.Extractor = (*Remuxer)(nil)
