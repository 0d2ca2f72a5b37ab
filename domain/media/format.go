package media

import (
	"fmt"
	"strings"
)

// MIME type prefixes used to classify tracks
const (
	AudioMIMEPrefix = "audio/"
	VideoMIMEPrefix = "video/"
)

// Well-known MIME types reported by the demuxer
const (
	MIMEAudioAAC  = "audio/mp4a-latm"
	MIMEAudioMPEG = "audio/mpeg"
	MIMEAudioOpus = "audio/opus"
	MIMEAudioAC3  = "audio/ac3"
	MIMEAudioEAC3 = "audio/eac3"
	MIMEAudioFLAC = "audio/flac"
	MIMEAudioALAC = "audio/alac"
	MIMEVideoAVC  = "video/avc"
	MIMEVideoHEVC = "video/hevc"
)

// TrackFormat describes one track of a container.
//
// MIME is always set. The remaining fields are filled when the container
// declares them; a zero value means "not declared".
type TrackFormat struct {
	// MIME is the track's media type, e.g. "audio/mp4a-latm" or "video/avc"
	MIME string

	// Codec is the four-character code of the sample entry, e.g. "mp4a"
	Codec string

	SampleRate   int // audio only
	ChannelCount int // audio only
	Width        int // video only
	Height       int // video only

	// TimeScale is the number of ticks per second of the track's media clock
	TimeScale uint32

	// Language is the ISO-639-2/T code of the track, "und" when unknown
	Language string

	DurationUs int64

	// MaxInputSize is the largest sample the track may contain, in bytes.
	// Zero means the container does not declare it.
	MaxInputSize int

	// CodecConfig is the decoder-specific configuration (e.g. an AAC
	// AudioSpecificConfig). It is carried as-is and never interpreted by the
	// remuxer.
	CodecConfig []byte

	// SampleEntry is the encoded sample description box of the track,
	// including its header. Muxers of the same container family copy it
	// verbatim so the output track mirrors the input configuration.
	SampleEntry []byte
}

// IsAudio reports whether the track carries audio
func (f TrackFormat) IsAudio() bool {
	return strings.HasPrefix(f.MIME, AudioMIMEPrefix)
}

// IsVideo reports whether the track carries video
func (f TrackFormat) IsVideo() bool {
	return strings.HasPrefix(f.MIME, VideoMIMEPrefix)
}

// HasMaxInputSize reports whether the container declared a maximum sample size
func (f TrackFormat) HasMaxInputSize() bool {
	return f.MaxInputSize > 0
}

// String returns a short human-readable summary of the format
func (f TrackFormat) String() string {
	switch {
	case f.IsAudio():
		return fmt.Sprintf("%s %d Hz %d ch", f.MIME, f.SampleRate, f.ChannelCount)
	case f.IsVideo():
		return fmt.Sprintf("%s %dx%d", f.MIME, f.Width, f.Height)
	default:
		return f.MIME
	}
}

// OutputFormat selects the container variant a muxer produces
type OutputFormat int

const (
	// OutputMPEG4 is a progressive MPEG-4 file with the index at the end (.m4a)
	OutputMPEG4 OutputFormat = iota
	// OutputFragmentedMPEG4 is a fragmented MPEG-4 file (init + moof/mdat parts)
	OutputFragmentedMPEG4
)

// String returns the configuration name of the output format
func (o OutputFormat) String() string {
	switch o {
	case OutputMPEG4:
		return "m4a"
	case OutputFragmentedMPEG4:
		return "fmp4"
	default:
		return fmt.Sprintf("OutputFormat(%d)", int(o))
	}
}

// ParseOutputFormat parses a configuration name into an OutputFormat
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "m4a", "mp4", "mpeg4":
		return OutputMPEG4, nil
	case "fmp4", "fragmented":
		return OutputFragmentedMPEG4, nil
	default:
		return 0, fmt.Errorf("unsupported output format %q: expected m4a or fmp4", s)
	}
}
