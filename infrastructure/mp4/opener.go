package mp4

import (
	"fmt"
	"io"

	"m4a-extractor/domain/media"
)

// OpenMuxer is a media.MuxerOpener for both MPEG-4 output variants
func OpenMuxer(dst io.WriteSeeker, format media.OutputFormat) (media.Muxer, error) {
	switch format {
	case media.OutputMPEG4:
		return NewMuxer(dst), nil
	case media.OutputFragmentedMPEG4:
		return NewFragmentedMuxer(dst), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Ensure the openers match the domain signatures
var (
	_ media.DemuxerOpener = OpenDemuxer
	_ media.MuxerOpener   = OpenMuxer
)
