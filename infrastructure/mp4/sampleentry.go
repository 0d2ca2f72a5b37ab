package mp4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"m4a-extractor/domain/media"
)

const (
	boxHeaderSize         = 8
	sampleEntryHeaderSize = 16 // box header, reserved[6], data_reference_index
	audioSampleEntrySize  = 36
	visualSampleEntrySize = 86
)

var errShortSampleEntry = errors.New("sample entry truncated")

// sampleEntryInfo holds the fields read from the fixed part of a sample entry
type sampleEntryInfo struct {
	fourcc       string
	channelCount int
	sampleRate   int
	width        int
	height       int
}

// parseSampleEntry reads the fixed fields of a raw sample entry box.
// Audio entries cover ISO version 0 and QuickTime versions 1 and 2.
func parseSampleEntry(entry []byte, handler string) (sampleEntryInfo, error) {
	if len(entry) < sampleEntryHeaderSize {
		return sampleEntryInfo{}, errShortSampleEntry
	}
	info := sampleEntryInfo{fourcc: string(entry[4:8])}

	switch handler {
	case handlerSound:
		if len(entry) < audioSampleEntrySize {
			return info, errShortSampleEntry
		}
		version := binary.BigEndian.Uint16(entry[16:18])
		if version == 2 {
			// QuickTime SoundDescriptionV2: float64 rate and uint32 channels
			if len(entry) < 52 {
				return info, errShortSampleEntry
			}
			info.sampleRate = int(math.Float64frombits(binary.BigEndian.Uint64(entry[40:48])))
			info.channelCount = int(binary.BigEndian.Uint32(entry[48:52]))
			return info, nil
		}
		info.channelCount = int(binary.BigEndian.Uint16(entry[24:26]))
		info.sampleRate = int(binary.BigEndian.Uint32(entry[32:36]) >> 16)
	case handlerVideo:
		if len(entry) < visualSampleEntrySize {
			return info, errShortSampleEntry
		}
		info.width = int(binary.BigEndian.Uint16(entry[32:34]))
		info.height = int(binary.BigEndian.Uint16(entry[34:36]))
	}
	return info, nil
}

// buildSampleEntry synthesizes an mp4a sample entry with an esds box for an
// AAC format that carries an AudioSpecificConfig but no raw sample entry.
func buildSampleEntry(format media.TrackFormat) ([]byte, error) {
	if format.MIME != media.MIMEAudioAAC {
		return nil, fmt.Errorf("%w: no sample entry for %s", media.ErrUnsupportedTrack, format.MIME)
	}

	var asc mpeg4audio.AudioSpecificConfig
	if err := asc.Unmarshal(format.CodecConfig); err != nil {
		return nil, fmt.Errorf("%w: invalid AudioSpecificConfig: %v", media.ErrUnsupportedTrack, err)
	}

	sampleRate := format.SampleRate
	if sampleRate == 0 {
		sampleRate = asc.SampleRate
	}
	channels := format.ChannelCount
	if channels == 0 {
		channels = asc.ChannelCount
	}

	esds := buildESDS(format.CodecConfig, uint32(format.MaxInputSize))

	entry := make([]byte, audioSampleEntrySize, audioSampleEntrySize+len(esds))
	binary.BigEndian.PutUint32(entry[0:4], uint32(audioSampleEntrySize+len(esds)))
	copy(entry[4:8], "mp4a")
	binary.BigEndian.PutUint16(entry[14:16], 1) // data_reference_index
	binary.BigEndian.PutUint16(entry[24:26], uint16(channels))
	binary.BigEndian.PutUint16(entry[26:28], 16)
	if sampleRate <= math.MaxUint16 {
		binary.BigEndian.PutUint32(entry[32:36], uint32(sampleRate)<<16)
	}
	return append(entry, esds...), nil
}

// buildESDS encodes an esds box carrying an MPEG-4 audio decoder configuration
func buildESDS(config []byte, bufferSize uint32) []byte {
	dsi := descriptor(0x05, config)

	dcd := make([]byte, 13, 13+len(dsi))
	dcd[0] = otiMPEG4Audio
	dcd[1] = streamTypeAudio<<2 | 1
	dcd[2] = byte(bufferSize >> 16)
	dcd[3] = byte(bufferSize >> 8)
	dcd[4] = byte(bufferSize)
	dcd = append(dcd, dsi...)

	es := []byte{0, 0, 0} // ES_ID, flags
	es = append(es, descriptor(0x04, dcd)...)
	es = append(es, descriptor(0x06, []byte{0x02})...)

	body := descriptor(0x03, es)
	box := make([]byte, 12, 12+len(body))
	binary.BigEndian.PutUint32(box[0:4], uint32(12+len(body)))
	copy(box[4:8], "esds")
	return append(box, body...)
}

// descriptor encodes an MPEG-4 descriptor with a four-byte expandable size
func descriptor(tag byte, payload []byte) []byte {
	n := len(payload)
	out := make([]byte, 0, 5+n)
	out = append(out, tag,
		byte(n>>21)&0x7F|0x80,
		byte(n>>14)&0x7F|0x80,
		byte(n>>7)&0x7F|0x80,
		byte(n)&0x7F,
	)
	return append(out, payload...)
}
