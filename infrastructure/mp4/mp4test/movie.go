// Package mp4test builds small progressive MPEG-4 movies for tests.
package mp4test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"

	"m4a-extractor/domain/media"
	"m4a-extractor/infrastructure/mp4"
)

// Track is one track of a generated movie
type Track struct {
	Format  media.TrackFormat
	Samples int
	StepUs  int64 // presentation time between samples
}

// AAC returns an AAC LC stereo track at 48 kHz whose samples are stepUs apart
func AAC(samples int, stepUs int64) Track {
	asc := mpeg4audio.AudioSpecificConfig{
		Type:         2, // AAC LC
		SampleRate:   48000,
		ChannelCount: 2,
	}
	config, err := asc.Marshal()
	if err != nil {
		panic(err)
	}
	return Track{
		Format: media.TrackFormat{
			MIME:         media.MIMEAudioAAC,
			Codec:        "mp4a",
			SampleRate:   48000,
			ChannelCount: 2,
			TimeScale:    1000000,
			Language:     "eng",
			CodecConfig:  config,
		},
		Samples: samples,
		StepUs:  stepUs,
	}
}

// AVC returns a 640x360 H.264 track whose samples are stepUs apart
func AVC(samples int, stepUs int64) Track {
	return Track{
		Format: media.TrackFormat{
			MIME:        media.MIMEVideoAVC,
			Codec:       "avc1",
			Width:       640,
			Height:      360,
			TimeScale:   90000,
			SampleEntry: visualSampleEntry(640, 360),
		},
		Samples: samples,
		StepUs:  stepUs,
	}
}

// Payload returns the deterministic payload of sample i of the given track
func Payload(track, i int) []byte {
	p := make([]byte, 16+(i*13)%96)
	p[0] = byte(track)
	binary.BigEndian.PutUint32(p[1:5], uint32(i))
	for j := 5; j < len(p); j++ {
		p[j] = byte(i + j)
	}
	return p
}

// Movie muxes the tracks, interleaved by time, into a progressive MPEG-4 file
func Movie(tracks ...Track) ([]byte, error) {
	var buf seekablebuffer.Buffer
	m := mp4.NewMuxer(&buf)
	for i, t := range tracks {
		if _, err := m.AddTrack(t.Format); err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
	}
	if err := m.Start(); err != nil {
		return nil, err
	}

	next := make([]int, len(tracks))
	for {
		pick := -1
		for i, t := range tracks {
			if next[i] >= t.Samples {
				continue
			}
			if pick < 0 || int64(next[i])*t.StepUs < int64(next[pick])*tracks[pick].StepUs {
				pick = i
			}
		}
		if pick < 0 {
			break
		}

		i := next[pick]
		payload := Payload(pick, i)
		info := media.SampleInfo{
			Size:               len(payload),
			PresentationTimeUs: int64(i) * tracks[pick].StepUs,
			Flags:              media.SampleFlagSync,
		}
		if err := m.WriteSampleData(pick, payload, info); err != nil {
			return nil, fmt.Errorf("track %d sample %d: %w", pick, i, err)
		}
		next[pick]++
	}

	if err := m.Stop(); err != nil {
		return nil, err
	}
	if err := m.Release(); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

// WriteMovie writes Movie(tracks...) to path
func WriteMovie(path string, tracks ...Track) error {
	data, err := Movie(tracks...)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// visualSampleEntry builds a bare avc1 entry without codec boxes
func visualSampleEntry(width, height int) []byte {
	const size = 86
	e := make([]byte, size)
	binary.BigEndian.PutUint32(e[0:4], size)
	copy(e[4:8], "avc1")
	binary.BigEndian.PutUint16(e[14:16], 1)
	binary.BigEndian.PutUint16(e[32:34], uint16(width))
	binary.BigEndian.PutUint16(e[34:36], uint16(height))
	binary.BigEndian.PutUint32(e[36:40], 0x00480000)
	binary.BigEndian.PutUint32(e[40:44], 0x00480000)
	binary.BigEndian.PutUint16(e[48:50], 1)
	binary.BigEndian.PutUint16(e[82:84], 0x0018)
	binary.BigEndian.PutUint16(e[84:86], 0xFFFF)
	return e
}
