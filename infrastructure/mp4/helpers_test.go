package mp4

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/stretchr/testify/require"

	"m4a-extractor/domain/media"
)

const (
	aacFrameTicks   = 1024
	videoFrameTicks = 3000
)

func testAACConfig(t *testing.T) []byte {
	t.Helper()
	asc := mpeg4audio.AudioSpecificConfig{
		Type:         2, // AAC LC
		SampleRate:   48000,
		ChannelCount: 2,
	}
	b, err := asc.Marshal()
	require.NoError(t, err)
	return b
}

func testAACFormat(t *testing.T) media.TrackFormat {
	return media.TrackFormat{
		MIME:         media.MIMEAudioAAC,
		Codec:        "mp4a",
		SampleRate:   48000,
		ChannelCount: 2,
		TimeScale:    48000,
		Language:     "eng",
		CodecConfig:  testAACConfig(t),
	}
}

// testVisualSampleEntry builds a bare avc1 entry without codec boxes
func testVisualSampleEntry(width, height int) []byte {
	e := make([]byte, visualSampleEntrySize)
	binary.BigEndian.PutUint32(e[0:4], visualSampleEntrySize)
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

func testVideoFormat() media.TrackFormat {
	return media.TrackFormat{
		MIME:        media.MIMEVideoAVC,
		Codec:       "avc1",
		Width:       640,
		Height:      360,
		TimeScale:   90000,
		SampleEntry: testVisualSampleEntry(640, 360),
	}
}

// testPayload returns a deterministic payload tagged with its track and index
func testPayload(track, i int) []byte {
	p := make([]byte, 20+(i*7)%200)
	p[0] = byte(track)
	binary.BigEndian.PutUint32(p[1:5], uint32(i))
	for j := 5; j < len(p); j++ {
		p[j] = byte(i * j)
	}
	return p
}

type testTrack struct {
	format  media.TrackFormat
	count   int
	frame   int64 // ticks per sample
	syncGap int   // every syncGap-th sample is sync; 0 means all
}

func (tt testTrack) timeUs(i int) int64 {
	return ticksToMicros(int64(i)*tt.frame, tt.format.TimeScale)
}

// buildProgressive writes the tracks interleaved by time and returns the file bytes
func buildProgressive(t *testing.T, tracks ...testTrack) []byte {
	t.Helper()

	var buf seekablebuffer.Buffer
	m := NewMuxer(&buf)
	for _, tt := range tracks {
		_, err := m.AddTrack(tt.format)
		require.NoError(t, err)
	}
	require.NoError(t, m.Start())

	next := make([]int, len(tracks))
	for {
		pick := -1
		for i, tt := range tracks {
			if next[i] >= tt.count {
				continue
			}
			if pick < 0 || tt.timeUs(next[i]) < tracks[pick].timeUs(next[pick]) {
				pick = i
			}
		}
		if pick < 0 {
			break
		}

		tt := tracks[pick]
		i := next[pick]
		payload := testPayload(pick, i)
		var flags media.SampleFlags
		if tt.syncGap == 0 || i%tt.syncGap == 0 {
			flags = media.SampleFlagSync
		}
		require.NoError(t, m.WriteSampleData(pick, payload, media.SampleInfo{
			Size:               len(payload),
			PresentationTimeUs: tt.timeUs(i),
			Flags:              flags,
		}))
		next[pick]++
	}

	require.NoError(t, m.Stop())
	require.NoError(t, m.Release())
	return bytes.Clone(buf.Bytes())
}

// findBox returns the offset of the box at path inside file, walking box headers
func findBox(t *testing.T, file []byte, path ...string) int {
	t.Helper()

	start, end, found := 0, len(file), -1
	for depth, name := range path {
		found = -1
		for p := start; p+boxHeaderSize <= end; {
			size, header := int(binary.BigEndian.Uint32(file[p:])), boxHeaderSize
			switch size {
			case 0:
				size = end - p
			case 1:
				size, header = int(binary.BigEndian.Uint64(file[p+8:])), 16
			}
			if size < header {
				break
			}
			if string(file[p+4:p+8]) == name {
				found, start, end = p, p+header, p+size
				break
			}
			p += size
		}
		require.GreaterOrEqual(t, found, 0, "box %v not found", path[:depth+1])
	}
	return found
}

// stblBox returns the offset of a sample table box of the first track
func stblBox(t *testing.T, file []byte, name string) int {
	t.Helper()
	return findBox(t, file, "moov", "trak", "mdia", "minf", "stbl", name)
}
