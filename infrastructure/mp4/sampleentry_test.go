package mp4

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m4a-extractor/domain/media"
)

func TestBuildSampleEntry(t *testing.T) {
	entry, err := buildSampleEntry(testAACFormat(t))
	require.NoError(t, err)

	assert.Equal(t, "mp4a", string(entry[4:8]))
	assert.Equal(t, uint32(len(entry)), be32(entry[0:4]))
	assert.Equal(t, "esds", string(entry[audioSampleEntrySize+4:audioSampleEntrySize+8]))

	info, err := parseSampleEntry(entry, handlerSound)
	require.NoError(t, err)
	assert.Equal(t, 2, info.channelCount)
	assert.Equal(t, 48000, info.sampleRate)
}

func TestBuildSampleEntry_Unsupported(t *testing.T) {
	_, err := buildSampleEntry(media.TrackFormat{MIME: media.MIMEAudioOpus})
	assert.ErrorIs(t, err, media.ErrUnsupportedTrack)

	_, err = buildSampleEntry(media.TrackFormat{MIME: media.MIMEAudioAAC, CodecConfig: []byte{0xFF}})
	assert.ErrorIs(t, err, media.ErrUnsupportedTrack)
}

func TestParseSampleEntry(t *testing.T) {
	video, err := parseSampleEntry(testVisualSampleEntry(1920, 1080), handlerVideo)
	require.NoError(t, err)
	assert.Equal(t, "avc1", video.fourcc)
	assert.Equal(t, 1920, video.width)
	assert.Equal(t, 1080, video.height)

	_, err = parseSampleEntry([]byte{0, 0, 0, 8, 'm', 'p'}, handlerSound)
	assert.ErrorIs(t, err, errShortSampleEntry)

	_, err = parseSampleEntry(testVisualSampleEntry(1, 1)[:40], handlerVideo)
	assert.ErrorIs(t, err, errShortSampleEntry)
}
