package remux

import (
	"m4a-extractor/domain/audio"
	"m4a-extractor/domain/media"
)

// FirstAudioTrack returns the index and format of the first track whose MIME
// type denotes audio. Tracks are scanned in index order; the first match wins.
func FirstAudioTrack(demuxer media.Demuxer) (int, media.TrackFormat, error) {
	for i := 0; i < demuxer.TrackCount(); i++ {
		format, err := demuxer.TrackFormat(i)
		if err != nil {
			return -1, media.TrackFormat{}, audio.NewExtractionError(audio.ErrSourceOpen, err)
		}
		if format.IsAudio() {
			return i, format, nil
		}
	}
	return -1, media.TrackFormat{}, audio.NewExtractionError(audio.ErrNoAudioTrack, nil)
}
