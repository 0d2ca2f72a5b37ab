package mp4

import (
	"strings"

	"m4a-extractor/domain/media"
)

// Handler types of the hdlr box
const (
	handlerSound = "soun"
	handlerVideo = "vide"
	handlerText  = "text"
	handlerSubt  = "subt"
)

// MPEG-4 object type indications (ISO/IEC 14496-1 table 5)
const (
	otiMPEG4Audio   = 0x40
	otiMPEG2Audio   = 0x69
	otiMPEG1Audio   = 0x6B
	otiAC3          = 0xA5
	otiEAC3         = 0xA6
	otiVorbis       = 0xDD
	streamTypeAudio = 0x05
)

var audioMIMEByFourCC = map[string]string{
	"Opus": media.MIMEAudioOpus,
	"ac-3": media.MIMEAudioAC3,
	"ec-3": media.MIMEAudioEAC3,
	"fLaC": media.MIMEAudioFLAC,
	"alac": media.MIMEAudioALAC,
	".mp3": media.MIMEAudioMPEG,
	"samr": "audio/3gpp",
	"sawb": "audio/amr-wb",
	"ulaw": "audio/g711-mlaw",
	"alaw": "audio/g711-alaw",
}

var videoMIMEByFourCC = map[string]string{
	"avc1": media.MIMEVideoAVC,
	"avc3": media.MIMEVideoAVC,
	"hvc1": media.MIMEVideoHEVC,
	"hev1": media.MIMEVideoHEVC,
	"av01": "video/av01",
	"vp09": "video/x-vnd.on2.vp9",
	"vp08": "video/x-vnd.on2.vp8",
	"mp4v": "video/mp4v-es",
	"s263": "video/3gpp",
	"jpeg": "video/mjpeg",
}

// mimeFor derives the MIME type of a track from its sample entry fourcc,
// the esds object type (mp4a only) and the handler type.
func mimeFor(fourcc string, oti uint8, handler string) string {
	if fourcc == "mp4a" {
		return aacMIMEForObjectType(oti)
	}
	if mime, ok := audioMIMEByFourCC[fourcc]; ok {
		return mime
	}
	if mime, ok := videoMIMEByFourCC[fourcc]; ok {
		return mime
	}
	if fourcc == "tx3g" {
		return "text/3gpp-tt"
	}

	suffix := strings.ToLower(strings.TrimSpace(fourcc))
	if suffix == "" {
		suffix = "unknown"
	}
	switch handler {
	case handlerSound:
		return media.AudioMIMEPrefix + "x-" + suffix
	case handlerVideo:
		return media.VideoMIMEPrefix + "x-" + suffix
	case handlerText, handlerSubt:
		return "text/x-" + suffix
	default:
		return "application/x-" + suffix
	}
}

func aacMIMEForObjectType(oti uint8) string {
	switch oti {
	case otiMPEG2Audio, otiMPEG1Audio:
		return media.MIMEAudioMPEG
	case otiAC3:
		return media.MIMEAudioAC3
	case otiEAC3:
		return media.MIMEAudioEAC3
	case otiVorbis:
		return "audio/vorbis"
	default:
		return media.MIMEAudioAAC
	}
}

// handlerFor returns the hdlr type a muxer declares for a format
func handlerFor(format media.TrackFormat) (string, bool) {
	switch {
	case format.IsAudio():
		return handlerSound, true
	case format.IsVideo():
		return handlerVideo, true
	default:
		return "", false
	}
}
