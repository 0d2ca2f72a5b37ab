package mp4

import (
	"fmt"
	"io"
	"math"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	mcmp4 "github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"m4a-extractor/domain/media"
)

// partDurationUs is the amount of media buffered before a part is emitted
const partDurationUs = 1_000_000

// pendingSample is a sample waiting for its duration; its payload lives in the slab
type pendingSample struct {
	dts    int64 // ticks
	offset int
	size   int
	sync   bool
}

type fragTrack struct {
	id        int
	timeScale uint32
	codec     mcmp4.Codec
	audio     bool
	pending   []pendingSample
	lastDur   uint32
	lastUs    int64
	baseUs    int64
}

// FragmentedMuxer implements media.Muxer producing fragmented MPEG-4:
// an init segment at Start, then one moof/mdat part per second of media.
type FragmentedMuxer struct {
	w      io.Writer
	tracks []*fragTrack
	state  muxerState
	seq    uint32

	// one slab for every pending payload, reused across parts
	slab []byte
}

// NewFragmentedMuxer creates a fragmented MPEG-4 muxer writing to w
func NewFragmentedMuxer(w io.Writer) *FragmentedMuxer {
	return &FragmentedMuxer{w: w, seq: 1}
}

// AddTrack implements media.Muxer. Only audio codecs with an fMP4 mapping are accepted.
func (m *FragmentedMuxer) AddTrack(format media.TrackFormat) (int, error) {
	if m.state != stateIdle {
		return -1, fmt.Errorf("%w: tracks must be added before Start", media.ErrMuxerState)
	}

	codec, err := fragmentCodec(format)
	if err != nil {
		return -1, err
	}

	timeScale := outputTimeScale(format)
	m.tracks = append(m.tracks, &fragTrack{
		id:        len(m.tracks) + 1,
		timeScale: timeScale,
		codec:     codec,
		audio:     format.IsAudio(),
		lastDur:   frameTicks(format, timeScale),
		lastUs:    math.MinInt64,
	})
	return len(m.tracks) - 1, nil
}

func fragmentCodec(format media.TrackFormat) (mcmp4.Codec, error) {
	switch format.MIME {
	case media.MIMEAudioAAC:
		var asc mpeg4audio.AudioSpecificConfig
		if err := asc.Unmarshal(format.CodecConfig); err != nil {
			return nil, fmt.Errorf("%w: invalid AudioSpecificConfig: %v", media.ErrUnsupportedTrack, err)
		}
		return &mcmp4.CodecMPEG4Audio{Config: asc}, nil
	case media.MIMEAudioOpus:
		return &mcmp4.CodecOpus{ChannelCount: format.ChannelCount}, nil
	case media.MIMEAudioMPEG:
		return &mcmp4.CodecMPEG1Audio{SampleRate: format.SampleRate, ChannelCount: format.ChannelCount}, nil
	default:
		return nil, fmt.Errorf("%w: %s in fragmented output", media.ErrUnsupportedTrack, format.MIME)
	}
}

// frameTicks is the duration of one coded frame, used for a last sample
// that has no predecessor to copy its duration from. 0 when unknown.
func frameTicks(format media.TrackFormat, timeScale uint32) uint32 {
	var samples, rate int
	switch format.MIME {
	case media.MIMEAudioAAC:
		samples, rate = 1024, format.SampleRate
	case media.MIMEAudioMPEG:
		samples, rate = 1152, format.SampleRate
	case media.MIMEAudioOpus:
		samples, rate = 960, 48000
	}
	if samples == 0 || rate <= 0 {
		return 0
	}
	return uint32(uint64(samples) * uint64(timeScale) / uint64(rate))
}

// Start implements media.Muxer. It writes the init segment.
func (m *FragmentedMuxer) Start() error {
	if m.state != stateIdle {
		return fmt.Errorf("%w: Start called twice", media.ErrMuxerState)
	}
	if len(m.tracks) == 0 {
		return fmt.Errorf("%w: no tracks added", media.ErrMuxerState)
	}

	init := &fmp4.Init{}
	for _, t := range m.tracks {
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        t.id,
			TimeScale: t.timeScale,
			Codec:     t.codec,
		})
	}

	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return fmt.Errorf("failed to marshal init segment: %w", err)
	}
	if _, err := m.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write init segment: %w", err)
	}

	m.state = stateStarted
	return nil
}

// WriteSampleData implements media.Muxer
func (m *FragmentedMuxer) WriteSampleData(trackIndex int, data []byte, info media.SampleInfo) error {
	if m.state != stateStarted {
		return fmt.Errorf("%w: muxer not started", media.ErrMuxerState)
	}
	if trackIndex < 0 || trackIndex >= len(m.tracks) {
		return fmt.Errorf("%w: %d", media.ErrTrackIndex, trackIndex)
	}
	if info.Size < 0 || info.Size > len(data) {
		return fmt.Errorf("sample size %d exceeds payload of %d bytes", info.Size, len(data))
	}

	t := m.tracks[trackIndex]
	if info.PresentationTimeUs < t.lastUs {
		return fmt.Errorf("%w: %d after %d", media.ErrNonMonotonicTimestamp, info.PresentationTimeUs, t.lastUs)
	}
	if len(t.pending) == 0 {
		t.baseUs = info.PresentationTimeUs
	}

	// the previous sample's duration is known once its successor arrives
	if info.PresentationTimeUs-t.baseUs >= partDurationUs && len(t.pending) > 0 {
		if err := m.flush(t, microsToTicks(info.PresentationTimeUs, t.timeScale)); err != nil {
			return err
		}
		t.baseUs = info.PresentationTimeUs
	}

	offset := len(m.slab)
	m.slab = append(m.slab, data[:info.Size]...)
	t.pending = append(t.pending, pendingSample{
		dts:    microsToTicks(info.PresentationTimeUs, t.timeScale),
		offset: offset,
		size:   info.Size,
		sync:   t.audio || info.Flags&media.SampleFlagSync != 0,
	})
	t.lastUs = info.PresentationTimeUs
	return nil
}

// flush emits every pending sample as one part. nextDTS closes the duration
// of the last pending sample of closing; other tracks repeat their previous
// duration, which before any sample is one frame (see frameTicks).
func (m *FragmentedMuxer) flush(closing *fragTrack, nextDTS int64) error {
	part := &fmp4.Part{SequenceNumber: m.seq}

	for _, t := range m.tracks {
		if len(t.pending) == 0 {
			continue
		}

		pt := &fmp4.PartTrack{ID: t.id, BaseTime: uint64(max(t.pending[0].dts, 0))}
		for i, s := range t.pending {
			var dur uint32
			switch {
			case i+1 < len(t.pending):
				dur = uint32(t.pending[i+1].dts - s.dts)
			case t == closing && nextDTS >= s.dts:
				dur = uint32(nextDTS - s.dts)
			default:
				dur = t.lastDur
			}
			t.lastDur = dur

			pt.Samples = append(pt.Samples, &fmp4.Sample{
				Duration:        dur,
				IsNonSyncSample: !s.sync,
				Payload:         m.slab[s.offset : s.offset+s.size],
			})
		}
		part.Tracks = append(part.Tracks, pt)
		t.pending = t.pending[:0]
	}

	if len(part.Tracks) == 0 {
		return nil
	}

	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return fmt.Errorf("failed to marshal part %d: %w", m.seq, err)
	}
	if _, err := m.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write part %d: %w", m.seq, err)
	}

	m.seq++
	m.slab = m.slab[:0]
	return nil
}

// Stop implements media.Muxer. It flushes the last part.
func (m *FragmentedMuxer) Stop() error {
	if m.state != stateStarted {
		return fmt.Errorf("%w: Stop without a successful Start", media.ErrMuxerState)
	}
	m.state = stateStopped
	return m.flush(nil, 0)
}

// Release implements media.Muxer
func (m *FragmentedMuxer) Release() error {
	if m.state == stateReleased {
		return media.ErrReleased
	}
	m.state = stateReleased
	m.tracks = nil
	m.slab = nil
	return nil
}

// Ensure FragmentedMuxer implements media.Muxer
var _ media.Muxer = (*FragmentedMuxer)(nil)
