package remux

import (
	"errors"
	"fmt"
	"io"

	"m4a-extractor/domain/media"
)

// fakeSample is one sample of a fakeDemuxer track
type fakeSample struct {
	payload []byte
	timeUs  int64
}

// fakeDemuxer is an in-memory media.Demuxer
type fakeDemuxer struct {
	events *[]string

	tracks  []media.TrackFormat
	samples map[int][]fakeSample

	selected int
	cursor   int

	// failure injection
	trackFormatErr error
	selectErr      error
	seekErr        error
	readErr        error
	readErrAt      int // index of the sample whose read fails, -1 for none
	releaseErr     error

	selectCalls  []int
	seekCalls    []int64
	releaseCount int
}

func newFakeDemuxer(events *[]string, tracks ...media.TrackFormat) *fakeDemuxer {
	return &fakeDemuxer{
		events:    events,
		tracks:    tracks,
		samples:   make(map[int][]fakeSample),
		selected:  -1,
		readErrAt: -1,
	}
}

// withSamples fills track i with count samples spaced stepUs apart.
// Payloads start with the track index so their origin can be checked.
func (d *fakeDemuxer) withSamples(track, count int, stepUs int64) *fakeDemuxer {
	samples := make([]fakeSample, count)
	for i := range samples {
		payload := make([]byte, 8+i%32)
		payload[0] = byte(track)
		for j := 1; j < len(payload); j++ {
			payload[j] = byte(i + j)
		}
		samples[i] = fakeSample{payload: payload, timeUs: int64(i) * stepUs}
	}
	d.samples[track] = samples
	return d
}

func (d *fakeDemuxer) record(event string) {
	if d.events != nil {
		*d.events = append(*d.events, event)
	}
}

func (d *fakeDemuxer) TrackCount() int { return len(d.tracks) }

func (d *fakeDemuxer) TrackFormat(i int) (media.TrackFormat, error) {
	if d.trackFormatErr != nil {
		return media.TrackFormat{}, d.trackFormatErr
	}
	if i < 0 || i >= len(d.tracks) {
		return media.TrackFormat{}, media.ErrTrackIndex
	}
	return d.tracks[i], nil
}

func (d *fakeDemuxer) SelectTrack(i int) error {
	d.record(fmt.Sprintf("demuxer.select(%d)", i))
	d.selectCalls = append(d.selectCalls, i)
	if d.selectErr != nil {
		return d.selectErr
	}
	d.selected = i
	return nil
}

func (d *fakeDemuxer) SeekTo(timeUs int64, mode media.SeekMode) error {
	d.record(fmt.Sprintf("demuxer.seek(%d,%d)", timeUs, mode))
	d.seekCalls = append(d.seekCalls, timeUs)
	if d.seekErr != nil {
		return d.seekErr
	}
	d.cursor = 0
	return nil
}

func (d *fakeDemuxer) current() (fakeSample, bool) {
	samples := d.samples[d.selected]
	if d.selected < 0 || d.cursor >= len(samples) {
		return fakeSample{}, false
	}
	return samples[d.cursor], true
}

func (d *fakeDemuxer) ReadSampleData(buf []byte) (int, error) {
	if d.readErrAt >= 0 && d.cursor == d.readErrAt {
		return 0, d.readErr
	}
	s, ok := d.current()
	if !ok {
		return 0, io.EOF
	}
	if len(s.payload) > len(buf) {
		return 0, fmt.Errorf("sample of %d bytes: %w", len(s.payload), media.ErrBufferTooSmall)
	}
	return copy(buf, s.payload), nil
}

func (d *fakeDemuxer) SampleTime() int64 {
	s, ok := d.current()
	if !ok {
		return -1
	}
	return s.timeUs
}

func (d *fakeDemuxer) SampleFlags() media.SampleFlags { return media.SampleFlagSync }

func (d *fakeDemuxer) SampleTrackIndex() int {
	if _, ok := d.current(); !ok {
		return -1
	}
	return d.selected
}

func (d *fakeDemuxer) Advance() bool {
	d.cursor++
	_, ok := d.current()
	return ok
}

func (d *fakeDemuxer) Release() error {
	d.record("demuxer.release")
	d.releaseCount++
	return d.releaseErr
}

// writtenSample is a sample captured by fakeMuxer
type writtenSample struct {
	track   int
	payload []byte
	info    media.SampleInfo
}

// fakeMuxer is an in-memory media.Muxer
type fakeMuxer struct {
	events *[]string

	tracks  []media.TrackFormat
	written []writtenSample
	started bool

	// failure injection
	addErr     error
	startErr   error
	writeErr   error
	writeErrAt int // index of the write that fails, -1 for none
	stopErr    error
	releaseErr error

	startCount   int
	stopCount    int
	releaseCount int
}

func newFakeMuxer(events *[]string) *fakeMuxer {
	return &fakeMuxer{events: events, writeErrAt: -1}
}

func (m *fakeMuxer) record(event string) {
	if m.events != nil {
		*m.events = append(*m.events, event)
	}
}

func (m *fakeMuxer) AddTrack(format media.TrackFormat) (int, error) {
	m.record("muxer.add")
	if m.addErr != nil {
		return -1, m.addErr
	}
	m.tracks = append(m.tracks, format)
	return len(m.tracks) - 1, nil
}

func (m *fakeMuxer) Start() error {
	m.record("muxer.start")
	m.startCount++
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *fakeMuxer) WriteSampleData(track int, data []byte, info media.SampleInfo) error {
	if !m.started {
		return media.ErrMuxerState
	}
	if m.writeErrAt >= 0 && len(m.written) == m.writeErrAt {
		return m.writeErr
	}
	payload := make([]byte, info.Size)
	copy(payload, data[:info.Size])
	m.written = append(m.written, writtenSample{track: track, payload: payload, info: info})
	return nil
}

func (m *fakeMuxer) Stop() error {
	m.record("muxer.stop")
	m.stopCount++
	if !m.started {
		return errors.New("stop called on a muxer that was never started")
	}
	return m.stopErr
}

func (m *fakeMuxer) Release() error {
	m.record("muxer.release")
	m.releaseCount++
	return m.releaseErr
}

// newTestRemuxer returns a Remuxer whose openers hand out the given fakes
func newTestRemuxer(d *fakeDemuxer, m *fakeMuxer, opts ...Option) *Remuxer {
	openDemuxer := func(io.ReadSeeker) (media.Demuxer, error) { return d, nil }
	openMuxer := func(io.WriteSeeker, media.OutputFormat) (media.Muxer, error) { return m, nil }
	return New(openDemuxer, openMuxer, opts...)
}

// memSink is a throwaway io.WriteSeeker
type memSink struct{}

func (memSink) Write(p []byte) (int, error)                  { return len(p), nil }
func (memSink) Seek(offset int64, whence int) (int64, error) { return 0, nil }

var (
	audioAAC = media.TrackFormat{MIME: media.MIMEAudioAAC, Codec: "mp4a", SampleRate: 48000, ChannelCount: 2, TimeScale: 48000}
	audioMP3 = media.TrackFormat{MIME: media.MIMEAudioMPEG, Codec: ".mp3", SampleRate: 44100, ChannelCount: 2, TimeScale: 44100}
	videoAVC = media.TrackFormat{MIME: media.MIMEVideoAVC, Codec: "avc1", Width: 1920, Height: 1080, TimeScale: 90000}
	textTx3g = media.TrackFormat{MIME: "text/3gpp-tt", Codec: "tx3g", TimeScale: 1000}
)
