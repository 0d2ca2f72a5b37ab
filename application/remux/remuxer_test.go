package remux

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"m4a-extractor/domain/audio"
	"m4a-extractor/domain/media"
)

func TestRemuxer_SelectsFirstAudioTrack(t *testing.T) {
	tests := []struct {
		name      string
		tracks    []media.TrackFormat
		wantTrack int
	}{
		{
			name:      "audio first",
			tracks:    []media.TrackFormat{audioAAC, videoAVC},
			wantTrack: 0,
		},
		{
			name:      "video then audio",
			tracks:    []media.TrackFormat{videoAVC, audioAAC},
			wantTrack: 1,
		},
		{
			name:      "two audio tracks picks the first",
			tracks:    []media.TrackFormat{audioMP3, audioAAC},
			wantTrack: 0,
		},
		{
			name:      "audio after video and text",
			tracks:    []media.TrackFormat{videoAVC, textTx3g, videoAVC, audioAAC, audioMP3},
			wantTrack: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDemuxer(nil, tt.tracks...)
			for i := range tt.tracks {
				d.withSamples(i, 10, 1000)
			}
			m := newFakeMuxer(nil)

			r := newTestRemuxer(d, m)
			if _, err := r.Extract(nil, memSink{}); err != nil {
				t.Fatalf("Extract() unexpected error: %v", err)
			}

			if len(d.selectCalls) != 1 || d.selectCalls[0] != tt.wantTrack {
				t.Errorf("selected tracks = %v, want [%d]", d.selectCalls, tt.wantTrack)
			}
			if len(m.tracks) != 1 || m.tracks[0].MIME != tt.tracks[tt.wantTrack].MIME {
				t.Errorf("muxer tracks = %v, want only %s", m.tracks, tt.tracks[tt.wantTrack].MIME)
			}
			for i, w := range m.written {
				if int(w.payload[0]) != tt.wantTrack {
					t.Fatalf("written sample %d came from track %d, want %d", i, w.payload[0], tt.wantTrack)
				}
			}
		})
	}
}

func TestRemuxer_NoAudioTrack(t *testing.T) {
	d := newFakeDemuxer(nil, videoAVC, textTx3g).withSamples(0, 10, 1000)
	muxerOpened := false
	openDemuxer := func(io.ReadSeeker) (media.Demuxer, error) { return d, nil }
	openMuxer := func(io.WriteSeeker, media.OutputFormat) (media.Muxer, error) {
		muxerOpened = true
		return newFakeMuxer(nil), nil
	}

	var statuses []string
	r := New(openDemuxer, openMuxer, WithObserver(media.ObserverFunc(func(msg string) {
		statuses = append(statuses, msg)
	})))

	n, err := r.Extract(nil, memSink{})

	if !errors.Is(err, audio.ErrNoAudioTrack) {
		t.Fatalf("Extract() error = %v, want ErrNoAudioTrack", err)
	}
	if n != 0 {
		t.Errorf("Extract() samples = %d, want 0", n)
	}
	if muxerOpened {
		t.Error("muxer was opened for an input without audio")
	}
	if d.releaseCount != 1 {
		t.Errorf("demuxer released %d times, want 1", d.releaseCount)
	}
	if len(statuses) == 0 || statuses[0] != "No audio track found in this video." {
		t.Errorf("statuses = %q, want first status about the missing audio track", statuses)
	}
}

func TestRemuxer_CopiesSamplesUnchanged(t *testing.T) {
	// one audio track with 100 samples 0..99000 us and one video track
	d := newFakeDemuxer(nil, audioAAC, videoAVC).
		withSamples(0, 100, 1000).
		withSamples(1, 50, 33333)
	m := newFakeMuxer(nil)

	r := newTestRemuxer(d, m)
	n, err := r.Extract(nil, memSink{})
	if err != nil {
		t.Fatalf("Extract() unexpected error: %v", err)
	}

	if n != 100 {
		t.Errorf("Extract() samples = %d, want 100", n)
	}
	if len(m.written) != 100 {
		t.Fatalf("muxer received %d samples, want 100", len(m.written))
	}

	for i, w := range m.written {
		want := d.samples[0][i]
		if !bytes.Equal(w.payload, want.payload) {
			t.Errorf("sample %d payload = %x, want %x", i, w.payload, want.payload)
		}
		if w.info.Size != len(want.payload) {
			t.Errorf("sample %d size = %d, want %d", i, w.info.Size, len(want.payload))
		}
		if w.info.PresentationTimeUs != int64(i)*1000 {
			t.Errorf("sample %d time = %d, want %d", i, w.info.PresentationTimeUs, int64(i)*1000)
		}
		if w.info.Flags != 0 {
			t.Errorf("sample %d flags = %v, want 0", i, w.info.Flags)
		}
		if w.track != 0 {
			t.Errorf("sample %d written to output track %d, want 0", i, w.track)
		}
	}
}

func TestRemuxer_LifecycleOrder(t *testing.T) {
	var events []string
	d := newFakeDemuxer(&events, audioAAC).withSamples(0, 3, 1000)
	m := newFakeMuxer(&events)

	r := newTestRemuxer(d, m)
	if _, err := r.Extract(nil, memSink{}); err != nil {
		t.Fatalf("Extract() unexpected error: %v", err)
	}

	want := []string{
		"muxer.add",
		"muxer.start",
		"demuxer.select(0)",
		"demuxer.seek(0,0)",
		"demuxer.release",
		"muxer.stop",
		"muxer.release",
	}
	if strings.Join(events, " ") != strings.Join(want, " ") {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestRemuxer_AllocatesTransferBufferOnce(t *testing.T) {
	d := newFakeDemuxer(nil, audioAAC).withSamples(0, 10000, 21333)
	m := newFakeMuxer(nil)

	allocations := 0
	r := newTestRemuxer(d, m, WithBufferAllocator(func(size int) []byte {
		allocations++
		return make([]byte, size)
	}))

	n, err := r.Extract(nil, memSink{})
	if err != nil {
		t.Fatalf("Extract() unexpected error: %v", err)
	}
	if n != 10000 {
		t.Errorf("Extract() samples = %d, want 10000", n)
	}
	if allocations != 1 {
		t.Errorf("buffer allocated %d times, want 1", allocations)
	}
}

func TestRemuxer_BufferSize(t *testing.T) {
	tests := []struct {
		name         string
		maxInputSize int
		minBuffer    int
		want         int
	}{
		{
			name: "undeclared max input size uses the floor",
			want: DefaultMinBufferSize,
		},
		{
			name:         "small declared size uses the floor",
			maxInputSize: 1024,
			want:         DefaultMinBufferSize,
		},
		{
			name:         "large declared size raises the buffer",
			maxInputSize: 1 << 20,
			want:         1 << 20,
		},
		{
			name:      "custom floor",
			minBuffer: 4096,
			want:      4096,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format := audioAAC
			format.MaxInputSize = tt.maxInputSize
			d := newFakeDemuxer(nil, format).withSamples(0, 1, 1000)
			m := newFakeMuxer(nil)

			got := 0
			opts := []Option{WithBufferAllocator(func(size int) []byte {
				got = size
				return make([]byte, size)
			})}
			if tt.minBuffer > 0 {
				opts = append(opts, WithMinBufferSize(tt.minBuffer))
			}

			if _, err := newTestRemuxer(d, m, opts...).Extract(nil, memSink{}); err != nil {
				t.Fatalf("Extract() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("buffer size = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRemuxer_SampleTooLarge(t *testing.T) {
	d := newFakeDemuxer(nil, audioAAC).withSamples(0, 20, 1000)
	// sample 7 outgrows a 32-byte buffer
	d.samples[0][7].payload = make([]byte, 64)
	m := newFakeMuxer(nil)

	n, err := newTestRemuxer(d, m, WithMinBufferSize(32)).Extract(nil, memSink{})

	if !errors.Is(err, audio.ErrSampleTooLarge) {
		t.Fatalf("Extract() error = %v, want ErrSampleTooLarge", err)
	}
	var ee *audio.ExtractionError
	if !errors.As(err, &ee) || ee.Sample != 7 {
		t.Errorf("Extract() error sample = %v, want 7", err)
	}
	if n != 7 {
		t.Errorf("Extract() samples = %d, want 7", n)
	}
	if m.stopCount != 1 || m.releaseCount != 1 {
		t.Errorf("muxer stop/release = %d/%d, want 1/1", m.stopCount, m.releaseCount)
	}
}

func TestRemuxer_CleanupOnEveryPath(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name           string
		tracks         []media.TrackFormat
		demuxerOpenErr error
		muxerOpenErr   error
		setup          func(d *fakeDemuxer, m *fakeMuxer)
		wantKind       error
		wantDemuxer    int // expected demuxer releases
		wantStop       int
		wantRelease    int
	}{
		{
			name:           "source open fault",
			tracks:         []media.TrackFormat{audioAAC},
			demuxerOpenErr: boom,
			wantKind:       audio.ErrSourceOpen,
		},
		{
			name:        "track format fault",
			tracks:      []media.TrackFormat{audioAAC},
			setup:       func(d *fakeDemuxer, _ *fakeMuxer) { d.trackFormatErr = boom },
			wantKind:    audio.ErrSourceOpen,
			wantDemuxer: 1,
		},
		{
			name:        "no audio track",
			tracks:      []media.TrackFormat{videoAVC},
			wantKind:    audio.ErrNoAudioTrack,
			wantDemuxer: 1,
		},
		{
			name:         "sink open fault",
			tracks:       []media.TrackFormat{audioAAC},
			muxerOpenErr: boom,
			wantKind:     audio.ErrSinkOpen,
			wantDemuxer:  1,
		},
		{
			name:        "add track fault",
			tracks:      []media.TrackFormat{audioAAC},
			setup:       func(_ *fakeDemuxer, m *fakeMuxer) { m.addErr = media.ErrUnsupportedTrack },
			wantKind:    audio.ErrSinkOpen,
			wantDemuxer: 1,
			wantRelease: 1,
		},
		{
			name:        "start fault releases without stopping",
			tracks:      []media.TrackFormat{audioAAC},
			setup:       func(_ *fakeDemuxer, m *fakeMuxer) { m.startErr = boom },
			wantKind:    audio.ErrSinkOpen,
			wantDemuxer: 1,
			wantRelease: 1,
		},
		{
			name:        "select fault",
			tracks:      []media.TrackFormat{audioAAC},
			setup:       func(d *fakeDemuxer, _ *fakeMuxer) { d.selectErr = boom },
			wantKind:    audio.ErrSourceOpen,
			wantDemuxer: 1,
			wantStop:    1,
			wantRelease: 1,
		},
		{
			name:        "seek fault",
			tracks:      []media.TrackFormat{audioAAC},
			setup:       func(d *fakeDemuxer, _ *fakeMuxer) { d.seekErr = boom },
			wantKind:    audio.ErrIO,
			wantDemuxer: 1,
			wantStop:    1,
			wantRelease: 1,
		},
		{
			name:   "mid-loop read fault",
			tracks: []media.TrackFormat{audioAAC},
			setup: func(d *fakeDemuxer, _ *fakeMuxer) {
				d.readErrAt = 5
				d.readErr = io.ErrUnexpectedEOF
			},
			wantKind:    audio.ErrIO,
			wantDemuxer: 1,
			wantStop:    1,
			wantRelease: 1,
		},
		{
			name:   "mid-loop write fault",
			tracks: []media.TrackFormat{audioAAC},
			setup: func(_ *fakeDemuxer, m *fakeMuxer) {
				m.writeErrAt = 5
				m.writeErr = boom
			},
			wantKind:    audio.ErrIO,
			wantDemuxer: 1,
			wantStop:    1,
			wantRelease: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDemuxer(nil, tt.tracks...).withSamples(0, 10, 1000)
			m := newFakeMuxer(nil)
			if tt.setup != nil {
				tt.setup(d, m)
			}

			openDemuxer := func(io.ReadSeeker) (media.Demuxer, error) {
				if tt.demuxerOpenErr != nil {
					return nil, tt.demuxerOpenErr
				}
				return d, nil
			}
			openMuxer := func(io.WriteSeeker, media.OutputFormat) (media.Muxer, error) {
				if tt.muxerOpenErr != nil {
					return nil, tt.muxerOpenErr
				}
				return m, nil
			}

			_, err := New(openDemuxer, openMuxer).Extract(nil, memSink{})

			if !errors.Is(err, tt.wantKind) {
				t.Errorf("Extract() error = %v, want kind %v", err, tt.wantKind)
			}
			if d.releaseCount != tt.wantDemuxer {
				t.Errorf("demuxer released %d times, want %d", d.releaseCount, tt.wantDemuxer)
			}
			if m.stopCount != tt.wantStop {
				t.Errorf("muxer stopped %d times, want %d", m.stopCount, tt.wantStop)
			}
			if m.releaseCount != tt.wantRelease {
				t.Errorf("muxer released %d times, want %d", m.releaseCount, tt.wantRelease)
			}
		})
	}
}

func TestRemuxer_IOFaultMidStream(t *testing.T) {
	d := newFakeDemuxer(nil, audioAAC).withSamples(0, 100, 1000)
	m := newFakeMuxer(nil)
	m.writeErrAt = 50
	m.writeErr = errors.New("disk full")

	n, err := newTestRemuxer(d, m).Extract(nil, memSink{})

	if !errors.Is(err, audio.ErrIO) {
		t.Fatalf("Extract() error = %v, want ErrIO", err)
	}
	if n != 50 {
		t.Errorf("Extract() samples = %d, want 50", n)
	}
	if len(m.written) != 50 {
		t.Errorf("muxer holds %d samples, want 50", len(m.written))
	}
	var ee *audio.ExtractionError
	if !errors.As(err, &ee) || ee.Sample != 50 {
		t.Errorf("Extract() error sample = %v, want 50", err)
	}
	if m.stopCount != 1 || m.releaseCount != 1 {
		t.Errorf("muxer stop/release = %d/%d, want 1/1", m.stopCount, m.releaseCount)
	}
}

func TestRemuxer_FinalizationFailureIsOnlyLogged(t *testing.T) {
	d := newFakeDemuxer(nil, audioAAC).withSamples(0, 10, 1000)
	d.releaseErr = errors.New("demuxer release failed")
	m := newFakeMuxer(nil)
	m.stopErr = errors.New("index write failed")
	m.releaseErr = errors.New("close failed")

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	n, err := newTestRemuxer(d, m, WithLogger(logger)).Extract(nil, memSink{})

	if err != nil {
		t.Fatalf("Extract() error = %v, want nil", err)
	}
	if n != 10 {
		t.Errorf("Extract() samples = %d, want 10", n)
	}

	out := logs.String()
	for _, want := range []string{`"level":"WARN"`, `"finalization":true`, "index write failed", "close failed", "demuxer release failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("logs missing %q:\n%s", want, out)
		}
	}
}

func TestRemuxer_ReportsProgress(t *testing.T) {
	d := newFakeDemuxer(nil, videoAVC, audioAAC).withSamples(1, 600, 1000)
	m := newFakeMuxer(nil)

	var statuses []string
	observer := media.ObserverFunc(func(msg string) { statuses = append(statuses, msg) })

	if _, err := newTestRemuxer(d, m, WithObserver(observer)).Extract(nil, memSink{}); err != nil {
		t.Fatalf("Extract() unexpected error: %v", err)
	}

	want := []string{
		"Audio MIME: audio/mp4a-latm",
		"Processed samples: 256",
		"Processed samples: 512",
		"Done. Samples written: 600",
	}
	if strings.Join(statuses, "|") != strings.Join(want, "|") {
		t.Errorf("statuses = %q, want %q", statuses, want)
	}
}

func TestRemuxer_ReportsFailureToObserver(t *testing.T) {
	openDemuxer := func(io.ReadSeeker) (media.Demuxer, error) { return nil, errors.New("not an mp4") }
	openMuxer := func(io.WriteSeeker, media.OutputFormat) (media.Muxer, error) { return newFakeMuxer(nil), nil }

	var statuses []string
	r := New(openDemuxer, openMuxer, WithObserver(media.ObserverFunc(func(msg string) {
		statuses = append(statuses, msg)
	})))

	if _, err := r.Extract(nil, memSink{}); !errors.Is(err, audio.ErrSourceOpen) {
		t.Fatalf("Extract() error = %v, want ErrSourceOpen", err)
	}
	if len(statuses) != 1 || !strings.HasPrefix(statuses[0], "Extraction failed: ") {
		t.Errorf("statuses = %q, want one failure line", statuses)
	}
}

func TestRemuxer_PassesOutputFormat(t *testing.T) {
	d := newFakeDemuxer(nil, audioAAC).withSamples(0, 1, 1000)
	var got media.OutputFormat = -1
	openDemuxer := func(io.ReadSeeker) (media.Demuxer, error) { return d, nil }
	openMuxer := func(_ io.WriteSeeker, format media.OutputFormat) (media.Muxer, error) {
		got = format
		return newFakeMuxer(nil), nil
	}

	r := New(openDemuxer, openMuxer, WithOutputFormat(media.OutputFragmentedMPEG4))
	if _, err := r.Extract(nil, memSink{}); err != nil {
		t.Fatalf("Extract() unexpected error: %v", err)
	}
	if got != media.OutputFragmentedMPEG4 {
		t.Errorf("muxer opened with %v, want %v", got, media.OutputFragmentedMPEG4)
	}
}
