package mp4

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	gomp4 "github.com/abema/go-mp4"

	"m4a-extractor/domain/media"
)

const (
	movieTimeScale  = 1000
	mdatHeaderSize  = 16 // size=1, type, 64-bit largesize
	chunkDurationUs = 1_000_000
)

var unityMatrix = [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

type muxerState int

const (
	stateIdle muxerState = iota
	stateStarted
	stateStopped
	stateReleased
)

type chunk struct {
	offset  uint64
	samples uint32
	firstUs int64
}

// outTrack accumulates the sample table of one output track
type outTrack struct {
	format    media.TrackFormat
	handler   string
	timeScale uint32
	entry     []byte

	sizes  []uint32
	dts    []int64 // ticks
	sync   []uint32
	chunks []chunk
	lastUs int64
}

// Muxer implements media.Muxer producing a progressive MPEG-4 file:
// ftyp, one mdat holding every sample, then moov.
type Muxer struct {
	w      *gomp4.Writer
	tracks []*outTrack
	state  muxerState

	mdatOffset int64
	pos        int64
	lastTrack  int
}

// NewMuxer creates a progressive MPEG-4 muxer writing to w. The sink must be
// empty; chunk offsets are absolute positions in it.
func NewMuxer(w io.WriteSeeker) *Muxer {
	return &Muxer{w: gomp4.NewWriter(w), lastTrack: -1}
}

// AddTrack implements media.Muxer. The track's sample entry is copied as-is;
// an AAC format without one gets a synthesized mp4a entry.
func (m *Muxer) AddTrack(format media.TrackFormat) (int, error) {
	if m.state != stateIdle {
		return -1, fmt.Errorf("%w: tracks must be added before Start", media.ErrMuxerState)
	}

	handler, ok := handlerFor(format)
	if !ok {
		return -1, fmt.Errorf("%w: %s", media.ErrUnsupportedTrack, format.MIME)
	}

	entry := format.SampleEntry
	if len(entry) == 0 {
		var err error
		if entry, err = buildSampleEntry(format); err != nil {
			return -1, err
		}
	}

	m.tracks = append(m.tracks, &outTrack{
		format:    format,
		handler:   handler,
		timeScale: outputTimeScale(format),
		entry:     entry,
		lastUs:    math.MinInt64,
	})
	return len(m.tracks) - 1, nil
}

// outputTimeScale keeps the input timescale so timestamps convert back exactly
func outputTimeScale(format media.TrackFormat) uint32 {
	switch {
	case format.TimeScale > 0:
		return format.TimeScale
	case format.IsAudio() && format.SampleRate > 0:
		return uint32(format.SampleRate)
	case format.IsVideo():
		return 90000
	default:
		return movieTimeScale
	}
}

// Start implements media.Muxer. It writes ftyp and opens the mdat box.
func (m *Muxer) Start() error {
	if m.state != stateIdle {
		return fmt.Errorf("%w: Start called twice", media.ErrMuxerState)
	}
	if len(m.tracks) == 0 {
		return fmt.Errorf("%w: no tracks added", media.ErrMuxerState)
	}

	major := [4]byte{'M', '4', 'A', ' '}
	for _, t := range m.tracks {
		if t.handler == handlerVideo {
			major = [4]byte{'i', 's', 'o', 'm'}
		}
	}
	ftyp := &gomp4.Ftyp{
		MajorBrand:   major,
		MinorVersion: 0x200,
		CompatibleBrands: []gomp4.CompatibleBrandElem{
			{CompatibleBrand: major},
			{CompatibleBrand: [4]byte{'m', 'p', '4', '2'}},
			{CompatibleBrand: [4]byte{'i', 's', 'o', 'm'}},
		},
	}
	if err := m.writeBox(gomp4.BoxTypeFtyp(), ftyp); err != nil {
		return fmt.Errorf("failed to write ftyp: %w", err)
	}

	offset, err := m.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	m.mdatOffset = offset

	var header [mdatHeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], 1)
	copy(header[4:8], "mdat")
	if _, err := m.w.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write mdat header: %w", err)
	}
	m.pos = offset + mdatHeaderSize

	m.state = stateStarted
	return nil
}

// WriteSampleData implements media.Muxer
func (m *Muxer) WriteSampleData(trackIndex int, data []byte, info media.SampleInfo) error {
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

	if _, err := m.w.Write(data[:info.Size]); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}

	newChunk := m.lastTrack != trackIndex || len(t.chunks) == 0 ||
		info.PresentationTimeUs-t.chunks[len(t.chunks)-1].firstUs >= chunkDurationUs
	if newChunk {
		t.chunks = append(t.chunks, chunk{offset: uint64(m.pos), firstUs: info.PresentationTimeUs})
	}
	t.chunks[len(t.chunks)-1].samples++

	t.sizes = append(t.sizes, uint32(info.Size))
	t.dts = append(t.dts, microsToTicks(info.PresentationTimeUs, t.timeScale))
	if t.handler != handlerVideo || info.Flags&media.SampleFlagSync != 0 {
		t.sync = append(t.sync, uint32(len(t.sizes)))
	}
	t.lastUs = info.PresentationTimeUs

	m.pos += int64(info.Size)
	m.lastTrack = trackIndex
	return nil
}

// Stop implements media.Muxer. It patches the mdat size and writes moov.
func (m *Muxer) Stop() error {
	if m.state != stateStarted {
		return fmt.Errorf("%w: Stop without a successful Start", media.ErrMuxerState)
	}
	m.state = stateStopped

	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(m.pos-m.mdatOffset))
	if _, err := m.w.Seek(m.mdatOffset+8, io.SeekStart); err != nil {
		return err
	}
	if _, err := m.w.Write(size[:]); err != nil {
		return fmt.Errorf("failed to patch mdat size: %w", err)
	}
	if _, err := m.w.Seek(m.pos, io.SeekStart); err != nil {
		return err
	}

	if err := m.writeMoov(); err != nil {
		return fmt.Errorf("failed to write moov: %w", err)
	}
	return nil
}

// Release implements media.Muxer
func (m *Muxer) Release() error {
	if m.state == stateReleased {
		return media.ErrReleased
	}
	m.state = stateReleased
	m.tracks = nil
	return nil
}

func (m *Muxer) writeMoov() error {
	if _, err := m.w.StartBox(&gomp4.BoxInfo{Type: gomp4.BoxTypeMoov()}); err != nil {
		return err
	}

	var movieDuration uint64
	for _, t := range m.tracks {
		d := uint64(divRound(int64(t.duration())*movieTimeScale, int64(t.timeScale)))
		movieDuration = max(movieDuration, d)
	}

	mvhd := &gomp4.Mvhd{
		Timescale:   movieTimeScale,
		Rate:        0x00010000,
		Volume:      0x0100,
		Matrix:      unityMatrix,
		NextTrackID: uint32(len(m.tracks) + 1),
	}
	if movieDuration > math.MaxUint32 {
		mvhd.SetVersion(1)
		mvhd.DurationV1 = movieDuration
	} else {
		mvhd.DurationV0 = uint32(movieDuration)
	}
	if err := m.writeBox(gomp4.BoxTypeMvhd(), mvhd); err != nil {
		return err
	}

	for i, t := range m.tracks {
		duration := uint64(divRound(int64(t.duration())*movieTimeScale, int64(t.timeScale)))
		if err := m.writeTrak(uint32(i+1), t, duration); err != nil {
			return err
		}
	}

	_, err := m.w.EndBox()
	return err
}

func (m *Muxer) writeTrak(id uint32, t *outTrack, movieDuration uint64) error {
	if _, err := m.w.StartBox(&gomp4.BoxInfo{Type: gomp4.BoxTypeTrak()}); err != nil {
		return err
	}

	tkhd := &gomp4.Tkhd{TrackID: id, Matrix: unityMatrix}
	tkhd.SetFlags(0x000003) // enabled, in movie
	if movieDuration > math.MaxUint32 {
		tkhd.SetVersion(1)
		tkhd.DurationV1 = movieDuration
	} else {
		tkhd.DurationV0 = uint32(movieDuration)
	}
	if t.handler == handlerSound {
		tkhd.Volume = 0x0100
	} else {
		tkhd.Width = uint32(t.format.Width) << 16
		tkhd.Height = uint32(t.format.Height) << 16
	}
	if err := m.writeBox(gomp4.BoxTypeTkhd(), tkhd); err != nil {
		return err
	}

	if _, err := m.w.StartBox(&gomp4.BoxInfo{Type: gomp4.BoxTypeMdia()}); err != nil {
		return err
	}

	mdhd := &gomp4.Mdhd{Timescale: t.timeScale, Language: packLanguage(t.format.Language)}
	if d := t.duration(); d > math.MaxUint32 {
		mdhd.SetVersion(1)
		mdhd.DurationV1 = d
	} else {
		mdhd.DurationV0 = uint32(d)
	}
	if err := m.writeBox(gomp4.BoxTypeMdhd(), mdhd); err != nil {
		return err
	}

	hdlr := &gomp4.Hdlr{Name: "SoundHandler"}
	copy(hdlr.HandlerType[:], t.handler)
	if t.handler == handlerVideo {
		hdlr.Name = "VideoHandler"
	}
	if err := m.writeBox(gomp4.BoxTypeHdlr(), hdlr); err != nil {
		return err
	}

	if _, err := m.w.StartBox(&gomp4.BoxInfo{Type: gomp4.BoxTypeMinf()}); err != nil {
		return err
	}
	if t.handler == handlerSound {
		if err := m.writeBox(gomp4.BoxTypeSmhd(), &gomp4.Smhd{}); err != nil {
			return err
		}
	} else {
		vmhd := &gomp4.Vmhd{}
		vmhd.SetFlags(0x000001)
		if err := m.writeBox(gomp4.BoxTypeVmhd(), vmhd); err != nil {
			return err
		}
	}
	if err := m.writeDinf(); err != nil {
		return err
	}
	if err := m.writeStbl(t); err != nil {
		return err
	}

	// minf, mdia, trak
	for range 3 {
		if _, err := m.w.EndBox(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Muxer) writeDinf() error {
	if _, err := m.w.StartBox(&gomp4.BoxInfo{Type: gomp4.BoxTypeDinf()}); err != nil {
		return err
	}
	if _, err := m.w.StartBox(&gomp4.BoxInfo{Type: gomp4.BoxTypeDref()}); err != nil {
		return err
	}
	if _, err := gomp4.Marshal(m.w, &gomp4.Dref{EntryCount: 1}, gomp4.Context{}); err != nil {
		return err
	}
	url := &gomp4.Url{}
	url.SetFlags(0x000001) // media data in this file
	if err := m.writeBox(gomp4.BoxTypeUrl(), url); err != nil {
		return err
	}
	if _, err := m.w.EndBox(); err != nil {
		return err
	}
	_, err := m.w.EndBox()
	return err
}

func (m *Muxer) writeStbl(t *outTrack) error {
	if _, err := m.w.StartBox(&gomp4.BoxInfo{Type: gomp4.BoxTypeStbl()}); err != nil {
		return err
	}

	// stsd with the sample entry copied verbatim
	if _, err := m.w.StartBox(&gomp4.BoxInfo{Type: gomp4.BoxTypeStsd()}); err != nil {
		return err
	}
	if _, err := gomp4.Marshal(m.w, &gomp4.Stsd{EntryCount: 1}, gomp4.Context{}); err != nil {
		return err
	}
	if _, err := m.w.Write(t.entry); err != nil {
		return err
	}
	if _, err := m.w.EndBox(); err != nil {
		return err
	}

	if err := m.writeBox(gomp4.BoxTypeStts(), t.stts()); err != nil {
		return err
	}
	if t.handler == handlerVideo && len(t.sync) != len(t.sizes) {
		stss := &gomp4.Stss{EntryCount: uint32(len(t.sync)), SampleNumber: t.sync}
		if err := m.writeBox(gomp4.BoxTypeStss(), stss); err != nil {
			return err
		}
	}
	if err := m.writeBox(gomp4.BoxTypeStsc(), t.stsc()); err != nil {
		return err
	}
	stsz := &gomp4.Stsz{SampleCount: uint32(len(t.sizes)), EntrySize: t.sizes}
	if err := m.writeBox(gomp4.BoxTypeStsz(), stsz); err != nil {
		return err
	}
	if err := m.writeChunkOffsets(t); err != nil {
		return err
	}

	_, err := m.w.EndBox()
	return err
}

func (m *Muxer) writeChunkOffsets(t *outTrack) error {
	var last uint64
	if n := len(t.chunks); n > 0 {
		last = t.chunks[n-1].offset
	}

	if last > math.MaxUint32 {
		co64 := &gomp4.Co64{EntryCount: uint32(len(t.chunks)), ChunkOffset: make([]uint64, len(t.chunks))}
		for i, c := range t.chunks {
			co64.ChunkOffset[i] = c.offset
		}
		return m.writeBox(gomp4.BoxTypeCo64(), co64)
	}

	stco := &gomp4.Stco{EntryCount: uint32(len(t.chunks)), ChunkOffset: make([]uint32, len(t.chunks))}
	for i, c := range t.chunks {
		stco.ChunkOffset[i] = uint32(c.offset)
	}
	return m.writeBox(gomp4.BoxTypeStco(), stco)
}

func (m *Muxer) writeBox(boxType gomp4.BoxType, box gomp4.IImmutableBox) error {
	if _, err := m.w.StartBox(&gomp4.BoxInfo{Type: boxType}); err != nil {
		return err
	}
	if _, err := gomp4.Marshal(m.w, box, gomp4.Context{}); err != nil {
		return err
	}
	_, err := m.w.EndBox()
	return err
}

// deltas returns the duration of every sample in ticks. The last sample
// repeats the previous delta.
func (t *outTrack) deltas() []uint32 {
	n := len(t.dts)
	out := make([]uint32, n)
	for i := 0; i+1 < n; i++ {
		out[i] = uint32(t.dts[i+1] - t.dts[i])
	}
	if n > 1 {
		out[n-1] = out[n-2]
	}
	return out
}

func (t *outTrack) duration() uint64 {
	var total uint64
	for _, d := range t.deltas() {
		total += uint64(d)
	}
	return total
}

func (t *outTrack) stts() *gomp4.Stts {
	stts := &gomp4.Stts{}
	for _, d := range t.deltas() {
		if n := len(stts.Entries); n > 0 && stts.Entries[n-1].SampleDelta == d {
			stts.Entries[n-1].SampleCount++
			continue
		}
		stts.Entries = append(stts.Entries, gomp4.SttsEntry{SampleCount: 1, SampleDelta: d})
	}
	stts.EntryCount = uint32(len(stts.Entries))
	return stts
}

func (t *outTrack) stsc() *gomp4.Stsc {
	stsc := &gomp4.Stsc{}
	for i, c := range t.chunks {
		if n := len(stsc.Entries); n > 0 && stsc.Entries[n-1].SamplesPerChunk == c.samples {
			continue
		}
		stsc.Entries = append(stsc.Entries, gomp4.StscEntry{
			FirstChunk:             uint32(i + 1),
			SamplesPerChunk:        c.samples,
			SampleDescriptionIndex: 1,
		})
	}
	stsc.EntryCount = uint32(len(stsc.Entries))
	return stsc
}

// packLanguage encodes an ISO-639-2/T code the way mdhd stores it
func packLanguage(lang string) [3]byte {
	if len(lang) != 3 {
		lang = "und"
	}
	var packed [3]byte
	for i := 0; i < 3; i++ {
		packed[i] = lang[i] - 0x60
	}
	return packed
}

// Ensure Muxer implements media.Muxer
var _ media.Muxer = (*Muxer)(nil)
