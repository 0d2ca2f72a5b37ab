package mp4

import (
	"errors"
	"fmt"
	"io"
	"sort"

	gomp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"m4a-extractor/domain/media"
)

// Errors reported while opening a container
var (
	ErrNoMovie    = errors.New("no moov box found")
	ErrFragmented = errors.New("fragmented input is not supported")
)

// sample is one entry of a track's sample table
type sample struct {
	offset int64
	size   uint32
	dts    int64 // decode time in track ticks
	pts    int64 // presentation time in track ticks
	sync   bool
}

type track struct {
	id      uint32
	handler string
	format  media.TrackFormat
	samples []sample
}

// Demuxer implements media.Demuxer for progressive ISO-BMFF files (.mp4, .m4a, .mov)
type Demuxer struct {
	src      io.ReadSeeker
	tracks   []*track
	selected []bool
	cursors  []int
	current  int // track index of the current sample, -1 when none
	released bool
}

// Open parses the movie header of src and returns a Demuxer bound to it.
// No track is selected.
func Open(src io.ReadSeeker) (*Demuxer, error) {
	length, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to measure source: %w", err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind source: %w", err)
	}

	moovs, err := gomp4.ExtractBox(src, nil, gomp4.BoxPath{gomp4.BoxTypeMoov()})
	if err != nil {
		return nil, fmt.Errorf("failed to scan container: %w", err)
	}
	if len(moovs) == 0 {
		return nil, ErrNoMovie
	}
	moov := moovs[0]

	mvex, err := gomp4.ExtractBox(src, moov, gomp4.BoxPath{gomp4.BoxTypeMvex()})
	if err != nil {
		return nil, fmt.Errorf("failed to read moov: %w", err)
	}
	if len(mvex) > 0 {
		return nil, ErrFragmented
	}

	traks, err := gomp4.ExtractBox(src, moov, gomp4.BoxPath{gomp4.BoxTypeTrak()})
	if err != nil {
		return nil, fmt.Errorf("failed to read tracks: %w", err)
	}

	d := &Demuxer{src: src, current: -1}
	for i, trak := range traks {
		t, err := readTrack(src, trak, length)
		if err != nil {
			return nil, fmt.Errorf("failed to read track %d: %w", i, err)
		}
		d.tracks = append(d.tracks, t)
	}
	d.selected = make([]bool, len(d.tracks))
	d.cursors = make([]int, len(d.tracks))

	return d, nil
}

// OpenDemuxer is a media.DemuxerOpener backed by Open
func OpenDemuxer(src io.ReadSeeker) (media.Demuxer, error) {
	d, err := Open(src)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func readTrack(src io.ReadSeeker, trak *gomp4.BoxInfo, length int64) (*track, error) {
	stbl := []gomp4.BoxType{gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl()}
	under := func(types ...gomp4.BoxType) gomp4.BoxPath {
		return append(append(gomp4.BoxPath{}, stbl...), types...)
	}

	boxes, err := gomp4.ExtractBoxesWithPayload(src, trak, []gomp4.BoxPath{
		{gomp4.BoxTypeTkhd()},
		{gomp4.BoxTypeMdia(), gomp4.BoxTypeMdhd()},
		{gomp4.BoxTypeMdia(), gomp4.BoxTypeHdlr()},
		under(gomp4.BoxTypeStts()),
		under(gomp4.BoxTypeCtts()),
		under(gomp4.BoxTypeStss()),
		under(gomp4.BoxTypeStsc()),
		under(gomp4.BoxTypeStsz()),
		under(gomp4.BoxTypeStco()),
		under(gomp4.BoxTypeCo64()),
		under(gomp4.BoxTypeStsd(), gomp4.BoxTypeMp4a(), gomp4.BoxTypeEsds()),
		// QuickTime sound description v1
		under(gomp4.BoxTypeStsd(), gomp4.BoxTypeMp4a(), gomp4.BoxTypeWave(), gomp4.BoxTypeEsds()),
	})
	if err != nil {
		return nil, err
	}

	var (
		t     = &track{}
		mdhd  *gomp4.Mdhd
		table sampleTable
		esds  *gomp4.Esds
	)
	for _, b := range boxes {
		switch p := b.Payload.(type) {
		case *gomp4.Tkhd:
			t.id = p.TrackID
		case *gomp4.Mdhd:
			mdhd = p
		case *gomp4.Hdlr:
			t.handler = string(p.HandlerType[:])
		case *gomp4.Stts:
			table.stts = p
		case *gomp4.Ctts:
			table.ctts = p
		case *gomp4.Stss:
			table.stss = p
		case *gomp4.Stsc:
			table.stsc = p
		case *gomp4.Stsz:
			table.stsz = p
		case *gomp4.Stco:
			table.chunkOffsets = make([]uint64, len(p.ChunkOffset))
			for i, off := range p.ChunkOffset {
				table.chunkOffsets[i] = uint64(off)
			}
		case *gomp4.Co64:
			table.chunkOffsets = p.ChunkOffset
		case *gomp4.Esds:
			esds = p
		}
	}
	if mdhd == nil {
		return nil, errors.New("missing mdhd box")
	}

	entry, err := readFirstSampleEntry(src, trak)
	if err != nil {
		return nil, err
	}

	t.samples, err = table.build(length)
	if err != nil {
		return nil, err
	}

	t.format, err = trackFormat(t, mdhd, entry, esds)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// readFirstSampleEntry returns the raw bytes of the first entry of the track's stsd box
func readFirstSampleEntry(src io.ReadSeeker, trak *gomp4.BoxInfo) ([]byte, error) {
	stsds, err := gomp4.ExtractBox(src, trak, gomp4.BoxPath{
		gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(),
	})
	if err != nil {
		return nil, err
	}
	if len(stsds) == 0 {
		return nil, errors.New("missing stsd box")
	}
	stsd := stsds[0]

	// full box header (4) and entry_count (4) precede the first entry
	start := int64(stsd.Offset + stsd.HeaderSize + 8)
	end := int64(stsd.Offset + stsd.Size)
	if _, err := src.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}

	var header [boxHeaderSize]byte
	if _, err := io.ReadFull(src, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read sample entry: %w", err)
	}
	size := int64(be32(header[0:4]))
	if size < boxHeaderSize || start+size > end {
		return nil, fmt.Errorf("invalid sample entry size %d", size)
	}

	entry := make([]byte, size)
	copy(entry, header[:])
	if _, err := io.ReadFull(src, entry[boxHeaderSize:]); err != nil {
		return nil, fmt.Errorf("failed to read sample entry: %w", err)
	}
	return entry, nil
}

func trackFormat(t *track, mdhd *gomp4.Mdhd, entry []byte, esds *gomp4.Esds) (media.TrackFormat, error) {
	info, err := parseSampleEntry(entry, t.handler)
	if err != nil {
		return media.TrackFormat{}, err
	}

	var (
		oti    uint8
		config []byte
	)
	if esds != nil {
		for _, d := range esds.Descriptors {
			switch {
			case d.DecoderConfigDescriptor != nil:
				oti = d.DecoderConfigDescriptor.ObjectTypeIndication
			case d.Tag == gomp4.DecSpecificInfoTag:
				config = d.Data
			}
		}
	}

	duration := uint64(mdhd.DurationV0)
	if mdhd.GetVersion() == 1 {
		duration = mdhd.DurationV1
	}

	format := media.TrackFormat{
		MIME:         mimeFor(info.fourcc, oti, t.handler),
		Codec:        info.fourcc,
		SampleRate:   info.sampleRate,
		ChannelCount: info.channelCount,
		Width:        info.width,
		Height:       info.height,
		TimeScale:    mdhd.Timescale,
		Language:     language(mdhd.Language),
		DurationUs:   ticksToMicros(int64(duration), mdhd.Timescale),
		CodecConfig:  config,
		SampleEntry:  entry,
	}

	for _, s := range t.samples {
		format.MaxInputSize = max(format.MaxInputSize, int(s.size))
	}

	if format.MIME == media.MIMEAudioAAC && len(config) > 0 {
		var asc mpeg4audio.AudioSpecificConfig
		if err := asc.Unmarshal(config); err == nil {
			if format.SampleRate == 0 {
				format.SampleRate = asc.SampleRate
			}
			if format.ChannelCount == 0 {
				format.ChannelCount = asc.ChannelCount
			}
		}
	}

	return format, nil
}

// language decodes the packed ISO-639-2/T code of an mdhd box
func language(packed [3]byte) string {
	if packed == [3]byte{} {
		return "und"
	}
	b := make([]byte, 3)
	for i, c := range packed {
		b[i] = c + 0x60
	}
	return string(b)
}

// TrackCount implements media.Demuxer
func (d *Demuxer) TrackCount() int {
	return len(d.tracks)
}

// TrackFormat implements media.Demuxer
func (d *Demuxer) TrackFormat(i int) (media.TrackFormat, error) {
	if err := d.checkTrack(i); err != nil {
		return media.TrackFormat{}, err
	}
	return d.tracks[i].format, nil
}

// TrackID returns the container track ID of the track at index i
func (d *Demuxer) TrackID(i int) (uint32, error) {
	if err := d.checkTrack(i); err != nil {
		return 0, err
	}
	return d.tracks[i].id, nil
}

// SampleCount returns the number of samples of the track at index i
func (d *Demuxer) SampleCount(i int) (int, error) {
	if err := d.checkTrack(i); err != nil {
		return 0, err
	}
	return len(d.tracks[i].samples), nil
}

// SelectTrack implements media.Demuxer
func (d *Demuxer) SelectTrack(i int) error {
	if err := d.checkTrack(i); err != nil {
		return err
	}
	d.selected[i] = true
	d.updateCurrent()
	return nil
}

// UnselectTrack removes the track at index i from the set of tracks being read
func (d *Demuxer) UnselectTrack(i int) error {
	if err := d.checkTrack(i); err != nil {
		return err
	}
	d.selected[i] = false
	d.updateCurrent()
	return nil
}

// SeekTo implements media.Demuxer
func (d *Demuxer) SeekTo(timeUs int64, mode media.SeekMode) error {
	if d.released {
		return media.ErrReleased
	}
	for i, t := range d.tracks {
		if d.selected[i] {
			d.cursors[i] = seekIndex(t, microsToTicks(timeUs, t.format.TimeScale), mode)
		}
	}
	d.updateCurrent()
	return nil
}

// seekIndex returns the index of the sync sample mode picks relative to target ticks
func seekIndex(t *track, target int64, mode media.SeekMode) int {
	prev, next := -1, len(t.samples)
	for i, s := range t.samples {
		if !s.sync {
			continue
		}
		if s.pts <= target {
			prev = i
			continue
		}
		next = i
		break
	}

	switch mode {
	case media.SeekNextSync:
		if prev >= 0 && t.samples[prev].pts == target {
			return prev
		}
		return next
	case media.SeekClosestSync:
		switch {
		case prev < 0:
			return next
		case next >= len(t.samples):
			return prev
		case target-t.samples[prev].pts <= t.samples[next].pts-target:
			return prev
		default:
			return next
		}
	default:
		if prev < 0 {
			// nothing at or before the target: start from the first sync sample
			return next
		}
		return prev
	}
}

// ReadSampleData implements media.Demuxer
func (d *Demuxer) ReadSampleData(buf []byte) (int, error) {
	if d.released {
		return 0, media.ErrReleased
	}
	s, ok := d.currentSample()
	if !ok {
		return 0, io.EOF
	}
	if int(s.size) > len(buf) {
		return 0, fmt.Errorf("sample of %d bytes, buffer holds %d: %w", s.size, len(buf), media.ErrBufferTooSmall)
	}
	if _, err := d.src.Seek(s.offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek to sample: %w", err)
	}
	if _, err := io.ReadFull(d.src, buf[:s.size]); err != nil {
		return 0, fmt.Errorf("failed to read sample: %w", err)
	}
	return int(s.size), nil
}

// SampleTime implements media.Demuxer
func (d *Demuxer) SampleTime() int64 {
	s, ok := d.currentSample()
	if !ok {
		return -1
	}
	return ticksToMicros(s.pts, d.tracks[d.current].format.TimeScale)
}

// SampleFlags implements media.Demuxer
func (d *Demuxer) SampleFlags() media.SampleFlags {
	s, ok := d.currentSample()
	if !ok || !s.sync {
		return 0
	}
	return media.SampleFlagSync
}

// SampleTrackIndex implements media.Demuxer
func (d *Demuxer) SampleTrackIndex() int {
	if _, ok := d.currentSample(); !ok {
		return -1
	}
	return d.current
}

// SampleSize returns the size of the current sample, or -1 when none is left
func (d *Demuxer) SampleSize() int {
	s, ok := d.currentSample()
	if !ok {
		return -1
	}
	return int(s.size)
}

// Advance implements media.Demuxer
func (d *Demuxer) Advance() bool {
	if d.released || d.current < 0 {
		return false
	}
	d.cursors[d.current]++
	d.updateCurrent()
	return d.current >= 0
}

// Release implements media.Demuxer
func (d *Demuxer) Release() error {
	if d.released {
		return media.ErrReleased
	}
	d.released = true
	d.current = -1
	return nil
}

func (d *Demuxer) checkTrack(i int) error {
	if d.released {
		return media.ErrReleased
	}
	if i < 0 || i >= len(d.tracks) {
		return fmt.Errorf("%w: %d of %d", media.ErrTrackIndex, i, len(d.tracks))
	}
	return nil
}

func (d *Demuxer) currentSample() (sample, bool) {
	if d.released || d.current < 0 {
		return sample{}, false
	}
	return d.tracks[d.current].samples[d.cursors[d.current]], true
}

// updateCurrent picks the selected track whose next sample decodes first
func (d *Demuxer) updateCurrent() {
	d.current = -1
	var best int64
	for i, t := range d.tracks {
		if !d.selected[i] || d.cursors[i] >= len(t.samples) {
			continue
		}
		dts := ticksToMicros(t.samples[d.cursors[i]].dts, t.format.TimeScale)
		if d.current < 0 || dts < best {
			d.current, best = i, dts
		}
	}
}

// sampleTable gathers the stbl boxes of one track
type sampleTable struct {
	stts         *gomp4.Stts
	ctts         *gomp4.Ctts
	stss         *gomp4.Stss
	stsc         *gomp4.Stsc
	stsz         *gomp4.Stsz
	chunkOffsets []uint64
}

// build expands the run-length coded tables into one entry per sample.
// The sample count is checked against stts and against the source length
// before anything is allocated for it.
func (st sampleTable) build(length int64) ([]sample, error) {
	if st.stsz == nil || st.stts == nil || st.stsc == nil {
		return nil, errors.New("incomplete sample table")
	}

	count := uint64(st.stsz.SampleCount)
	if st.stsz.SampleSize == 0 && uint64(len(st.stsz.EntrySize)) < count {
		return nil, fmt.Errorf("stsz lists %d sizes for %d samples", len(st.stsz.EntrySize), count)
	}

	var timed uint64
	for _, e := range st.stts.Entries {
		timed += uint64(e.SampleCount)
	}
	if timed < count {
		return nil, fmt.Errorf("stts covers %d of %d samples", timed, count)
	}

	var payload uint64
	if st.stsz.SampleSize != 0 {
		payload = count * uint64(st.stsz.SampleSize)
	} else {
		for _, size := range st.stsz.EntrySize[:count] {
			payload += uint64(size)
		}
	}
	if payload > uint64(max(length, 0)) {
		return nil, fmt.Errorf("stsz claims %d bytes in %d samples, source holds %d", payload, count, length)
	}

	samples := make([]sample, count)
	for i := range samples {
		if st.stsz.SampleSize != 0 {
			samples[i].size = st.stsz.SampleSize
		} else {
			samples[i].size = st.stsz.EntrySize[i]
		}
		samples[i].sync = st.stss == nil
	}

	// decode times
	var (
		i   int
		dts int64
	)
	for _, e := range st.stts.Entries {
		for n := uint32(0); n < e.SampleCount && i < len(samples); n++ {
			samples[i].dts = dts
			samples[i].pts = dts
			dts += int64(e.SampleDelta)
			i++
		}
	}

	// composition offsets
	if st.ctts != nil {
		i = 0
		for _, e := range st.ctts.Entries {
			offset := int64(e.SampleOffsetV0)
			if st.ctts.GetVersion() == 1 {
				offset = int64(e.SampleOffsetV1)
			}
			for n := uint32(0); n < e.SampleCount && i < len(samples); n++ {
				samples[i].pts = samples[i].dts + offset
				i++
			}
		}
	}

	// sync samples, 1-based
	if st.stss != nil {
		for _, num := range st.stss.SampleNumber {
			if num >= 1 && int(num) <= len(samples) {
				samples[num-1].sync = true
			}
		}
	}

	// chunk layout
	entries := st.stsc.Entries
	sort.SliceStable(entries, func(a, b int) bool { return entries[a].FirstChunk < entries[b].FirstChunk })
	i = 0
	for c := range st.chunkOffsets {
		chunk := uint32(c + 1)
		var perChunk uint32
		for _, e := range entries {
			if e.FirstChunk > chunk {
				break
			}
			perChunk = e.SamplesPerChunk
		}
		offset := int64(st.chunkOffsets[c])
		for n := uint32(0); n < perChunk && i < len(samples); n++ {
			samples[i].offset = offset
			offset += int64(samples[i].size)
			i++
		}
	}
	if i < len(samples) {
		return nil, fmt.Errorf("chunks cover %d of %d samples", i, len(samples))
	}

	return samples, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Ensure Demuxer implements media.Demuxer
var _ media.Demuxer = (*Demuxer)(nil)
