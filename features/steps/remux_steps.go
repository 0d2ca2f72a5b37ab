//go:build integration

package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/cucumber/godog"

	"m4a-extractor/application/remux"
	"m4a-extractor/domain/audio"
	"m4a-extractor/domain/media"
	"m4a-extractor/infrastructure/mp4"
	"m4a-extractor/infrastructure/mp4/mp4test"
)

var errDiskFull = errors.New("no space left on device")

// faultyMuxer fails the write of one sample and delegates everything else
type faultyMuxer struct {
	media.Muxer
	failAt int
	writes int
}

func (m *faultyMuxer) WriteSampleData(track int, data []byte, info media.SampleInfo) error {
	if m.writes == m.failAt {
		return errDiskFull
	}
	m.writes++
	return m.Muxer.WriteSampleData(track, data, info)
}

// remuxContext holds test state for remux scenarios
type remuxContext struct {
	source     []byte
	sink       *seekablebuffer.Buffer
	failAt     int
	interval   int
	bufferSize int
	statuses   []string
	samples    int64
	err        error
}

// SharedRemuxContext is reset before each scenario via Before hook
var SharedRemuxContext *remuxContext

func getRemuxContext() *remuxContext {
	return SharedRemuxContext
}

func InitializeRemuxScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		SharedRemuxContext = &remuxContext{
			sink:   &seekablebuffer.Buffer{},
			failAt: -1,
		}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		SharedRemuxContext = nil
		return c, nil
	})

	ctx.Step(`^a source with an audio track of (\d+) samples and a video track$`, aSourceWithAudioAndVideo)
	ctx.Step(`^an output that fails on sample (\d+)$`, anOutputThatFailsOnSample)
	ctx.Step(`^the progress interval is (\d+) samples$`, theProgressIntervalIs)
	ctx.Step(`^the transfer buffer holds only (\d+) bytes$`, theTransferBufferHoldsOnly)
	ctx.Step(`^the remuxer runs$`, theRemuxerRuns)
	ctx.Step(`^the remux should succeed$`, theRemuxShouldSucceed)
	ctx.Step(`^the remux should fail with kind "([^"]*)"$`, theRemuxShouldFailWithKind)
	ctx.Step(`^the failure should be reported at sample (\d+)$`, theFailureShouldBeReportedAtSample)
	ctx.Step(`^the remuxer should report (\d+) samples$`, theRemuxerShouldReportSamples)
	ctx.Step(`^the output should be a finalized container with (\d+) samples$`, theOutputShouldBeAFinalizedContainerWith)
	ctx.Step(`^the status lines should be:$`, theStatusLinesShouldBe)
}

func aSourceWithAudioAndVideo(samples int) error {
	r := getRemuxContext()
	movie, err := mp4test.Movie(mp4test.AAC(samples, 1000), mp4test.AVC(samples/2+1, 33333))
	if err != nil {
		return err
	}
	r.source = movie
	return nil
}

func anOutputThatFailsOnSample(n int) error {
	getRemuxContext().failAt = n
	return nil
}

func theProgressIntervalIs(n int) error {
	getRemuxContext().interval = n
	return nil
}

func theTransferBufferHoldsOnly(n int) error {
	getRemuxContext().bufferSize = n
	return nil
}

func theRemuxerRuns() error {
	r := getRemuxContext()

	openMuxer := func(dst io.WriteSeeker, format media.OutputFormat) (media.Muxer, error) {
		m, err := mp4.OpenMuxer(dst, format)
		if err != nil || r.failAt < 0 {
			return m, err
		}
		return &faultyMuxer{Muxer: m, failAt: r.failAt}, nil
	}

	opts := []remux.Option{
		remux.WithObserver(media.ObserverFunc(func(msg string) {
			r.statuses = append(r.statuses, msg)
		})),
		remux.WithProgressInterval(r.interval),
	}
	if r.bufferSize > 0 {
		size := r.bufferSize
		opts = append(opts, remux.WithBufferAllocator(func(int) []byte { return make([]byte, size) }))
	}

	r.samples, r.err = remux.New(mp4.OpenDemuxer, openMuxer, opts...).Extract(bytes.NewReader(r.source), r.sink)
	return nil
}

func theRemuxShouldSucceed() error {
	if err := getRemuxContext().err; err != nil {
		return fmt.Errorf("expected success, got: %v", err)
	}
	return nil
}

func theRemuxShouldFailWithKind(name string) error {
	return matchKind(getRemuxContext().err, name)
}

func theFailureShouldBeReportedAtSample(n int) error {
	var extractionErr *audio.ExtractionError
	if !errors.As(getRemuxContext().err, &extractionErr) {
		return fmt.Errorf("expected an extraction error, got: %v", getRemuxContext().err)
	}
	if extractionErr.Sample != int64(n) {
		return fmt.Errorf("expected failure at sample %d, got %d", n, extractionErr.Sample)
	}
	return nil
}

func theRemuxerShouldReportSamples(n int) error {
	if got := getRemuxContext().samples; got != int64(n) {
		return fmt.Errorf("expected %d samples, got %d", n, got)
	}
	return nil
}

func theOutputShouldBeAFinalizedContainerWith(n int) error {
	d, err := mp4.Open(bytes.NewReader(getRemuxContext().sink.Bytes()))
	if err != nil {
		return fmt.Errorf("output is not a readable container: %w", err)
	}
	defer d.Release()

	count, err := d.SampleCount(0)
	if err != nil {
		return err
	}
	if count != n {
		return fmt.Errorf("expected %d samples, got %d", n, count)
	}
	return nil
}

func theStatusLinesShouldBe(table *godog.Table) error {
	r := getRemuxContext()
	var want []string
	for _, row := range table.Rows {
		want = append(want, row.Cells[0].Value)
	}
	if len(want) != len(r.statuses) {
		return fmt.Errorf("expected status lines %q, got %q", want, r.statuses)
	}
	for i := range want {
		if want[i] != r.statuses[i] {
			return fmt.Errorf("status line %d: expected %q, got %q", i, want[i], r.statuses[i])
		}
	}
	return nil
}
