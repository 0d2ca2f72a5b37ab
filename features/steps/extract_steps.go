//go:build integration

package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"m4a-extractor/application/extract"
	"m4a-extractor/application/process"
	"m4a-extractor/cmd"
	"m4a-extractor/domain/audio"
	"m4a-extractor/infrastructure/config"
	"m4a-extractor/infrastructure/filesystem"
	"m4a-extractor/infrastructure/mp4"
	"m4a-extractor/infrastructure/mp4/mp4test"
)

// overwritePrompter answers the overwrite confirmation and records what was asked
type overwritePrompter struct {
	answer bool
	asked  []string
}

func (p *overwritePrompter) Input(message string, defaultValue string) (string, error) {
	return defaultValue, nil
}

func (p *overwritePrompter) Confirm(message string, defaultValue bool) (bool, error) {
	p.asked = append(p.asked, message)
	return p.answer, nil
}

func (p *overwritePrompter) Select(message string, options []string, defaultValue string) (string, error) {
	return defaultValue, nil
}

// extractContext holds test state for extract scenarios
type extractContext struct {
	dir       string
	sourceDir string
	prompter  *overwritePrompter
	output    *bytes.Buffer
	result    *process.Result
	listing   *extract.TrackListing
	err       error
}

// SharedExtractContext is reset before each scenario via Before hook
var SharedExtractContext *extractContext

func getExtractContext() *extractContext {
	return SharedExtractContext
}

func InitializeExtractScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		SharedExtractContext = &extractContext{output: &bytes.Buffer{}}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if e := getExtractContext(); e != nil && e.dir != "" {
			os.RemoveAll(e.dir)
		}
		SharedExtractContext = nil
		return c, nil
	})

	ctx.Step(`^an empty media directory$`, anEmptyMediaDirectory)
	ctx.Step(`^a recording "([^"]*)" with an audio track of (\d+) samples and a video track$`, aRecordingWithAudioAndVideo)
	ctx.Step(`^a recording "([^"]*)" with only a video track$`, aRecordingWithOnlyVideo)
	ctx.Step(`^a recording "([^"]*)" with audio tracks of (\d+) and (\d+) samples$`, aRecordingWithTwoAudioTracks)
	ctx.Step(`^a file "([^"]*)" containing "([^"]*)"$`, aFileContaining)
	ctx.Step(`^the source directory is the media directory$`, theSourceDirectoryIsTheMediaDirectory)
	ctx.Step(`^I will answer "(yes|no)" when asked to overwrite$`, iWillAnswerWhenAskedToOverwrite)
	ctx.Step(`^I extract audio from "([^"]*)"$`, iExtractAudioFrom)
	ctx.Step(`^I extract audio from "([^"]*)" as "([^"]*)"$`, iExtractAudioFromAs)
	ctx.Step(`^I extract audio from "([^"]*)" to "([^"]*)"$`, iExtractAudioFromTo)
	ctx.Step(`^I force extract audio from "([^"]*)"$`, iForceExtractAudioFrom)
	ctx.Step(`^I extract audio without naming a recording$`, iExtractAudioWithoutNamingARecording)
	ctx.Step(`^I list the tracks of "([^"]*)"$`, iListTheTracksOf)
	ctx.Step(`^the extraction should succeed$`, theExtractionShouldSucceed)
	ctx.Step(`^the extraction should fail with "([^"]*)"$`, theExtractionShouldFailWith)
	ctx.Step(`^the extraction should fail with kind "([^"]*)"$`, theExtractionShouldFailWithKind)
	ctx.Step(`^(\d+) samples should have been copied$`, samplesShouldHaveBeenCopied)
	ctx.Step(`^"([^"]*)" should contain (\d+) audio samples from source track (\d+)$`, shouldContainAudioSamplesFromSourceTrack)
	ctx.Step(`^the samples of "([^"]*)" should be (\d+) microseconds apart$`, theSamplesShouldBeMicrosecondsApart)
	ctx.Step(`^"([^"]*)" should be a fragmented file$`, shouldBeAFragmentedFile)
	ctx.Step(`^"([^"]*)" should not exist$`, shouldNotExist)
	ctx.Step(`^"([^"]*)" should still contain "([^"]*)"$`, shouldStillContain)
	ctx.Step(`^I should have been asked to overwrite "([^"]*)"$`, iShouldHaveBeenAskedToOverwrite)
	ctx.Step(`^the output should mention "([^"]*)"$`, theOutputShouldMention)
	ctx.Step(`^the listing should show (\d+) tracks$`, theListingShouldShowTracks)
	ctx.Step(`^the listing should mark track (\d+) as extracted$`, theListingShouldMarkTrackAsExtracted)
}

func (e *extractContext) path(name string) string {
	return filepath.Join(e.dir, filepath.FromSlash(name))
}

func anEmptyMediaDirectory() error {
	e := getExtractContext()
	dir, err := os.MkdirTemp("", "extract-test-*")
	if err != nil {
		return err
	}
	e.dir = dir
	return nil
}

func aRecordingWithAudioAndVideo(name string, samples int) error {
	e := getExtractContext()
	return mp4test.WriteMovie(e.path(name), mp4test.AVC(samples/2+1, 33333), mp4test.AAC(samples, 1000))
}

func aRecordingWithOnlyVideo(name string) error {
	e := getExtractContext()
	return mp4test.WriteMovie(e.path(name), mp4test.AVC(30, 33333))
}

func aRecordingWithTwoAudioTracks(name string, first, second int) error {
	e := getExtractContext()
	return mp4test.WriteMovie(e.path(name), mp4test.AAC(first, 1000), mp4test.AAC(second, 1000))
}

func aFileContaining(name, content string) error {
	e := getExtractContext()
	return os.WriteFile(e.path(name), []byte(content), 0644)
}

func theSourceDirectoryIsTheMediaDirectory() error {
	e := getExtractContext()
	e.sourceDir = e.dir
	return nil
}

func iWillAnswerWhenAskedToOverwrite(answer string) error {
	e := getExtractContext()
	e.prompter = &overwritePrompter{answer: answer == "yes"}
	return nil
}

func runExtract(opts cmd.ExtractOptions) error {
	e := getExtractContext()

	cfg := config.Default()
	cfg.Paths.SourceDirectory = e.sourceDir

	deps := cmd.ExtractDependencies{
		Config: cfg,
		Store:  filesystem.NewStore(),
		Finder: filesystem.NewFinder(),
	}
	if e.prompter != nil {
		deps.Prompter = e.prompter
	}

	e.result, e.err = cmd.RunExtractWithDependencies(context.Background(), deps, opts, e.output)
	return nil
}

func iExtractAudioFrom(name string) error {
	return runExtract(cmd.ExtractOptions{InputPath: getExtractContext().path(name)})
}

func iExtractAudioFromAs(name, format string) error {
	return runExtract(cmd.ExtractOptions{InputPath: getExtractContext().path(name), Format: format})
}

func iExtractAudioFromTo(name, output string) error {
	e := getExtractContext()
	return runExtract(cmd.ExtractOptions{InputPath: e.path(name), OutputPath: e.path(output)})
}

func iForceExtractAudioFrom(name string) error {
	return runExtract(cmd.ExtractOptions{InputPath: getExtractContext().path(name), Force: true})
}

func iExtractAudioWithoutNamingARecording() error {
	return runExtract(cmd.ExtractOptions{})
}

func iListTheTracksOf(name string) error {
	e := getExtractContext()
	service := extract.NewService(nil, mp4.OpenDemuxer, filesystem.NewStore(), "", nil)
	e.listing, e.err = service.Tracks(context.Background(), e.path(name))
	if e.err != nil {
		return e.err
	}
	e.err = cmd.RunTracksWithDependencies(context.Background(), config.Default(), filesystem.NewStore(), nil, e.path(name), e.output)
	return e.err
}

func theExtractionShouldSucceed() error {
	e := getExtractContext()
	if e.err != nil {
		return fmt.Errorf("expected success, got: %v\noutput:\n%s", e.err, e.output.String())
	}
	return nil
}

func theExtractionShouldFailWith(text string) error {
	e := getExtractContext()
	if e.err == nil {
		return fmt.Errorf("expected an error containing %q but got none", text)
	}
	if !strings.Contains(e.err.Error(), text) {
		return fmt.Errorf("expected error containing %q, got: %v", text, e.err)
	}
	return nil
}

// kindByName maps the names used in feature files to error kinds
var kindByName = map[string]error{
	"source open":      audio.ErrSourceOpen,
	"no audio track":   audio.ErrNoAudioTrack,
	"sink open":        audio.ErrSinkOpen,
	"sample too large": audio.ErrSampleTooLarge,
	"io":               audio.ErrIO,
}

func matchKind(err error, name string) error {
	kind, ok := kindByName[name]
	if !ok {
		return fmt.Errorf("unknown error kind %q", name)
	}
	if err == nil {
		return fmt.Errorf("expected a %s error but got none", name)
	}
	if !errors.Is(err, kind) {
		return fmt.Errorf("expected a %s error, got: %v", name, err)
	}
	return nil
}

func theExtractionShouldFailWithKind(name string) error {
	return matchKind(getExtractContext().err, name)
}

func samplesShouldHaveBeenCopied(n int) error {
	e := getExtractContext()
	if e.result == nil {
		return fmt.Errorf("no result recorded")
	}
	if e.result.Samples != int64(n) {
		return fmt.Errorf("expected %d samples, got %d", n, e.result.Samples)
	}
	return nil
}

func openOutput(name string) (*mp4.Demuxer, error) {
	data, err := os.ReadFile(getExtractContext().path(name))
	if err != nil {
		return nil, err
	}
	return mp4.Open(bytes.NewReader(data))
}

func shouldContainAudioSamplesFromSourceTrack(name string, n, sourceTrack int) error {
	d, err := openOutput(name)
	if err != nil {
		return err
	}
	defer d.Release()

	if d.TrackCount() != 1 {
		return fmt.Errorf("expected 1 track, got %d", d.TrackCount())
	}
	format, err := d.TrackFormat(0)
	if err != nil {
		return err
	}
	if !format.IsAudio() {
		return fmt.Errorf("expected an audio track, got %s", format.MIME)
	}
	count, err := d.SampleCount(0)
	if err != nil {
		return err
	}
	if count != n {
		return fmt.Errorf("expected %d samples, got %d", n, count)
	}

	if err := d.SelectTrack(0); err != nil {
		return err
	}
	buf := make([]byte, max(format.MaxInputSize, 1))
	for i := 0; i < n; i++ {
		size, err := d.ReadSampleData(buf)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if !bytes.Equal(buf[:size], mp4test.Payload(sourceTrack, i)) {
			return fmt.Errorf("sample %d does not match source track %d", i, sourceTrack)
		}
		d.Advance()
	}
	return nil
}

func theSamplesShouldBeMicrosecondsApart(name string, step int) error {
	d, err := openOutput(name)
	if err != nil {
		return err
	}
	defer d.Release()

	if err := d.SelectTrack(0); err != nil {
		return err
	}
	for i := int64(0); d.SampleTrackIndex() >= 0; i++ {
		if got, want := d.SampleTime(), i*int64(step); got != want {
			return fmt.Errorf("sample %d at %d us, want %d us", i, got, want)
		}
		d.Advance()
	}
	return nil
}

func shouldBeAFragmentedFile(name string) error {
	_, err := openOutput(name)
	if !errors.Is(err, mp4.ErrFragmented) {
		return fmt.Errorf("expected a fragmented file, got: %v", err)
	}
	return nil
}

func shouldNotExist(name string) error {
	if _, err := os.Stat(getExtractContext().path(name)); !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("expected %s not to exist (stat error: %v)", name, err)
	}
	return nil
}

func shouldStillContain(name, content string) error {
	data, err := os.ReadFile(getExtractContext().path(name))
	if err != nil {
		return err
	}
	if string(data) != content {
		return fmt.Errorf("expected %s to contain %q, got %q", name, content, data)
	}
	return nil
}

func iShouldHaveBeenAskedToOverwrite(name string) error {
	e := getExtractContext()
	if e.prompter == nil || len(e.prompter.asked) == 0 {
		return fmt.Errorf("no overwrite confirmation was asked")
	}
	if !strings.Contains(e.prompter.asked[0], e.path(name)) {
		return fmt.Errorf("expected confirmation for %s, got %q", name, e.prompter.asked[0])
	}
	return nil
}

func theOutputShouldMention(text string) error {
	e := getExtractContext()
	if !strings.Contains(e.output.String(), text) {
		return fmt.Errorf("expected output to contain %q, got:\n%s", text, e.output.String())
	}
	return nil
}

func theListingShouldShowTracks(n int) error {
	e := getExtractContext()
	if len(e.listing.Tracks) != n {
		return fmt.Errorf("expected %d tracks, got %d", n, len(e.listing.Tracks))
	}
	return nil
}

func theListingShouldMarkTrackAsExtracted(i int) error {
	e := getExtractContext()
	if e.listing.Selected != i {
		return fmt.Errorf("expected track %d to be selected, got %d", i, e.listing.Selected)
	}
	want := fmt.Sprintf("extract copies track %d", i)
	if !strings.Contains(e.output.String(), want) {
		return fmt.Errorf("expected output to contain %q, got:\n%s", want, e.output.String())
	}
	return nil
}
