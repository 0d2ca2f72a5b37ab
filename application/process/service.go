package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"m4a-extractor/application/extract"
	"m4a-extractor/domain/audio"
	"m4a-extractor/domain/distribution"
	"m4a-extractor/domain/media"
)

// FileFinder abstracts file system operations for finding source recordings
type FileFinder interface {
	FindNewestFile(dir, ext string) (string, error)
}

// Extractor runs one file-level extraction
type Extractor interface {
	Extract(ctx context.Context, input extract.Input) (*extract.Result, error)
}

// Uploader uploads a finished audio file
type Uploader interface {
	UploadAudio(ctx context.Context, audioPath string) (*distribution.UploadResult, error)
}

// Service orchestrates extraction followed by an optional upload
type Service struct {
	extractor Extractor
	uploader  Uploader
	finder    FileFinder
	sourceDir string
	output    io.Writer
	now       func() time.Time
}

// NewService creates a new process service. uploader may be nil when
// uploads are not requested.
func NewService(extractor Extractor, uploader Uploader, finder FileFinder, sourceDir string, output io.Writer) *Service {
	if output == nil {
		output = io.Discard
	}
	return &Service{
		extractor: extractor,
		uploader:  uploader,
		finder:    finder,
		sourceDir: sourceDir,
		output:    output,
		now:       time.Now,
	}
}

// Input contains all input parameters for one run
type Input struct {
	InputPath  string // Source media path (optional if a source directory is configured)
	OutputPath string // Output path (optional)
	Format     media.OutputFormat
	Overwrite  bool
	Upload     bool

	ConfirmOverwrite func(path string) (bool, error) // Optional, see extract.Input
}

// Result contains the results of a successful run
type Result struct {
	SourcePath string
	AudioPath  string
	Samples    int64
	Bytes      int64
	AudioURL   string
	FileID     string
}

// ValidationError contains details about a validation failure with suggestions
type ValidationError struct {
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s\n\nTo fix this, run:\n  %s", e.Message, e.Suggestion)
	}
	return e.Message
}

// Process runs extraction and, when requested, the upload
func (s *Service) Process(ctx context.Context, input Input) (*Result, error) {
	start := s.now()

	sourcePath, err := s.resolveSource(input.InputPath)
	if err != nil {
		return nil, err
	}
	if input.Upload && s.uploader == nil {
		return nil, &ValidationError{
			Message:    "upload requested but Google Drive is not configured",
			Suggestion: "m4a-extractor setup",
		}
	}

	steps := 1
	if input.Upload {
		steps = 2
	}

	fmt.Fprintf(s.output, "Using source: %s\n", filepath.Base(sourcePath))
	fmt.Fprintf(s.output, "Output format: %s\n\n", input.Format)

	// Step 1: Extract audio
	fmt.Fprintf(s.output, "[1/%d] Extracting audio...\n", steps)
	extracted, err := s.extractor.Extract(ctx, extract.Input{
		SourcePath: sourcePath,
		OutputPath: input.OutputPath,
		Format:     input.Format,
		Overwrite:  input.Overwrite,

		ConfirmOverwrite: input.ConfirmOverwrite,
	})
	if err != nil {
		s.showRecoveryCommands(1, input, sourcePath, "", err)
		return nil, fmt.Errorf("audio extraction failed: %w", err)
	}
	fmt.Fprintf(s.output, "      Created: %s (%d samples, %s)\n\n", extracted.OutputPath, extracted.Samples, humanize.IBytes(uint64(extracted.Bytes)))

	result := &Result{
		SourcePath: sourcePath,
		AudioPath:  extracted.OutputPath,
		Samples:    extracted.Samples,
		Bytes:      extracted.Bytes,
	}

	// Step 2: Upload audio
	if input.Upload {
		fmt.Fprintf(s.output, "[2/%d] Uploading audio...\n", steps)
		uploaded, err := s.uploader.UploadAudio(ctx, extracted.OutputPath)
		if err != nil {
			s.showRecoveryCommands(2, input, sourcePath, extracted.OutputPath, err)
			return nil, fmt.Errorf("audio upload failed: %w", err)
		}
		fmt.Fprintf(s.output, "      Uploaded: %s\n", uploaded.FileName)
		if uploaded.ShareableURL != "" {
			fmt.Fprintf(s.output, "      Audio link: %s\n", uploaded.ShareableURL)
		}
		fmt.Fprintln(s.output)
		result.AudioURL = uploaded.ShareableURL
		result.FileID = uploaded.FileID
	}

	fmt.Fprintf(s.output, "Done! Completed in %s\n", formatDuration(s.now().Sub(start)))
	return result, nil
}

// resolveSource returns the explicit input or the newest recording in the source directory
func (s *Service) resolveSource(inputPath string) (string, error) {
	if inputPath != "" {
		return inputPath, nil
	}
	if s.sourceDir == "" || s.finder == nil {
		return "", &ValidationError{
			Message:    "no input file given and no source directory configured",
			Suggestion: `m4a-extractor config set paths.source_directory "<dir>"`,
		}
	}
	newest, err := s.finder.FindNewestFile(s.sourceDir, ".mp4")
	if err != nil {
		return "", &ValidationError{
			Message:    fmt.Sprintf("could not find a recording in %s: %v", s.sourceDir, err),
			Suggestion: `m4a-extractor extract --input "<file>"`,
		}
	}
	return newest, nil
}

// showRecoveryCommands prints the commands that finish the run by hand
func (s *Service) showRecoveryCommands(failedStep int, input Input, sourcePath, audioPath string, cause error) {
	fmt.Fprintf(s.output, "\nStep %d failed. To continue manually:\n", failedStep)
	step := 1
	if failedStep <= 1 {
		if errors.Is(cause, audio.ErrNoAudioTrack) || errors.Is(cause, audio.ErrSourceOpen) {
			fmt.Fprintf(s.output, "  %d. Inspect:    m4a-extractor tracks --input %q\n", step, sourcePath)
			step++
		}
		fmt.Fprintf(s.output, "  %d. Extract:    m4a-extractor extract --input %q --format %s --force\n", step, sourcePath, input.Format)
		step++
		audioPath = "<audio file>"
	}
	if input.Upload {
		fmt.Fprintf(s.output, "  %d. Upload:     m4a-extractor upload --audio %q\n", step, audioPath)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	sec := (d % time.Minute) / time.Second
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
