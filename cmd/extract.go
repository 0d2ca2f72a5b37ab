package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	appdist "m4a-extractor/application/distribution"
	"m4a-extractor/application/process"
	"m4a-extractor/domain/audio"
	"m4a-extractor/domain/media"
	"m4a-extractor/infrastructure/config"
	"m4a-extractor/infrastructure/filesystem"
)

var (
	extractInputPath  string
	extractOutputPath string
	extractFormat     string
	extractForce      bool
	extractUpload     bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Copy the first audio track of a video into an audio-only file",
	Long: `Copy the first audio track of an MPEG-4 video into a new audio-only
container. Samples are copied as-is; nothing is re-encoded.

The source can be given with --input, or the newest .mp4 in
paths.source_directory is used. Without --output the file is written to
paths.output_directory (or next to the source) with the extension of the
chosen format.

Formats:
  m4a    progressive MPEG-4 audio (default)
  fmp4   fragmented MPEG-4

Example:
  m4a-extractor extract --input "2025-12-28 10-06-16.mp4"
  m4a-extractor extract --input service.mp4 --output service.m4a --force
  m4a-extractor extract --format fmp4 --upload`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVarP(&extractInputPath, "input", "i", "", "Path to source video (defaults to newest in source directory)")
	extractCmd.Flags().StringVarP(&extractOutputPath, "output", "o", "", "Path to output audio file (defaults to output directory)")
	extractCmd.Flags().StringVarP(&extractFormat, "format", "f", "", "Output format: m4a or fmp4 (defaults to output.format)")
	extractCmd.Flags().BoolVar(&extractForce, "force", false, "Overwrite an existing output file")
	extractCmd.Flags().BoolVar(&extractUpload, "upload", false, "Upload the audio file to Google Drive afterwards")
}

func runExtract(cmd *cobra.Command, args []string) error {
	c, err := GetConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store := filesystem.NewStore()

	var uploader process.Uploader
	if extractUpload {
		client, err := newDriveClient(ctx, c, os.Stderr)
		if err != nil {
			return err
		}
		uploader = appdist.NewUploadService(client, store, c.Google.AudioFolderID, c.Google.Share, DefaultOutput, logger.With("component", "upload"))
	}

	var prompter Prompter
	if isTerminal(os.Stdin) && isTerminal(os.Stdout) {
		prompter = DefaultPrompter
	}

	_, err = RunExtractWithDependencies(ctx, ExtractDependencies{
		Config:   c,
		Logger:   logger,
		Store:    store,
		Finder:   filesystem.NewFinder(),
		Uploader: uploader,
		Prompter: prompter,
	}, ExtractOptions{
		InputPath:  extractInputPath,
		OutputPath: extractOutputPath,
		Format:     extractFormat,
		Force:      extractForce,
		Upload:     extractUpload,
	}, DefaultOutput)
	return err
}

// ExtractDependencies holds the collaborators of the extract command
type ExtractDependencies struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    audio.FileStore
	Finder   process.FileFinder
	Uploader process.Uploader // nil unless --upload
	Prompter Prompter         // nil when not attached to a terminal
}

// ExtractOptions contains the extract command flags
type ExtractOptions struct {
	InputPath  string
	OutputPath string
	Format     string
	Force      bool
	Upload     bool
}

// RunExtractWithDependencies runs the extract command with injected dependencies (for testing)
func RunExtractWithDependencies(ctx context.Context, deps ExtractDependencies, opts ExtractOptions, out OutputWriter) (*process.Result, error) {
	c := deps.Config
	if c == nil {
		c = config.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	format := c.OutputFormat()
	if opts.Format != "" {
		f, err := media.ParseOutputFormat(opts.Format)
		if err != nil {
			return nil, err
		}
		format = f
	}

	extractor := newExtractService(c, deps.Store, logger, newStatusPrinter(out))
	service := process.NewService(extractor, deps.Uploader, deps.Finder, c.Paths.SourceDirectory, out)

	input := process.Input{
		InputPath:  opts.InputPath,
		OutputPath: opts.OutputPath,
		Format:     format,
		Overwrite:  opts.Force || c.Output.Overwrite,
		Upload:     opts.Upload,
	}
	if deps.Prompter != nil {
		input.ConfirmOverwrite = func(path string) (bool, error) {
			ok, err := deps.Prompter.Confirm(fmt.Sprintf("%s already exists. Overwrite?", path), false)
			if err != nil {
				return false, fmt.Errorf("prompt cancelled")
			}
			return ok, nil
		}
	}

	return service.Process(ctx, input)
}
