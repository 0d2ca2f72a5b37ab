package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"m4a-extractor/application/remux"
	"m4a-extractor/domain/audio"
	"m4a-extractor/domain/media"
)

// Errors reported before any container is touched
var (
	ErrSourceNotFound = errors.New("source media does not exist")
	ErrOutputExists   = errors.New("output file already exists")
)

// ExtractorFactory returns an Extractor producing the given container variant
type ExtractorFactory func(format media.OutputFormat) audio.Extractor

// Result contains the result of an audio extraction operation
type Result struct {
	OutputPath string
	Format     media.OutputFormat
	Samples    int64
	Bytes      int64
}

// Input represents the input for an audio extraction operation
type Input struct {
	SourcePath string
	OutputPath string // Optional, derived from SourcePath and the output directory if empty
	Format     media.OutputFormat
	Overwrite  bool

	// ConfirmOverwrite is asked when the output exists and Overwrite is false.
	// Without it an existing output fails with ErrOutputExists.
	ConfirmOverwrite func(path string) (bool, error)
}

// Service coordinates audio extraction between files on disk
type Service struct {
	newExtractor ExtractorFactory
	openDemuxer  media.DemuxerOpener
	files        audio.FileStore
	outputDir    string
	logger       *slog.Logger
}

// NewService creates a new Service. openDemuxer is only used to list tracks.
func NewService(newExtractor ExtractorFactory, openDemuxer media.DemuxerOpener, files audio.FileStore, outputDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		newExtractor: newExtractor,
		openDemuxer:  openDemuxer,
		files:        files,
		outputDir:    outputDir,
		logger:       logger,
	}
}

// OutputPath returns the path Extract would write for input
func (s *Service) OutputPath(input Input) (string, error) {
	req, err := audio.NewExtractionRequest(input.SourcePath, input.OutputPath, input.Format, input.Overwrite)
	if err != nil {
		return "", err
	}
	return req.ResolveOutputPath(s.outputDir), nil
}

// Extract copies the first audio track of the source into a new file.
// A failed extraction leaves no output file behind.
func (s *Service) Extract(ctx context.Context, input Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.files.Exists(input.SourcePath) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, input.SourcePath)
	}

	req, err := audio.NewExtractionRequest(input.SourcePath, input.OutputPath, input.Format, input.Overwrite)
	if err != nil {
		return nil, err
	}

	outputPath := req.ResolveOutputPath(s.outputDir)
	if !req.Overwrite && s.files.Exists(outputPath) {
		if err := confirmOverwrite(input.ConfirmOverwrite, outputPath); err != nil {
			return nil, err
		}
	}

	logger := s.logger.With("source", req.SourcePath, "output", outputPath, "format", req.Format.String())

	src, err := s.files.OpenSource(req.SourcePath)
	if err != nil {
		return nil, audio.NewExtractionError(audio.ErrSourceOpen, err)
	}
	defer src.Close()

	sink, err := s.files.CreateSink(outputPath)
	if err != nil {
		return nil, audio.NewExtractionError(audio.ErrSinkOpen, err)
	}

	samples, err := s.newExtractor(req.Format).Extract(src, sink)
	closeErr := sink.Close()
	if err == nil && closeErr != nil {
		err = audio.NewExtractionError(audio.ErrIO, fmt.Errorf("failed to close output: %w", closeErr))
	}
	if err != nil {
		if rmErr := s.files.Remove(outputPath); rmErr != nil {
			logger.Warn("failed to remove incomplete output", "error", rmErr)
		}
		return nil, err
	}

	size, err := s.files.Size(outputPath)
	if err != nil {
		return nil, err
	}

	logger.Info("audio file written", "samples", samples, "bytes", size)

	return &Result{
		OutputPath: outputPath,
		Format:     req.Format,
		Samples:    samples,
		Bytes:      size,
	}, nil
}

func confirmOverwrite(confirm func(string) (bool, error), path string) error {
	if confirm == nil {
		return fmt.Errorf("%w: %s", ErrOutputExists, path)
	}
	ok, err := confirm(path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrOutputExists, path)
	}
	return nil
}

// TrackListing describes every track of a source and the one Extract would copy
type TrackListing struct {
	Tracks   []media.TrackFormat
	Selected int // -1 when the source has no audio track
}

// Tracks lists the tracks of the source at path
func (s *Service) Tracks(ctx context.Context, path string) (*TrackListing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.files.Exists(path) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}

	src, err := s.files.OpenSource(path)
	if err != nil {
		return nil, audio.NewExtractionError(audio.ErrSourceOpen, err)
	}
	defer src.Close()

	demuxer, err := s.openDemuxer(src)
	if err != nil {
		return nil, audio.NewExtractionError(audio.ErrSourceOpen, err)
	}
	defer func() {
		if err := demuxer.Release(); err != nil {
			s.logger.Debug("demuxer release failed", "error", err)
		}
	}()

	listing := &TrackListing{Selected: -1}
	for i := 0; i < demuxer.TrackCount(); i++ {
		format, err := demuxer.TrackFormat(i)
		if err != nil {
			return nil, audio.NewExtractionError(audio.ErrSourceOpen, err)
		}
		listing.Tracks = append(listing.Tracks, format)
	}

	selected, _, err := remux.FirstAudioTrack(demuxer)
	if err != nil && !errors.Is(err, audio.ErrNoAudioTrack) {
		return nil, err
	}
	if err == nil {
		listing.Selected = selected
	}

	return listing, nil
}
