package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"m4a-extractor/application/extract"
	"m4a-extractor/application/remux"
	"m4a-extractor/domain/audio"
	"m4a-extractor/domain/distribution"
	"m4a-extractor/domain/media"
	"m4a-extractor/infrastructure/config"
	"m4a-extractor/infrastructure/drive"
	"m4a-extractor/infrastructure/filesystem"
	"m4a-extractor/infrastructure/mp4"
)

// newRemuxerFactory returns a factory building one Remuxer per output format
func newRemuxerFactory(c *config.Config, logger *slog.Logger, observer media.Observer) extract.ExtractorFactory {
	remuxLogger := logger.With("component", "remux")
	return func(format media.OutputFormat) audio.Extractor {
		return remux.New(mp4.OpenDemuxer, mp4.OpenMuxer,
			remux.WithOutputFormat(format),
			remux.WithObserver(observer),
			remux.WithLogger(remuxLogger),
			remux.WithMinBufferSize(c.Transfer.MinBufferSize),
			remux.WithProgressInterval(c.Transfer.ProgressInterval),
		)
	}
}

// newExtractService wires the production extraction service
func newExtractService(c *config.Config, store audio.FileStore, logger *slog.Logger, observer media.Observer) *extract.Service {
	return extract.NewService(
		newRemuxerFactory(c, logger, observer),
		mp4.OpenDemuxer,
		store,
		c.Paths.OutputDirectory,
		logger.With("component", "extract"),
	)
}

// newDriveClient creates the Google Drive client from the configured credentials
func newDriveClient(ctx context.Context, c *config.Config, prompt io.Writer) (distribution.DriveClient, error) {
	if c.Google.AudioFolderID == "" {
		return nil, fmt.Errorf("google.audio_folder_id is not set. Run 'm4a-extractor setup' or %s", config.SuggestSetCommand("google.audio_folder_id"))
	}
	client, err := drive.NewClientFromCredentials(ctx, c.Google.CredentialsFile, c.Google.TokenFile, drive.WithPromptOutput(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Drive client: %w", err)
	}
	return client, nil
}

var (
	_ audio.FileStore          = (*filesystem.Store)(nil)
	_ distribution.DriveClient = (*drive.Client)(nil)
)
