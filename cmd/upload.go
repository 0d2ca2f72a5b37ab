package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	appdist "m4a-extractor/application/distribution"
	"m4a-extractor/infrastructure/filesystem"
)

var uploadAudioPath string

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload an audio file to Google Drive",
	Long: `Upload an extracted audio file to the configured Google Drive folder.

A file with the same name in the folder is replaced. With google.share
enabled the file is made accessible to anyone with the link.

Without --audio the newest audio file in paths.output_directory is used.

Example:
  m4a-extractor upload --audio "2025-12-28 10-06-16.m4a"`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadAudioPath, "audio", "", "Path to audio file (defaults to newest in output directory)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	c, err := GetConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}

	audioPath := uploadAudioPath
	if audioPath == "" {
		audioPath, err = findLatestAudio(filesystem.NewFinder(), c.Paths.OutputDirectory)
		if err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	client, err := newDriveClient(ctx, c, os.Stderr)
	if err != nil {
		return err
	}

	service := appdist.NewUploadService(client, filesystem.NewStore(), c.Google.AudioFolderID, c.Google.Share, DefaultOutput, logger.With("component", "upload"))
	return RunUploadWithDependencies(ctx, service, audioPath, DefaultOutput)
}

// findLatestAudio returns the newest .m4a, falling back to the newest .mp4 in dir
func findLatestAudio(finder *filesystem.Finder, dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("no audio file specified and paths.output_directory is not set")
	}
	for _, ext := range []string{".m4a", ".mp4"} {
		if path, err := finder.FindNewestFile(dir, ext); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no audio file specified and none found in %s", dir)
}

// RunUploadWithDependencies runs the upload command with injected dependencies (for testing)
func RunUploadWithDependencies(ctx context.Context, service *appdist.UploadService, audioPath string, out OutputWriter) error {
	fmt.Fprintf(out, "Uploading audio: %s...\n", filepath.Base(audioPath))
	result, err := service.UploadAudio(ctx, audioPath)
	if err != nil {
		return fmt.Errorf("audio upload failed: %w", err)
	}
	fmt.Fprintf(out, "Audio uploaded successfully!\n")
	fmt.Fprintf(out, "  File ID: %s\n", result.FileID)
	fmt.Fprintf(out, "  Size: %s\n", humanize.IBytes(uint64(result.Size)))
	if result.Replaced {
		fmt.Fprintf(out, "  Replaced an existing file\n")
	}
	if result.ShareableURL != "" {
		fmt.Fprintf(out, "  Shareable URL: %s\n", result.ShareableURL)
	}
	return nil
}
