package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"m4a-extractor/application/extract"
	"m4a-extractor/domain/audio"
	"m4a-extractor/domain/media"
	"m4a-extractor/infrastructure/config"
	"m4a-extractor/infrastructure/filesystem"
)

var tracksInputPath string

var tracksCmd = &cobra.Command{
	Use:   "tracks",
	Short: "List the tracks of a recording",
	Long: `List every track of an MPEG-4 file and mark the audio track that
extract would copy.

Example:
  m4a-extractor tracks --input "2025-12-28 10-06-16.mp4"`,
	RunE: runTracks,
}

func init() {
	rootCmd.AddCommand(tracksCmd)
	tracksCmd.Flags().StringVarP(&tracksInputPath, "input", "i", "", "Path to source video (required)")
	tracksCmd.MarkFlagRequired("input")
}

func runTracks(cmd *cobra.Command, args []string) error {
	c, err := GetConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	return RunTracksWithDependencies(cmd.Context(), c, filesystem.NewStore(), logger, tracksInputPath, DefaultOutput)
}

// RunTracksWithDependencies runs the tracks command with injected dependencies (for testing)
func RunTracksWithDependencies(ctx context.Context, c *config.Config, store audio.FileStore, logger *slog.Logger, path string, out OutputWriter) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	service := newExtractService(c, store, logger, nil)

	listing, err := service.Tracks(ctx, path)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, renderTracks(listing))
	if listing.Selected < 0 {
		fmt.Fprintln(out, "No audio track: extract would fail.")
		return nil
	}
	fmt.Fprintf(out, "extract copies track %d (%s)\n", listing.Selected, listing.Tracks[listing.Selected].MIME)
	return nil
}

func renderTracks(listing *extract.TrackListing) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Type", "MIME", "Details", "Duration", "Max sample", "Extract"})

	for i, f := range listing.Tracks {
		marker := ""
		if i == listing.Selected {
			marker = "yes"
		}
		tw.AppendRow(table.Row{
			strconv.Itoa(i),
			trackKind(f),
			f.MIME,
			trackDetails(f),
			formatTrackDuration(f.DurationUs),
			humanize.IBytes(uint64(max(f.MaxInputSize, 0))),
			marker,
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func trackKind(f media.TrackFormat) string {
	switch {
	case f.IsAudio():
		return "audio"
	case f.IsVideo():
		return "video"
	default:
		return "other"
	}
}

func trackDetails(f media.TrackFormat) string {
	switch {
	case f.IsAudio():
		details := fmt.Sprintf("%d Hz, %d ch", f.SampleRate, f.ChannelCount)
		if f.Language != "" && f.Language != "und" {
			details += ", " + f.Language
		}
		return details
	case f.IsVideo():
		return fmt.Sprintf("%dx%d", f.Width, f.Height)
	default:
		return f.Codec
	}
}

func formatTrackDuration(us int64) string {
	if us <= 0 {
		return "-"
	}
	return (time.Duration(us) * time.Microsecond).Round(time.Millisecond).String()
}
