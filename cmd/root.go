package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"m4a-extractor/infrastructure/config"
	"m4a-extractor/infrastructure/logging"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
	cfgErr   error
)

var rootCmd = &cobra.Command{
	Use:   "m4a-extractor",
	Short: "Copy the audio track of a video into an audio-only MPEG-4 file",
	Long: `m4a-extractor copies the first audio track of an MPEG-4 video into a new
audio-only container without re-encoding:

  - Extract audio as .m4a (or fragmented MPEG-4)
  - List the tracks of a recording
  - Upload the audio to Google Drive with sharing

Example:
  m4a-extractor extract --input "2025-12-28 10-06-16.mp4"`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = config.DefaultPath
	}

	cfg, cfgErr = config.Load(cfgFile)
	if cfgErr != nil && errors.Is(cfgErr, fs.ErrNotExist) {
		// The file is optional; defaults cover every command but upload
		cfg, cfgErr = config.Default(), nil
	}
}

// GetConfig returns the loaded configuration, or the error that prevented loading it
func GetConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	if cfg == nil {
		return config.Default(), nil
	}
	return cfg, nil
}

// newLogger builds the command logger from the config and --log-level
func newLogger(c *config.Config) (*slog.Logger, error) {
	return logging.NewFromConfig(c, logLevel, os.Stderr)
}
