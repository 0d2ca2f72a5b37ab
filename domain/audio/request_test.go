package audio

import (
	"path/filepath"
	"strings"
	"testing"

	"m4a-extractor/domain/media"
)

func TestNewExtractionRequest(t *testing.T) {
	tests := []struct {
		name        string
		sourcePath  string
		outputPath  string
		format      media.OutputFormat
		wantErr     bool
		errContains string
	}{
		{
			name:       "valid request with derived output",
			sourcePath: "/path/to/2025-12-28.mp4",
			format:     media.OutputMPEG4,
		},
		{
			name:       "valid request with explicit output",
			sourcePath: "/path/to/2025-12-28.mp4",
			outputPath: "/out/service.m4a",
			format:     media.OutputMPEG4,
		},
		{
			name:       "valid fragmented request",
			sourcePath: "/path/to/2025-12-28.mov",
			format:     media.OutputFragmentedMPEG4,
		},
		{
			name:        "empty source path",
			sourcePath:  "",
			format:      media.OutputMPEG4,
			wantErr:     true,
			errContains: "source media path is required",
		},
		{
			name:        "blank source path",
			sourcePath:  "   ",
			format:      media.OutputMPEG4,
			wantErr:     true,
			errContains: "source media path is required",
		},
		{
			name:        "unknown format",
			sourcePath:  "/path/to/in.mp4",
			format:      media.OutputFormat(9),
			wantErr:     true,
			errContains: "unsupported output format",
		},
		{
			name:        "output equals source",
			sourcePath:  "/path/to/in.mp4",
			outputPath:  "/path/to/./in.mp4",
			format:      media.OutputMPEG4,
			wantErr:     true,
			errContains: "must differ from source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewExtractionRequest(tt.sourcePath, tt.outputPath, tt.format, false)

			if tt.wantErr {
				if err == nil {
					t.Errorf("NewExtractionRequest() expected error, got nil")
					return
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("NewExtractionRequest() error = %v, want error containing %q", err, tt.errContains)
				}
				return
			}

			if err != nil {
				t.Errorf("NewExtractionRequest() unexpected error: %v", err)
				return
			}

			if got.SourcePath != tt.sourcePath {
				t.Errorf("NewExtractionRequest() SourcePath = %q, want %q", got.SourcePath, tt.sourcePath)
			}
			if got.Format != tt.format {
				t.Errorf("NewExtractionRequest() Format = %v, want %v", got.Format, tt.format)
			}
		})
	}
}

func TestExtractionRequest_OutputFilename(t *testing.T) {
	tests := []struct {
		name       string
		sourcePath string
		format     media.OutputFormat
		want       string
	}{
		{
			name:       "mp4 source to m4a",
			sourcePath: "/videos/2025-12-28.mp4",
			format:     media.OutputMPEG4,
			want:       "2025-12-28.m4a",
		},
		{
			name:       "mov source to m4a",
			sourcePath: "clip.MOV",
			format:     media.OutputMPEG4,
			want:       "clip.m4a",
		},
		{
			name:       "mp4 source to fmp4 gets suffix",
			sourcePath: "/videos/2025-12-28.mp4",
			format:     media.OutputFragmentedMPEG4,
			want:       "2025-12-28-audio.mp4",
		},
		{
			name:       "source without extension",
			sourcePath: "/videos/recording",
			format:     media.OutputMPEG4,
			want:       "recording.m4a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &ExtractionRequest{SourcePath: tt.sourcePath, Format: tt.format}
			if got := req.OutputFilename(); got != tt.want {
				t.Errorf("OutputFilename() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractionRequest_ResolveOutputPath(t *testing.T) {
	tests := []struct {
		name      string
		req       ExtractionRequest
		outputDir string
		want      string
	}{
		{
			name:      "explicit output wins",
			req:       ExtractionRequest{SourcePath: "/in/a.mp4", OutputPath: "/x/y.m4a"},
			outputDir: "/audio",
			want:      "/x/y.m4a",
		},
		{
			name:      "derived inside output directory",
			req:       ExtractionRequest{SourcePath: "/in/a.mp4"},
			outputDir: "/audio",
			want:      filepath.Join("/audio", "a.m4a"),
		},
		{
			name: "derived next to source",
			req:  ExtractionRequest{SourcePath: "/in/a.mp4"},
			want: filepath.Join("/in", "a.m4a"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.ResolveOutputPath(tt.outputDir); got != tt.want {
				t.Errorf("ResolveOutputPath() = %q, want %q", got, tt.want)
			}
		})
	}
}
