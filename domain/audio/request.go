package audio

import (
	"fmt"
	"path/filepath"
	"strings"

	"m4a-extractor/domain/media"
)

// Output file extensions per container variant
const (
	ExtensionM4A  = ".m4a"
	ExtensionFMP4 = ".mp4"
)

// ExtractionRequest represents a request to extract the audio track of a media file
type ExtractionRequest struct {
	SourcePath string
	OutputPath string // Optional: derived from SourcePath when empty
	Format     media.OutputFormat
	Overwrite  bool
}

// NewExtractionRequest creates a new ExtractionRequest with validation
func NewExtractionRequest(sourcePath, outputPath string, format media.OutputFormat, overwrite bool) (*ExtractionRequest, error) {
	if strings.TrimSpace(sourcePath) == "" {
		return nil, fmt.Errorf("source media path is required")
	}

	if format != media.OutputMPEG4 && format != media.OutputFragmentedMPEG4 {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	if outputPath != "" && filepath.Clean(outputPath) == filepath.Clean(sourcePath) {
		return nil, fmt.Errorf("output path must differ from source path: %s", outputPath)
	}

	return &ExtractionRequest{
		SourcePath: sourcePath,
		OutputPath: outputPath,
		Format:     format,
		Overwrite:  overwrite,
	}, nil
}

// Extension returns the file extension matching the requested output format
func (r *ExtractionRequest) Extension() string {
	if r.Format == media.OutputFragmentedMPEG4 {
		return ExtensionFMP4
	}
	return ExtensionM4A
}

// OutputFilename returns the source base name with the output extension,
// e.g. "2025-12-28.mp4" becomes "2025-12-28.m4a"
func (r *ExtractionRequest) OutputFilename() string {
	base := filepath.Base(r.SourcePath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	ext := r.Extension()

	// fmp4 output of an .mp4 source would otherwise collide with its source
	if strings.EqualFold(filepath.Ext(base), ext) {
		name += "-audio"
	}
	return name + ext
}

// ResolveOutputPath returns the explicit output path, or the derived filename
// inside outputDir. An empty outputDir means the source's directory.
func (r *ExtractionRequest) ResolveOutputPath(outputDir string) string {
	if r.OutputPath != "" {
		return r.OutputPath
	}
	if outputDir == "" {
		outputDir = filepath.Dir(r.SourcePath)
	}
	return filepath.Join(outputDir, r.OutputFilename())
}
