package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"m4a-extractor/domain/media"
)

func TestLoad_KeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `paths:
  output_directory: /srv/audio
output:
  format: fmp4
google:
  audio_folder_id: folder123
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Paths.OutputDirectory != "/srv/audio" {
		t.Errorf("OutputDirectory = %q, want /srv/audio", cfg.Paths.OutputDirectory)
	}
	if cfg.OutputFormat() != media.OutputFragmentedMPEG4 {
		t.Errorf("OutputFormat() = %v, want fmp4", cfg.OutputFormat())
	}
	if cfg.Transfer.MinBufferSize != 262144 {
		t.Errorf("MinBufferSize = %d, want 262144", cfg.Transfer.MinBufferSize)
	}
	if cfg.Transfer.ProgressInterval != 256 {
		t.Errorf("ProgressInterval = %d, want 256", cfg.Transfer.ProgressInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Google.AudioFolderID != "folder123" {
		t.Errorf("AudioFolderID = %q, want folder123", cfg.Google.AudioFolderID)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "malformed yaml", content: "output: [", wantErr: "failed to parse config file"},
		{name: "bad format", content: "output:\n  format: wav\n", wantErr: "output.format"},
		{name: "bad level", content: "logging:\n  level: verbose\n", wantErr: "logging.level"},
		{name: "bad log format", content: "logging:\n  format: xml\n", wantErr: "logging.format"},
		{name: "negative buffer", content: "transfer:\n  min_buffer_size: -1\n", wantErr: "min_buffer_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Load() of missing file error = %v", err)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Output.Overwrite = true
	cfg.Google.Share = true

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("Load() = %+v, want %+v", loaded, cfg)
	}
}
