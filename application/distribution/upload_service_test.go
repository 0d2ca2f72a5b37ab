package distribution

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"m4a-extractor/domain/audio"
	"m4a-extractor/domain/distribution"
)

// --- Mock implementations for testing ---

// mockDriveClient implements distribution.DriveClient for testing
type mockDriveClient struct {
	files       map[string]*distribution.FileInfo // keyed by name
	storageInfo *distribution.StorageInfo
	findErr     error
	uploadErr   error
	shareErr    error
	deleted     []string
	uploads     []distribution.UploadRequest
	shared      []string
}

func newMockDriveClient() *mockDriveClient {
	return &mockDriveClient{
		files: make(map[string]*distribution.FileInfo),
		storageInfo: &distribution.StorageInfo{
			TotalBytes:     15 * 1024 * 1024 * 1024,
			AvailableBytes: 15 * 1024 * 1024 * 1024,
		},
	}
}

func (m *mockDriveClient) ListFiles(ctx context.Context, folderID string) ([]distribution.FileInfo, error) {
	var out []distribution.FileInfo
	for _, f := range m.files {
		out = append(out, *f)
	}
	return out, nil
}

func (m *mockDriveClient) FindFileByName(ctx context.Context, folderID, name string) (*distribution.FileInfo, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.files[name], nil
}

func (m *mockDriveClient) GetStorageQuota(ctx context.Context) (*distribution.StorageInfo, error) {
	return m.storageInfo, nil
}

func (m *mockDriveClient) Upload(ctx context.Context, req distribution.UploadRequest) (*distribution.UploadResult, error) {
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	m.uploads = append(m.uploads, req)
	return &distribution.UploadResult{FileID: "id-" + req.FileName, FileName: req.FileName, Size: 2048}, nil
}

func (m *mockDriveClient) Share(ctx context.Context, fileID string) (string, error) {
	if m.shareErr != nil {
		return "", m.shareErr
	}
	m.shared = append(m.shared, fileID)
	return "https://drive.google.com/file/d/" + fileID + "/view", nil
}

func (m *mockDriveClient) DeletePermanently(ctx context.Context, fileID string) error {
	m.deleted = append(m.deleted, fileID)
	return nil
}

// mockFiles implements audio.FileStore with sizes only
type mockFiles struct {
	sizes map[string]int64
}

func (m *mockFiles) Exists(path string) bool {
	_, ok := m.sizes[path]
	return ok
}

func (m *mockFiles) OpenSource(path string) (audio.SourceFile, error) {
	return nil, errors.New("not used")
}
func (m *mockFiles) CreateSink(path string) (audio.SinkFile, error) {
	return nil, errors.New("not used")
}
func (m *mockFiles) Remove(path string) error { return nil }

func (m *mockFiles) Size(path string) (int64, error) {
	return m.sizes[path], nil
}

func TestUploadService_UploadAudio(t *testing.T) {
	client := newMockDriveClient()
	files := &mockFiles{sizes: map[string]int64{"/srv/audio/2025-12-28.m4a": 2048}}
	var out bytes.Buffer

	svc := NewUploadService(client, files, "folder-1", true, &out, nil)
	result, err := svc.UploadAudio(context.Background(), "/srv/audio/2025-12-28.m4a")
	if err != nil {
		t.Fatalf("UploadAudio() error = %v", err)
	}

	if len(client.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(client.uploads))
	}
	req := client.uploads[0]
	if req.FileName != "2025-12-28.m4a" || req.FolderID != "folder-1" || req.MimeType != "audio/mp4" {
		t.Errorf("upload request = %+v", req)
	}
	if result.ShareableURL != "https://drive.google.com/file/d/id-2025-12-28.m4a/view" {
		t.Errorf("ShareableURL = %q", result.ShareableURL)
	}
	if result.Replaced {
		t.Error("Replaced = true, want false")
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestUploadService_ReplacesExistingFile(t *testing.T) {
	client := newMockDriveClient()
	client.files["in.m4a"] = &distribution.FileInfo{ID: "old-id", Name: "in.m4a", Size: 3 * 1024 * 1024}
	files := &mockFiles{sizes: map[string]int64{"/srv/audio/in.m4a": 100}}
	var out bytes.Buffer

	svc := NewUploadService(client, files, "folder-1", false, &out, nil)
	result, err := svc.UploadAudio(context.Background(), "/srv/audio/in.m4a")
	if err != nil {
		t.Fatalf("UploadAudio() error = %v", err)
	}

	if len(client.deleted) != 1 || client.deleted[0] != "old-id" {
		t.Errorf("deleted = %v, want [old-id]", client.deleted)
	}
	if !result.Replaced {
		t.Error("Replaced = false, want true")
	}
	if len(client.shared) != 0 || result.ShareableURL != "" {
		t.Errorf("file shared although sharing is off: %v", client.shared)
	}
	if !strings.Contains(out.String(), "Replacing existing in.m4a (3.0 MiB)") {
		t.Errorf("output = %q", out.String())
	}
}

func TestUploadService_Errors(t *testing.T) {
	tests := []struct {
		name     string
		folderID string
		path     string
		setup    func(c *mockDriveClient)
		wantErr  error
		wantMsg  string
	}{
		{name: "no folder", folderID: "", path: "/srv/audio/in.m4a", wantErr: ErrNoFolder},
		{name: "missing file", folderID: "f", path: "/srv/audio/missing.m4a", wantErr: ErrFileNotFound},
		{
			name: "drive full", folderID: "f", path: "/srv/audio/in.m4a",
			setup: func(c *mockDriveClient) {
				c.storageInfo = &distribution.StorageInfo{TotalBytes: 1000, UsedBytes: 990, AvailableBytes: 10}
			},
			wantErr: ErrInsufficientStorage,
		},
		{
			name: "lookup fails", folderID: "f", path: "/srv/audio/in.m4a",
			setup:   func(c *mockDriveClient) { c.findErr = errors.New("quota exceeded") },
			wantMsg: "failed to check for existing file",
		},
		{
			name: "upload fails", folderID: "f", path: "/srv/audio/in.m4a",
			setup:   func(c *mockDriveClient) { c.uploadErr = errors.New("503") },
			wantMsg: "failed to upload in.m4a",
		},
		{
			name: "share fails", folderID: "f", path: "/srv/audio/in.m4a",
			setup:   func(c *mockDriveClient) { c.shareErr = errors.New("forbidden") },
			wantMsg: "failed to share in.m4a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockDriveClient()
			if tt.setup != nil {
				tt.setup(client)
			}
			files := &mockFiles{sizes: map[string]int64{"/srv/audio/in.m4a": 2048}}

			svc := NewUploadService(client, files, tt.folderID, true, nil, nil)
			_, err := svc.UploadAudio(context.Background(), tt.path)
			if err == nil {
				t.Fatal("UploadAudio() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("UploadAudio() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("UploadAudio() error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}
