package distribution

import (
	"path/filepath"
	"strings"
)

// UploadRequest contains the parameters needed to upload a file to Google Drive
type UploadRequest struct {
	LocalPath string // Full path to the local file
	FileName  string // Target filename in Google Drive
	FolderID  string // Target folder ID in Google Drive
	MimeType  string // MIME type of the file
}

// UploadResult contains the result of a successful upload
type UploadResult struct {
	FileID       string // Google Drive file ID
	FileName     string // Name of the uploaded file
	ShareableURL string // URL for sharing the file, empty when not shared
	Size         int64  // Size of the uploaded file in bytes
	Replaced     bool   // A same-named file was deleted first
}

// MIME type constants for the containers this tool writes
const (
	MimeTypeAudioMP4 = "audio/mp4"
	MimeTypeOctet    = "application/octet-stream"
)

// MimeTypeFor returns the upload MIME type for an extracted audio file.
// Both the progressive and the fragmented variants are audio-only MPEG-4.
func MimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m4a", ".mp4":
		return MimeTypeAudioMP4
	default:
		return MimeTypeOctet
	}
}
