package distribution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"m4a-extractor/domain/audio"
	"m4a-extractor/domain/distribution"
)

// Errors returned by UploadService
var (
	ErrFileNotFound        = errors.New("file does not exist")
	ErrNoFolder            = errors.New("no Drive folder configured")
	ErrInsufficientStorage = errors.New("not enough Drive storage")
)

// UploadService handles file upload operations to Google Drive
type UploadService struct {
	driveClient distribution.DriveClient
	files       audio.FileStore
	folderID    string
	share       bool
	output      io.Writer
	logger      *slog.Logger
}

// NewUploadService creates a new upload service. share controls whether
// uploaded files get an "anyone with the link" permission.
func NewUploadService(client distribution.DriveClient, files audio.FileStore, folderID string, share bool, output io.Writer, logger *slog.Logger) *UploadService {
	if output == nil {
		output = io.Discard
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &UploadService{
		driveClient: client,
		files:       files,
		folderID:    folderID,
		share:       share,
		output:      output,
		logger:      logger,
	}
}

// UploadAudio uploads an extracted audio file, replacing a same-named file in the folder
func (s *UploadService) UploadAudio(ctx context.Context, audioPath string) (*distribution.UploadResult, error) {
	if s.folderID == "" {
		return nil, ErrNoFolder
	}

	if !s.files.Exists(audioPath) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, audioPath)
	}

	size, err := s.files.Size(audioPath)
	if err != nil {
		return nil, err
	}

	fileName := filepath.Base(audioPath)
	logger := s.logger.With("file", fileName, "folder", s.folderID)

	// Check for existing file with same name and delete if found
	existing, err := s.driveClient.FindFileByName(ctx, s.folderID, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing file: %w", err)
	}

	storage, err := s.driveClient.GetStorageQuota(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check storage: %w", err)
	}
	needed := size
	if existing != nil {
		needed -= existing.Size
	}
	if !storage.HasSpaceFor(needed) {
		return nil, fmt.Errorf("%w: need %s, %s available", ErrInsufficientStorage,
			humanize.IBytes(uint64(max(needed, 0))), humanize.IBytes(uint64(max(storage.AvailableBytes, 0))))
	}

	if existing != nil {
		fmt.Fprintf(s.output, "      Replacing existing %s (%s)\n", existing.Name, humanize.IBytes(uint64(max(existing.Size, 0))))
		if err := s.driveClient.DeletePermanently(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to delete existing file %s: %w", existing.Name, err)
		}
		logger.Debug("replaced existing drive file", "file_id", existing.ID)
	}

	req := distribution.UploadRequest{
		LocalPath: audioPath,
		FileName:  fileName,
		FolderID:  s.folderID,
		MimeType:  distribution.MimeTypeFor(audioPath),
	}

	result, err := s.driveClient.Upload(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", fileName, err)
	}
	result.Replaced = existing != nil

	if s.share {
		url, err := s.driveClient.Share(ctx, result.FileID)
		if err != nil {
			return nil, fmt.Errorf("failed to share %s: %w", fileName, err)
		}
		result.ShareableURL = url
	}

	logger.Info("audio uploaded", "file_id", result.FileID, "bytes", result.Size, "shared", s.share)
	return result, nil
}
