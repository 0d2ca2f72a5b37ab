//go:build integration

package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
	googledrive "google.golang.org/api/drive/v3"

	appdist "m4a-extractor/application/distribution"
	"m4a-extractor/cmd"
	"m4a-extractor/domain/distribution"
	"m4a-extractor/infrastructure/config"
	"m4a-extractor/infrastructure/drive"
	"m4a-extractor/infrastructure/filesystem"
	"m4a-extractor/infrastructure/mp4/mp4test"
)

// uploadMockDriveService is a mock implementation for upload testing
type uploadMockDriveService struct {
	files          []*googledrive.File
	uploadedFiles  []*googledrive.File
	permissions    map[string]*googledrive.Permission
	storageLimit   int64
	storageUsage   int64
	deletedFileIDs []string
	nextFileID     int
}

func newUploadMockDriveService() *uploadMockDriveService {
	return &uploadMockDriveService{
		permissions: make(map[string]*googledrive.Permission),
		nextFileID:  1,
	}
}

func (m *uploadMockDriveService) ListFiles(ctx context.Context, query string, fields string, orderBy string) ([]*googledrive.File, error) {
	// Filter files by name if query contains "name = " (for FindFileByName support)
	if start := strings.Index(query, "name = '"); start >= 0 {
		start += len("name = '")
		end := strings.Index(query[start:], "'") + start
		if end > start {
			targetName := query[start:end]
			var result []*googledrive.File
			for _, f := range m.files {
				if f.Name == targetName {
					result = append(result, f)
				}
			}
			return result, nil
		}
	}
	return m.files, nil
}

func (m *uploadMockDriveService) GetAbout(ctx context.Context, fields string) (*googledrive.About, error) {
	return &googledrive.About{
		StorageQuota: &googledrive.AboutStorageQuota{
			Limit: m.storageLimit,
			Usage: m.storageUsage,
		},
	}, nil
}

func (m *uploadMockDriveService) DeleteFile(ctx context.Context, fileID string) error {
	m.deletedFileIDs = append(m.deletedFileIDs, fileID)
	return nil
}

func (m *uploadMockDriveService) UploadFile(ctx context.Context, fileName, mimeType, folderID, localPath string) (*googledrive.File, error) {
	// Check if file exists (for realistic testing)
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}

	fileID := fmt.Sprintf("uploaded-file-%d", m.nextFileID)
	m.nextFileID++

	file := &googledrive.File{
		Id:       fileID,
		Name:     fileName,
		MimeType: mimeType,
		Size:     info.Size(),
		Parents:  []string{folderID},
	}
	m.uploadedFiles = append(m.uploadedFiles, file)
	return file, nil
}

func (m *uploadMockDriveService) CreatePermission(ctx context.Context, fileID string, permission *googledrive.Permission) error {
	m.permissions[fileID] = permission
	return nil
}

// uploadContext holds test state for upload scenarios
type uploadContext struct {
	dir          string
	folderID     string
	share        bool
	client       *drive.Client
	mockService  *uploadMockDriveService
	uploadResult *distribution.UploadResult
	audioPath    string
	err          error
	outputBuffer *bytes.Buffer
}

// SharedUploadContext is reset before each scenario via Before hook
var SharedUploadContext *uploadContext

func getUploadContext() *uploadContext {
	return SharedUploadContext
}

func InitializeUploadScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		dir, err := os.MkdirTemp("", "upload-test-*")
		if err != nil {
			return c, err
		}
		SharedUploadContext = &uploadContext{
			dir:          dir,
			share:        true,
			mockService:  newUploadMockDriveService(),
			outputBuffer: &bytes.Buffer{},
		}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if SharedUploadContext != nil && SharedUploadContext.dir != "" {
			os.RemoveAll(SharedUploadContext.dir)
		}
		SharedUploadContext = nil
		return c, nil
	})

	ctx.Step(`^the audio folder ID is "([^"]*)"$`, theAudioFolderIDIs)
	ctx.Step(`^valid Google Drive upload credentials$`, validGoogleDriveUploadCredentials)
	ctx.Step(`^sharing is disabled$`, sharingIsDisabled)
	ctx.Step(`^I have an audio file "([^"]*)"$`, iHaveAnAudioFile)
	ctx.Step(`^I have a recording "([^"]*)" with audio$`, iHaveARecordingWithAudio)
	ctx.Step(`^the Drive folder already contains:$`, uploadTheDriveFolderAlreadyContains)
	ctx.Step(`^the Drive storage is (\d+) bytes with (\d+) used$`, theDriveStorageIs)
	ctx.Step(`^I upload the audio file$`, iUploadTheAudioFile)
	ctx.Step(`^I upload the audio file "([^"]*)"$`, iUploadTheAudioFileNamed)
	ctx.Step(`^I extract and upload audio from "([^"]*)"$`, iExtractAndUploadAudioFrom)
	ctx.Step(`^the upload should succeed$`, theUploadShouldSucceed)
	ctx.Step(`^the upload should fail with "([^"]*)"$`, theUploadShouldFailWith)
	ctx.Step(`^the uploaded file should have MIME type "([^"]*)"$`, theUploadedFileShouldHaveMIMEType)
	ctx.Step(`^the uploaded file should be named "([^"]*)"$`, theUploadedFileShouldBeNamed)
	ctx.Step(`^the file should be shared with anyone who has the link$`, theFileShouldBeSharedWithAnyone)
	ctx.Step(`^no sharing permission should be created$`, noSharingPermissionShouldBeCreated)
	ctx.Step(`^the file "([^"]*)" should be deleted before upload$`, uploadTheFileShouldBeDeletedBeforeUpload)
	ctx.Step(`^nothing should have been uploaded$`, nothingShouldHaveBeenUploaded)
	ctx.Step(`^the upload output should contain "([^"]*)"$`, uploadTheOutputShouldContain)
}

func theAudioFolderIDIs(folderID string) error {
	getUploadContext().folderID = folderID
	return nil
}

func validGoogleDriveUploadCredentials() error {
	u := getUploadContext()

	// Initialize client with mock service
	client, err := drive.NewClient(context.Background(), "", drive.WithDriveService(u.mockService))
	if err != nil {
		return fmt.Errorf("failed to initialize client: %v", err)
	}
	u.client = client
	return nil
}

func sharingIsDisabled() error {
	getUploadContext().share = false
	return nil
}

func (u *uploadContext) service() *appdist.UploadService {
	return appdist.NewUploadService(u.client, filesystem.NewStore(), u.folderID, u.share, u.outputBuffer, nil)
}

func iHaveAnAudioFile(name string) error {
	u := getUploadContext()
	u.audioPath = filepath.Join(u.dir, name)
	return os.WriteFile(u.audioPath, bytes.Repeat([]byte("audio "), 16), 0644)
}

func iHaveARecordingWithAudio(name string) error {
	u := getUploadContext()
	return mp4test.WriteMovie(filepath.Join(u.dir, name), mp4test.AVC(10, 33333), mp4test.AAC(20, 1000))
}

func uploadTheDriveFolderAlreadyContains(table *godog.Table) error {
	u := getUploadContext()
	for i, row := range table.Rows {
		if i == 0 {
			continue // Skip header row
		}
		size, err := strconv.ParseInt(row.Cells[2].Value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", row.Cells[2].Value, err)
		}
		u.mockService.files = append(u.mockService.files, &googledrive.File{
			Id:   row.Cells[0].Value,
			Name: row.Cells[1].Value,
			Size: size,
		})
	}
	return nil
}

func theDriveStorageIs(limit, used int64) error {
	u := getUploadContext()
	u.mockService.storageLimit = limit
	u.mockService.storageUsage = used
	return nil
}

func runUpload(path string) error {
	u := getUploadContext()
	u.audioPath = path
	u.err = cmd.RunUploadWithDependencies(context.Background(), u.service(), path, u.outputBuffer)
	if len(u.mockService.uploadedFiles) > 0 && u.err == nil {
		last := u.mockService.uploadedFiles[len(u.mockService.uploadedFiles)-1]
		u.uploadResult = &distribution.UploadResult{FileID: last.Id, FileName: last.Name, Size: last.Size}
	}
	return nil
}

func iUploadTheAudioFile() error {
	return runUpload(getUploadContext().audioPath)
}

func iUploadTheAudioFileNamed(name string) error {
	return runUpload(filepath.Join(getUploadContext().dir, name))
}

func iExtractAndUploadAudioFrom(name string) error {
	u := getUploadContext()
	_, u.err = cmd.RunExtractWithDependencies(context.Background(), cmd.ExtractDependencies{
		Config:   config.Default(),
		Store:    filesystem.NewStore(),
		Finder:   filesystem.NewFinder(),
		Uploader: u.service(),
	}, cmd.ExtractOptions{
		InputPath: filepath.Join(u.dir, name),
		Upload:    true,
	}, u.outputBuffer)
	return nil
}

func theUploadShouldSucceed() error {
	u := getUploadContext()
	if u.err != nil {
		return fmt.Errorf("expected upload to succeed, but got error: %v\noutput:\n%s", u.err, u.outputBuffer.String())
	}
	if len(u.mockService.uploadedFiles) == 0 {
		return fmt.Errorf("no file reached Drive")
	}
	return nil
}

func theUploadShouldFailWith(text string) error {
	u := getUploadContext()
	if u.err == nil {
		return fmt.Errorf("expected an error containing %q but got none", text)
	}
	if !strings.Contains(u.err.Error(), text) {
		return fmt.Errorf("expected error containing %q, got: %v", text, u.err)
	}
	return nil
}

func lastUploaded() (*googledrive.File, error) {
	files := getUploadContext().mockService.uploadedFiles
	if len(files) == 0 {
		return nil, fmt.Errorf("no file was uploaded")
	}
	return files[len(files)-1], nil
}

func theUploadedFileShouldHaveMIMEType(mime string) error {
	f, err := lastUploaded()
	if err != nil {
		return err
	}
	if f.MimeType != mime {
		return fmt.Errorf("expected MIME type %q, got %q", mime, f.MimeType)
	}
	return nil
}

func theUploadedFileShouldBeNamed(name string) error {
	f, err := lastUploaded()
	if err != nil {
		return err
	}
	if f.Name != name {
		return fmt.Errorf("expected uploaded name %q, got %q", name, f.Name)
	}
	return nil
}

func theFileShouldBeSharedWithAnyone() error {
	u := getUploadContext()
	f, err := lastUploaded()
	if err != nil {
		return err
	}
	perm, ok := u.mockService.permissions[f.Id]
	if !ok {
		return fmt.Errorf("permission not found for file %s", f.Id)
	}
	if perm.Type != "anyone" || perm.Role != "reader" {
		return fmt.Errorf("expected anyone/reader permission, got %s/%s", perm.Type, perm.Role)
	}
	return nil
}

func noSharingPermissionShouldBeCreated() error {
	if n := len(getUploadContext().mockService.permissions); n != 0 {
		return fmt.Errorf("expected no permissions, got %d", n)
	}
	return nil
}

func uploadTheFileShouldBeDeletedBeforeUpload(fileID string) error {
	u := getUploadContext()
	for _, id := range u.mockService.deletedFileIDs {
		if id == fileID {
			return nil
		}
	}
	return fmt.Errorf("expected file %s to be deleted, deleted: %v", fileID, u.mockService.deletedFileIDs)
}

func nothingShouldHaveBeenUploaded() error {
	if n := len(getUploadContext().mockService.uploadedFiles); n != 0 {
		return fmt.Errorf("expected no uploads, got %d", n)
	}
	return nil
}

func uploadTheOutputShouldContain(text string) error {
	u := getUploadContext()
	if !strings.Contains(u.outputBuffer.String(), text) {
		return fmt.Errorf("expected output to contain %q, got:\n%s", text, u.outputBuffer.String())
	}
	return nil
}
