//go:build manual

package drive

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/dustin/go-humanize"
)

// TestRealDriveConnectivity lists the configured audio folder with real credentials
// Run with: DRIVE_FOLDER_ID=... go test -tags=manual -v ./infrastructure/drive/... -run TestRealDriveConnectivity
func TestRealDriveConnectivity(t *testing.T) {
	credentialsPath := "../../config/credentials.json"
	tokenPath := "../../config/token.json"
	folderID := os.Getenv("DRIVE_FOLDER_ID")

	if _, err := os.Stat(credentialsPath); os.IsNotExist(err) {
		t.Skip("credentials.json not found - skipping real Drive test")
	}
	if folderID == "" {
		t.Skip("DRIVE_FOLDER_ID not set - skipping real Drive test")
	}

	ctx := context.Background()

	client, err := NewClientFromCredentials(ctx, credentialsPath, tokenPath)
	if err != nil {
		t.Fatalf("Failed to create Drive client: %v", err)
	}

	files, err := client.ListFiles(ctx, folderID)
	if err != nil {
		t.Fatalf("Failed to list files: %v", err)
	}

	fmt.Printf("\n=== Google Drive Connectivity Test ===\n")
	fmt.Printf("Found %d files in the audio folder:\n\n", len(files))
	for _, f := range files {
		fmt.Printf("  - %s (%s, %s)\n", f.Name, f.MimeType, humanize.IBytes(uint64(f.Size)))
	}
	fmt.Println()
}
