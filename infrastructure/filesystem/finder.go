package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Finder locates source recordings in a directory
type Finder struct{}

// NewFinder creates a new Finder
func NewFinder() *Finder {
	return &Finder{}
}

// FindNewestFile returns the file with extension ext whose name sorts last.
// Recorders name files by date, so the last name is the newest recording.
func (f *Finder) FindNewestFile(dir, ext string) (string, error) {
	files, err := f.ListFiles(dir, ext)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no %s files found in %s", ext, dir)
	}
	return files[len(files)-1], nil
}

// ListFiles returns the files in dir with extension ext (case-insensitive), sorted by name
func (f *Finder) ListFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
