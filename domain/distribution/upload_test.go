package distribution

import "testing"

func TestMimeTypeFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "/srv/audio/2025-12-28.m4a", want: MimeTypeAudioMP4},
		{path: "/srv/audio/2025-12-28-audio.MP4", want: MimeTypeAudioMP4},
		{path: "notes.txt", want: MimeTypeOctet},
		{path: "noext", want: MimeTypeOctet},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := MimeTypeFor(tt.path); got != tt.want {
				t.Errorf("MimeTypeFor(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestStorageInfo_HasSpaceFor(t *testing.T) {
	tests := []struct {
		name    string
		storage StorageInfo
		bytes   int64
		want    bool
	}{
		{name: "enough", storage: StorageInfo{TotalBytes: 100, UsedBytes: 40, AvailableBytes: 60}, bytes: 60, want: true},
		{name: "not enough", storage: StorageInfo{TotalBytes: 100, UsedBytes: 90, AvailableBytes: 10}, bytes: 11, want: false},
		{name: "unlimited", storage: StorageInfo{}, bytes: 1 << 40, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.storage.HasSpaceFor(tt.bytes); got != tt.want {
				t.Errorf("HasSpaceFor(%d) = %v, want %v", tt.bytes, got, tt.want)
			}
		})
	}
}
