package mediatypes

import (
	"testing"
)

func TestExtensionSetsAreDisjoint(t *testing.T) {
	for ext := range VideoExtensions {
		if AudioExtensions[ext] {
			t.Errorf("%s is in both the video and audio sets", ext)
		}
		if ImageExtensions[ext] {
			t.Errorf("%s is in both the video and image sets", ext)
		}
	}
	for ext := range AudioExtensions {
		if ImageExtensions[ext] {
			t.Errorf("%s is in both the audio and image sets", ext)
		}
	}
}

func TestEveryClassifiedExtensionHasMime(t *testing.T) {
	for _, set := range []map[string]bool{VideoExtensions, AudioExtensions, ImageExtensions} {
		for ext := range set {
			if GetMimeType(ext) == "" {
				t.Errorf("no MIME registered for %s", ext)
			}
		}
	}
}

func TestGetMimeType(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".jpg", "image/jpeg"},
		{".mp4", "video/mp4"},
		{".ogg", "audio/ogg"},
		{".mpeg", "video/mpeg"},
		{".pdf", "application/pdf"},
		{".unknown", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			if got := GetMimeType(tt.ext); got != tt.want {
				t.Errorf("GetMimeType(%q) = %q, want %q", tt.ext, got, tt.want)
			}
		})
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"audio/mpeg", ".mp3"},
		{"audio/mp4", ".m4a"},
		{"video/mp4", ".mp4"},
		{"image/jpeg", ".jpg"},
		{"video/mpeg", ".mpeg"},
		{"image/tiff", ".tif"},
		{"application/x-unknown", ""},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			if got := ExtensionFor(tt.mime); got != tt.want {
				t.Errorf("ExtensionFor(%q) = %q, want %q", tt.mime, got, tt.want)
			}
		})
	}
}
