package mediatypes

import (
	"maps"
	"slices"
)

// Class is the semantic media class a file resolves to. It also names the
// dispatch strategy chosen for the file.
type Class string

const (
	// ClassVideo is re-encoded with the video policy.
	ClassVideo Class = "video"
	// ClassAudio is re-encoded with a voice-note or clip profile.
	ClassAudio Class = "audio"
	// ClassImage passes through untouched.
	ClassImage Class = "image"
	// ClassDocument passes through untouched. Also the fallback for anything unknown.
	ClassDocument Class = "document"
)

// VideoExtensions maps file extensions to whether they are video formats.
// .mpeg and .mpg are deliberately absent; see AudioExtensions.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".3gp":  true,
}

// AudioExtensions maps file extensions to whether they are audio formats.
// .mpeg/.mpg uploads come from voice recorders and are handled as audio.
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".m4a":  true,
	".aac":  true,
	".flac": true,
	".wma":  true,
	".amr":  true,
	".mpeg": true,
	".mpg":  true,
}

// ImageExtensions maps file extensions to whether they are image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".svg":  true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
}

// MimeTypes maps file extensions to their generic MIME types. The table is
// intentionally the generic one; corrections are applied in Resolve.
var MimeTypes = map[string]string{
	// Video
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".3gp":  "video/3gpp",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",

	// Audio
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".wma":  "audio/x-ms-wma",
	".amr":  "audio/amr",

	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",

	// Documents
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".json": "application/json",
	".zip":  "application/zip",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// preferredExtensions picks one extension per MIME for inputs that arrive
// without a usable filename.
var preferredExtensions = map[string]string{
	"video/mp4":       ".mp4",
	"video/x-m4v":     ".m4v",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
	"video/3gpp":      ".3gp",
	"audio/mpeg":      ".mp3",
	"audio/mp4":       ".m4a",
	"audio/x-m4a":     ".m4a",
	"audio/ogg":       ".ogg",
	"audio/opus":      ".opus",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/webm":      ".webm",
	"audio/aac":       ".aac",
	"audio/flac":      ".flac",
	"audio/amr":       ".amr",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
	"application/zip": ".zip",
}

// classDefaults is the representative MIME and extension per class, used
// when nothing more specific is known.
var classDefaults = map[Class]struct{ mime, ext string }{
	ClassVideo:    {"video/mp4", ".mp4"},
	ClassAudio:    {"audio/mpeg", ".mp3"},
	ClassImage:    {"image/jpeg", ".jpg"},
	ClassDocument: {"application/octet-stream", ".bin"},
}

// GetMimeType returns the generic MIME type for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
// Returns an empty string if the extension is not recognized.
func GetMimeType(ext string) string {
	return MimeTypes[ext]
}

// ExtensionFor returns the canonical extension for a MIME type, or an empty
// string when none is registered.
func ExtensionFor(mime string) string {
	if ext, ok := preferredExtensions[mime]; ok {
		return ext
	}
	for _, ext := range slices.Sorted(maps.Keys(MimeTypes)) {
		if MimeTypes[ext] == mime {
			return ext
		}
	}
	return ""
}
