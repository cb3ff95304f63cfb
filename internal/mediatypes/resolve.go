package mediatypes

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// SniffLength is the number of leading bytes Resolve looks at when it has
// to fall back to content sniffing.
const SniffLength = 512

const octetStream = "application/octet-stream"

// ResolvedMediaType is the outcome of type resolution for one input. It is
// computed once per dispatch and never re-derived.
type ResolvedMediaType struct {
	// Class is the extension-authoritative classification that selects the
	// dispatch strategy.
	Class Class
	// MIME is the declared content type used for the outgoing payload.
	MIME string
	// Extension is the canonical extension including the leading dot.
	Extension string

	VideoByExtension bool
	AudioByExtension bool
	ImageByExtension bool
}

// Resolve determines the media class, MIME and extension for a file name,
// an optional declared content type and an optional content prefix. It
// never fails: anything unrecognized resolves to a document.
func Resolve(name, declared string, head []byte) ResolvedMediaType {
	ext := strings.ToLower(filepath.Ext(name))

	r := ResolvedMediaType{
		VideoByExtension: VideoExtensions[ext],
		AudioByExtension: AudioExtensions[ext],
		ImageByExtension: ImageExtensions[ext],
	}

	mimeType := GetMimeType(ext)
	if mimeType == "" {
		mimeType = normalizeContentType(declared)
	}
	if mimeType == "" && len(head) > 0 {
		mimeType = sniff(head)
	}
	mimeType = correctMIME(ext, mimeType)

	r.MIME = mimeType
	r.Class = Classify(r)

	if r.MIME == "" {
		r.MIME = classDefaults[r.Class].mime
	}

	switch {
	case ext != "":
		r.Extension = ext
	case ExtensionFor(r.MIME) != "":
		r.Extension = ExtensionFor(r.MIME)
	default:
		r.Extension = classDefaults[r.Class].ext
	}

	return r
}

// Classify picks the dispatch strategy for a resolved type. Extension sets
// win over the MIME whenever they say anything at all.
func Classify(r ResolvedMediaType) Class {
	switch {
	case r.VideoByExtension && !r.AudioByExtension:
		return ClassVideo
	case r.AudioByExtension || strings.HasPrefix(r.MIME, "audio/"):
		return ClassAudio
	case r.ImageByExtension || strings.HasPrefix(r.MIME, "image/"):
		return ClassImage
	case strings.HasPrefix(r.MIME, "video/"):
		return ClassVideo
	default:
		return ClassDocument
	}
}

// correctMIME rewrites known-bad generic mappings.
func correctMIME(ext, mimeType string) string {
	switch ext {
	case ".mpeg", ".mpg":
		return "audio/mpeg"
	case ".mp4", ".m4v":
		if mimeType == "" || strings.HasPrefix(mimeType, "application/") {
			return "video/mp4"
		}
	}
	return mimeType
}

// normalizeContentType strips parameters and lower-cases a declared content
// type. Wildcards and octet-stream carry no information and yield "".
func normalizeContentType(declared string) string {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mediaType, _, _ = strings.Cut(declared, ";")
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == octetStream || strings.HasSuffix(mediaType, "/*") || !strings.Contains(mediaType, "/") {
		return ""
	}
	return mediaType
}

// sniff detects a MIME from content. Unrecognized content yields "".
func sniff(head []byte) string {
	if len(head) > SniffLength {
		head = head[:SniffLength]
	}
	return normalizeContentType(mimetype.Detect(head).String())
}
