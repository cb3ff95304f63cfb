package profile

// BuildVideoProfile returns the transport-safe video envelope: H.264/AAC in
// a faststart mp4, at most 1280x720 and 30 fps, 2M target with a 3M ceiling.
func BuildVideoProfile() *ConversionProfile {
	return &ConversionProfile{
		Intent:           IntentVideo,
		VideoCodec:       "libx264",
		Preset:           "medium",
		CRF:              23,
		MaxFrameRate:     30,
		MaxWidth:         1280,
		MaxHeight:        720,
		VideoBitrate:     "2M",
		MaxBitrate:       "3M",
		BufferSize:       "6M",
		PixelFormat:      "yuv420p",
		AudioCodec:       "aac",
		AudioBitrateKbps: 128,
		FastStart:        true,
		Format:           "mp4",
		Extension:        ".mp4",
		MIME:             "video/mp4",
	}
}

// NeedsConversion reports whether a video with the given extension must be
// re-encoded before sending. Every video is, including .mp4: the container
// says nothing about the codecs inside.
func NeedsConversion(_ string) bool {
	return true
}
