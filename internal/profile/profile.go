package profile

import (
	"errors"
	"strconv"
	"strings"
)

// Intent names the purpose a conversion is built for.
type Intent string

const (
	// IntentOptimize is the general quality pass used by the recorder UI.
	IntentOptimize Intent = "optimize"
	// IntentTransportConvert produces the narrow-band voice delivery profile.
	IntentTransportConvert Intent = "transport-profile-convert"
	// IntentSizeTarget squeezes audio under a size limit.
	IntentSizeTarget Intent = "size-target-compress"
	// IntentVoiceNote is the push-to-talk encoding used by dispatch.
	IntentVoiceNote Intent = "voice-note"
	// IntentGenericClip is the audio attachment encoding used by dispatch.
	IntentGenericClip Intent = "generic-clip"
	// IntentVideo is the transport-safe video re-encode.
	IntentVideo Intent = "video"
)

var (
	// ErrDurationRequired is returned when a size target is requested
	// without a positive input duration.
	ErrDurationRequired = errors.New("profile: positive duration required for size target")
	// ErrTargetSizeRequired is returned when a size target is requested
	// without a positive size.
	ErrTargetSizeRequired = errors.New("profile: positive target size required")
	// ErrUnknownIntent is returned for intents with no audio profile.
	ErrUnknownIntent = errors.New("profile: unknown audio intent")
)

// Filter is a single ffmpeg filter stage.
type Filter struct {
	Name    string
	Options string
}

func (f Filter) String() string {
	if f.Options == "" {
		return f.Name
	}
	return f.Name + "=" + f.Options
}

// ConversionProfile describes how one input is transcoded. Audio fields
// and video fields are both present; a zero value means "not set".
type ConversionProfile struct {
	Intent Intent

	// Audio
	AudioCodec        string
	AudioBitrateKbps  int
	SampleRate        int
	Channels          int
	Filters           []Filter
	NormalizeLoudness bool
	SuppressNoise     bool

	// Video
	VideoCodec   string
	CRF          int
	Preset       string
	MaxFrameRate int
	MaxWidth     int
	MaxHeight    int
	VideoBitrate string
	MaxBitrate   string
	BufferSize   string
	PixelFormat  string

	// Container
	FastStart bool
	Format    string
	Extension string
	MIME      string
}

// IsVideo reports whether the profile re-encodes a video stream.
func (p *ConversionProfile) IsVideo() bool {
	return p.VideoCodec != ""
}

// FilterGraph joins the audio filters into a single -af expression.
func (p *ConversionProfile) FilterGraph() string {
	parts := make([]string, len(p.Filters))
	for i, f := range p.Filters {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}

// Args returns the ffmpeg output options for the profile. Input and output
// paths are added by the transcoder.
func (p *ConversionProfile) Args() []string {
	var args []string

	if p.IsVideo() {
		args = append(args,
			"-c:v", p.VideoCodec,
			"-preset", p.Preset,
			"-crf", strconv.Itoa(p.CRF),
		)
		if p.MaxWidth > 0 && p.MaxHeight > 0 {
			args = append(args, "-vf", scaleFilter(p.MaxWidth, p.MaxHeight))
		}
		if p.MaxFrameRate > 0 {
			args = append(args, "-fpsmax", strconv.Itoa(p.MaxFrameRate))
		}
		if p.PixelFormat != "" {
			args = append(args, "-pix_fmt", p.PixelFormat)
		}
		if p.VideoBitrate != "" {
			args = append(args, "-b:v", p.VideoBitrate)
		}
		if p.MaxBitrate != "" {
			args = append(args, "-maxrate", p.MaxBitrate)
		}
		if p.BufferSize != "" {
			args = append(args, "-bufsize", p.BufferSize)
		}
	} else {
		args = append(args, "-vn")
		if len(p.Filters) > 0 {
			args = append(args, "-af", p.FilterGraph())
		}
	}

	if p.AudioCodec != "" {
		args = append(args, "-c:a", p.AudioCodec)
	}
	if p.AudioBitrateKbps > 0 {
		args = append(args, "-b:a", strconv.Itoa(p.AudioBitrateKbps)+"k")
	}
	if p.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(p.SampleRate))
	}
	if p.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(p.Channels))
	}
	if p.FastStart {
		args = append(args, "-movflags", "+faststart")
	}
	if p.Format != "" {
		args = append(args, "-f", p.Format)
	}

	return args
}

// scaleFilter shrinks to fit within maxW x maxH, never upscales, keeps the
// aspect ratio and rounds to even dimensions for the encoder.
func scaleFilter(maxW, maxH int) string {
	return "scale=w='min(" + strconv.Itoa(maxW) + ",iw)':h='min(" + strconv.Itoa(maxH) +
		",ih)':force_original_aspect_ratio=decrease:force_divisible_by=2"
}
