package profile

import (
	"fmt"
	"math"
)

// Filter stages of the voice enhancement chain, in application order.
var (
	FilterLoudnorm   = Filter{Name: "loudnorm", Options: "I=-12:TP=-1.0:LRA=7"}
	FilterHighpass   = Filter{Name: "highpass", Options: "f=80"}
	FilterLowpass    = Filter{Name: "lowpass", Options: "f=8000"}
	FilterDenoise    = Filter{Name: "afftdn", Options: "nf=-25"}
	FilterCompressor = Filter{Name: "acompressor", Options: "threshold=0.05:ratio=4:attack=150:release=800"}
	FilterPresenceEQ = Filter{Name: "equalizer", Options: "f=1000:t=h:width=800:g=3"}
	FilterClarityEQ  = Filter{Name: "equalizer", Options: "f=3000:t=h:width=1000:g=4"}
	FilterGain       = Filter{Name: "volume", Options: "1.8"}
)

// Size-target bitrate bounds in kbps.
const (
	MinSizeTargetBitrate = 32
	MaxSizeTargetBitrate = 128
)

// AudioOptions carries the caller flags for BuildAudioProfile.
type AudioOptions struct {
	Normalize   bool
	RemoveNoise bool

	// Size target only.
	DurationSeconds float64
	TargetSizeKB    int
}

// BuildAudioProfile returns the conversion profile for an audio intent.
func BuildAudioProfile(intent Intent, opts AudioOptions) (*ConversionProfile, error) {
	switch intent {
	case IntentOptimize:
		return mp3Profile(intent, 64, 22050, opts), nil

	case IntentTransportConvert:
		return mp3Profile(intent, 96, 16000, opts), nil

	case IntentSizeTarget:
		if opts.TargetSizeKB <= 0 {
			return nil, ErrTargetSizeRequired
		}
		if opts.DurationSeconds <= 0 || math.IsNaN(opts.DurationSeconds) || math.IsInf(opts.DurationSeconds, 0) {
			return nil, ErrDurationRequired
		}
		bitrate := SizeTargetBitrate(opts.TargetSizeKB, opts.DurationSeconds)
		return mp3Profile(intent, bitrate, 22050, opts), nil

	case IntentVoiceNote:
		return aacProfile(intent, 128, 1), nil

	case IntentGenericClip:
		return aacProfile(intent, 192, 2), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, intent)
	}
}

// DispatchAudioIntent picks the dispatch encoding for an audio upload.
func DispatchAudioIntent(isRecord bool) Intent {
	if isRecord {
		return IntentVoiceNote
	}
	return IntentGenericClip
}

// SizeTargetBitrate computes floor(kb*8/seconds) clamped to the size-target
// bounds.
func SizeTargetBitrate(targetKB int, seconds float64) int {
	if seconds <= 0 {
		return MaxSizeTargetBitrate
	}
	bitrate := int(math.Floor(float64(targetKB) * 8 / seconds))
	return max(MinSizeTargetBitrate, min(bitrate, MaxSizeTargetBitrate))
}

// EnhancementChain builds the voice filter chain. High-pass, low-pass,
// compression, EQ and gain always run; loudness and denoise are optional.
func EnhancementChain(normalize, removeNoise bool) []Filter {
	chain := make([]Filter, 0, 8)
	if normalize {
		chain = append(chain, FilterLoudnorm)
	}
	chain = append(chain, FilterHighpass, FilterLowpass)
	if removeNoise {
		chain = append(chain, FilterDenoise)
	}
	return append(chain, FilterCompressor, FilterPresenceEQ, FilterClarityEQ, FilterGain)
}

func mp3Profile(intent Intent, bitrate, sampleRate int, opts AudioOptions) *ConversionProfile {
	return &ConversionProfile{
		Intent:            intent,
		AudioCodec:        "libmp3lame",
		AudioBitrateKbps:  bitrate,
		SampleRate:        sampleRate,
		Channels:          1,
		Filters:           EnhancementChain(opts.Normalize, opts.RemoveNoise),
		NormalizeLoudness: opts.Normalize,
		SuppressNoise:     opts.RemoveNoise,
		Format:            "mp3",
		Extension:         ".mp3",
		MIME:              "audio/mpeg",
	}
}

func aacProfile(intent Intent, bitrate, channels int) *ConversionProfile {
	return &ConversionProfile{
		Intent:           intent,
		AudioCodec:       "aac",
		AudioBitrateKbps: bitrate,
		SampleRate:       44100,
		Channels:         channels,
		FastStart:        true,
		Format:           "ipod",
		Extension:        ".m4a",
		MIME:             "audio/mp4",
	}
}
