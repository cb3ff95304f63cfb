// Package profile builds ffmpeg conversion profiles for audio and video.
//
// A ConversionProfile is a plain value: codecs, rates, the ordered audio
// filter chain and container settings. Args renders it into ffmpeg output
// options; the transcoder adds input and output paths.
//
// Audio intents:
//
//	optimize                   mp3  64k  22050 Hz mono, enhancement chain
//	transport-profile-convert  mp3  96k  16000 Hz mono, enhancement chain
//	size-target-compress       mp3  floor(kB*8/s) in [32,128]k, 22050 Hz mono
//	voice-note                 aac 128k  44100 Hz mono, m4a
//	generic-clip               aac 192k  44100 Hz stereo, m4a
//
// Every video is re-encoded with BuildVideoProfile.
package profile
