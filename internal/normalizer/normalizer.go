// Package normalizer implements the recorder-facing audio operations:
// quality optimization, transport-profile conversion, size-targeted
// compression and duration probing.
package normalizer

import (
	"context"
	"errors"
	"fmt"

	"media-relay/internal/filesystem"
	"media-relay/internal/logging"
	"media-relay/internal/profile"
	"media-relay/internal/tempfiles"
	"media-relay/internal/transcoder"
)

// ErrEmptyAudio is returned for zero-length uploads.
var ErrEmptyAudio = errors.New("normalizer: empty audio")

// Engine is the transcoding backend. Implemented by *transcoder.Transcoder.
type Engine interface {
	Transcode(ctx context.Context, job *transcoder.Job) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Options are the caller's enhancement flags.
type Options struct {
	Normalize   bool
	RemoveNoise bool
}

// Result is a normalized audio file held in memory.
type Result struct {
	Data            []byte
	MIME            string
	Extension       string
	BitrateKbps     int
	DurationSeconds float64
}

// Service runs audio intents against the engine using scratch artifacts.
// Every artifact it creates is released before a call returns.
type Service struct {
	engine Engine
	temp   *tempfiles.Manager
	retry  filesystem.RetryConfig
}

// New creates a Service.
func New(engine Engine, temp *tempfiles.Manager) *Service {
	return &Service{
		engine: engine,
		temp:   temp,
		retry:  filesystem.DefaultRetryConfig(),
	}
}

// Optimize applies the general quality pass.
func (s *Service) Optimize(ctx context.Context, data []byte, ext string, opts Options) (*Result, error) {
	return s.run(ctx, data, ext, profile.IntentOptimize, opts, 0)
}

// ConvertForTransport applies the narrow-band voice delivery profile.
func (s *Service) ConvertForTransport(ctx context.Context, data []byte, ext string, opts Options) (*Result, error) {
	return s.run(ctx, data, ext, profile.IntentTransportConvert, opts, 0)
}

// CompressToSize probes the input duration and encodes at the bitrate that
// fits targetKB. A failed probe is returned as transcoder.ErrProbeFailed;
// no bitrate is guessed.
func (s *Service) CompressToSize(ctx context.Context, data []byte, ext string, targetKB int, opts Options) (*Result, error) {
	if targetKB <= 0 {
		return nil, profile.ErrTargetSizeRequired
	}
	return s.run(ctx, data, ext, profile.IntentSizeTarget, opts, targetKB)
}

// Duration returns the input duration in seconds.
func (s *Service) Duration(ctx context.Context, data []byte, ext string) (float64, error) {
	if len(data) == 0 {
		return 0, ErrEmptyAudio
	}
	in, err := s.temp.Materialize(data, ext)
	if err != nil {
		return 0, err
	}
	defer s.temp.Release(in)

	return s.engine.ProbeDuration(ctx, in.Path)
}

func (s *Service) run(ctx context.Context, data []byte, ext string, intent profile.Intent, opts Options, targetKB int) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	in, err := s.temp.Materialize(data, ext)
	if err != nil {
		return nil, err
	}
	defer s.temp.Release(in)

	audioOpts := profile.AudioOptions{
		Normalize:    opts.Normalize,
		RemoveNoise:  opts.RemoveNoise,
		TargetSizeKB: targetKB,
	}

	if intent == profile.IntentSizeTarget {
		seconds, err := s.engine.ProbeDuration(ctx, in.Path)
		if err != nil {
			return nil, err
		}
		audioOpts.DurationSeconds = seconds
	}

	prof, err := profile.BuildAudioProfile(intent, audioOpts)
	if err != nil {
		return nil, err
	}

	out, err := s.temp.Reserve(prof.Extension)
	if err != nil {
		return nil, err
	}
	defer s.temp.Release(out)

	job := &transcoder.Job{InputPath: in.Path, OutputPath: out.Path, Profile: prof}
	if err := s.engine.Transcode(ctx, job); err != nil {
		return nil, err
	}

	converted, err := filesystem.ReadFileWithRetry(out.Path, s.retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transcoder.ErrArtifactMissing, err)
	}
	if len(converted) == 0 {
		return nil, transcoder.ErrArtifactMissing
	}

	logging.Debug("Audio %s: %d -> %d bytes at %dk", intent, len(data), len(converted), prof.AudioBitrateKbps)

	return &Result{
		Data:            converted,
		MIME:            prof.MIME,
		Extension:       prof.Extension,
		BitrateKbps:     prof.AudioBitrateKbps,
		DurationSeconds: audioOpts.DurationSeconds,
	}, nil
}
