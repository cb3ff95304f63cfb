package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"media-relay/internal/database"
	"media-relay/internal/filesystem"
	"media-relay/internal/logging"
	"media-relay/internal/mediatypes"
	"media-relay/internal/metrics"
	"media-relay/internal/profile"
	"media-relay/internal/tempfiles"
	"media-relay/internal/transcoder"
)

// DefaultVideoReleaseDelay keeps converted video on disk long enough for an
// asynchronous transport upload.
const DefaultVideoReleaseDelay = 60 * time.Second

// Config tunes the dispatcher.
type Config struct {
	VideoReleaseDelay time.Duration
}

// Dispatcher turns arbitrary uploads into transport-safe payloads.
type Dispatcher struct {
	engine    Engine
	temp      *tempfiles.Manager
	transport Transport
	journal   Journal
	config    Config
	retry     filesystem.RetryConfig
}

// New creates a Dispatcher. transport and journal may be nil.
func New(engine Engine, temp *tempfiles.Manager, transport Transport, journal Journal, config Config) *Dispatcher {
	if config.VideoReleaseDelay <= 0 {
		config.VideoReleaseDelay = DefaultVideoReleaseDelay
	}
	return &Dispatcher{
		engine:    engine,
		temp:      temp,
		transport: transport,
		journal:   journal,
		config:    config,
		retry:     filesystem.DefaultRetryConfig(),
	}
}

// HasTransport reports whether Send can deliver payloads.
func (d *Dispatcher) HasTransport() bool {
	return d.transport != nil
}

// Dispatch resolves, converts and packages the input without sending it.
// Failures are returned as *SendError.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Payload, error) {
	p, _, err := d.run(ctx, "", req, false)
	return p, err
}

// Send dispatches the input and hands the payload to the transport.
func (d *Dispatcher) Send(ctx context.Context, recipient string, req Request) (*Payload, *Receipt, error) {
	return d.run(ctx, recipient, req, true)
}

// run is the whole pipeline. Every branch lands in exactly one journal
// entry and one DispatchTotal sample.
func (d *Dispatcher) run(ctx context.Context, recipient string, req Request, send bool) (*Payload, *Receipt, error) {
	start := time.Now()
	name := inputName(req.Input)
	resolved := mediatypes.Resolve(name, req.Input.ContentType, d.head(req.Input))

	logging.Debug("Dispatch %q: declared=%q resolved=%s mime=%s ext=%s",
		name, req.Input.ContentType, resolved.Class, resolved.MIME, resolved.Extension)

	if declaredDisagrees(req.Input.ContentType, resolved.Class) {
		metrics.DispatchMimeDisagreements.Inc()
		logging.Debug("Dispatch %q: declared type %q overridden by extension (%s)", name, req.Input.ContentType, resolved.Class)
	}

	var (
		payload  *Payload
		artifact *tempfiles.Artifact
		err      error
	)
	switch resolved.Class {
	case mediatypes.ClassVideo:
		payload, artifact, err = d.dispatchVideo(ctx, req, name, resolved)
	case mediatypes.ClassAudio:
		payload, err = d.dispatchAudio(ctx, req, name, resolved)
	default:
		payload, err = d.passthrough(req, name, resolved)
	}

	var receipt *Receipt
	if err == nil {
		payload.Caption = req.Caption
		payload.Size = len(payload.Data)
		if send {
			receipt, err = d.deliver(ctx, recipient, payload)
		}
	}

	// The delay starts once the transport is done with the file, however
	// long its retries took.
	if artifact != nil {
		if err != nil {
			d.temp.Release(artifact)
		} else {
			d.temp.ReleaseAfter(artifact, d.config.VideoReleaseDelay)
		}
	}

	d.observe(start, name, recipient, req, resolved, payload, err, send)

	if err != nil {
		return nil, nil, err
	}
	return payload, receipt, nil
}

// dispatchVideo converts the input to the transport video profile. A
// converted payload comes back with its output artifact, which the caller
// schedules for release once delivery has finished.
func (d *Dispatcher) dispatchVideo(ctx context.Context, req Request, name string, resolved mediatypes.ResolvedMediaType) (*Payload, *tempfiles.Artifact, error) {
	if !profile.NeedsConversion(resolved.Extension) {
		p, err := d.passthrough(req, name, resolved)
		return p, nil, err
	}

	prof := profile.BuildVideoProfile()
	filename := canonicalFilename(name, prof.Extension, resolved.Class)

	data, out, convErr := d.convert(ctx, req.Input, resolved.Extension, prof)
	if convErr != nil {
		original, err := d.readInput(req.Input)
		if err != nil {
			return nil, nil, &SendError{Stage: StageRead, Kind: KindVideo, Err: errors.Join(convErr, err)}
		}
		metrics.DispatchFallbacks.Inc()
		logging.Warn("Video conversion failed for %q, sending original: %v", name, convErr)
		return &Payload{
			Kind:     KindVideo,
			Data:     original,
			MIME:     prof.MIME,
			Filename: filename,
			Fallback: true,
		}, nil, nil
	}

	return &Payload{
		Kind:      KindVideo,
		Data:      data,
		Path:      out.Path,
		MIME:      prof.MIME,
		Filename:  filename,
		Converted: true,
	}, out, nil
}

func (d *Dispatcher) dispatchAudio(ctx context.Context, req Request, name string, resolved mediatypes.ResolvedMediaType) (*Payload, error) {
	kind := KindAudioFile
	if req.IsRecord {
		kind = KindAudioPTT
	}

	prof, err := profile.BuildAudioProfile(profile.DispatchAudioIntent(req.IsRecord), profile.AudioOptions{})
	if err != nil {
		return nil, &SendError{Stage: StageTranscode, Kind: kind, Err: err}
	}

	data, out, err := d.convert(ctx, req.Input, resolved.Extension, prof)
	if err != nil {
		stage := StageTranscode
		if errors.Is(err, ErrEmptyInput) {
			stage = StageRead
		}
		return nil, &SendError{Stage: stage, Kind: kind, Err: err}
	}
	d.temp.Release(out)

	return &Payload{
		Kind:      kind,
		Data:      data,
		MIME:      prof.MIME,
		Filename:  canonicalFilename(name, prof.Extension, resolved.Class),
		Converted: true,
	}, nil
}

func (d *Dispatcher) passthrough(req Request, name string, resolved mediatypes.ResolvedMediaType) (*Payload, error) {
	kind := KindDocument
	switch resolved.Class {
	case mediatypes.ClassImage:
		kind = KindImage
	case mediatypes.ClassVideo:
		kind = KindVideo
	}

	data, err := d.readInput(req.Input)
	if err != nil {
		return nil, &SendError{Stage: StageRead, Kind: kind, Err: err}
	}

	return &Payload{
		Kind:     kind,
		Data:     data,
		MIME:     resolved.MIME,
		Filename: canonicalFilename(name, resolved.Extension, resolved.Class),
	}, nil
}

// convert runs one transcode and returns the output bytes plus the output
// artifact, which the caller must release. The input artifact, if this call
// created it, is always released before returning. On error nothing is left
// behind.
func (d *Dispatcher) convert(ctx context.Context, in Input, inExt string, prof *profile.ConversionProfile) ([]byte, *tempfiles.Artifact, error) {
	src, owned, err := d.inputArtifact(in, inExt)
	if err != nil {
		return nil, nil, err
	}
	if owned {
		defer d.temp.Release(src)
	}

	out, err := d.temp.Reserve(prof.Extension)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", transcoder.ErrTranscodeFailed, err)
	}

	job := &transcoder.Job{InputPath: src.Path, OutputPath: out.Path, Profile: prof}
	if err := d.engine.Transcode(ctx, job); err != nil {
		d.temp.Release(out)
		return nil, nil, err
	}

	// Only read after the engine has reported completion.
	data, err := filesystem.ReadFileWithRetry(out.Path, d.retry)
	if err == nil && len(data) == 0 {
		err = errors.New("empty output")
	}
	if err != nil {
		d.temp.Release(out)
		return nil, nil, fmt.Errorf("%w: %v", transcoder.ErrArtifactMissing, err)
	}
	return data, out, nil
}

// inputArtifact returns a file path for the engine. Caller-supplied paths
// are used in place and never released.
func (d *Dispatcher) inputArtifact(in Input, ext string) (*tempfiles.Artifact, bool, error) {
	if len(in.Data) == 0 && in.Path != "" {
		return &tempfiles.Artifact{Path: in.Path}, false, nil
	}
	if len(in.Data) == 0 {
		return nil, false, ErrEmptyInput
	}
	a, err := d.temp.Materialize(in.Data, ext)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", transcoder.ErrTranscodeFailed, err)
	}
	return a, true, nil
}

func (d *Dispatcher) readInput(in Input) ([]byte, error) {
	if len(in.Data) > 0 {
		return in.Data, nil
	}
	if in.Path == "" {
		return nil, ErrEmptyInput
	}
	return filesystem.ReadFileWithRetry(in.Path, d.retry)
}

// head returns the first bytes of the input for content sniffing.
func (d *Dispatcher) head(in Input) []byte {
	if len(in.Data) > 0 {
		return in.Data[:min(len(in.Data), mediatypes.SniffLength)]
	}
	if in.Path == "" {
		return nil
	}

	f, err := filesystem.OpenWithRetry(in.Path, d.retry)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, mediatypes.SniffLength)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil
	}
	return buf[:n]
}

func (d *Dispatcher) deliver(ctx context.Context, recipient string, p *Payload) (*Receipt, error) {
	if d.transport == nil {
		return nil, &SendError{Stage: StageTransport, Kind: p.Kind, Err: ErrNoTransport}
	}

	receipt, err := d.transport.Send(ctx, recipient, p)
	if err != nil {
		metrics.TransportSendTotal.WithLabelValues(string(p.Kind), "error").Inc()
		return nil, &SendError{Stage: StageTransport, Kind: p.Kind, Err: err}
	}
	metrics.TransportSendTotal.WithLabelValues(string(p.Kind), "success").Inc()
	return receipt, nil
}

func (d *Dispatcher) observe(start time.Time, name, recipient string, req Request, resolved mediatypes.ResolvedMediaType, p *Payload, err error, send bool) {
	elapsed := time.Since(start)
	strategy := string(resolved.Class)

	outcome := "passthrough"
	status := database.StatusPrepared
	switch {
	case err != nil:
		outcome = "error"
		status = database.StatusFailed
	case p.Fallback:
		outcome = "fallback"
	case p.Converted:
		outcome = "converted"
	}
	if err == nil && send {
		status = database.StatusSent
	}

	metrics.DispatchTotal.WithLabelValues(strategy, outcome).Inc()
	metrics.DispatchDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())

	if err != nil {
		logging.Warn("Dispatch %q (%s) failed after %v: %v", name, strategy, elapsed.Round(time.Millisecond), err)
	} else {
		logging.Debug("Dispatch %q (%s) -> %s %s [%s] in %v", name, strategy, p.Kind, p.MIME, outcome, elapsed.Round(time.Millisecond))
	}

	if d.journal == nil {
		return
	}

	rec := &database.DispatchRecord{
		CreatedAt:     start,
		Filename:      name,
		DeclaredMIME:  req.Input.ContentType,
		ResolvedClass: strategy,
		Status:        status,
		Recipient:     recipient,
		DurationMs:    elapsed.Milliseconds(),
	}
	if p != nil {
		rec.Kind = string(p.Kind)
		rec.MIME = p.MIME
		rec.Converted = p.Converted
		rec.Fallback = p.Fallback
	}
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		rec.Kind = string(sendErr.Kind)
	}
	if err != nil {
		rec.Error = err.Error()
	}
	d.journal.Record(rec)
}

func inputName(in Input) string {
	if in.Filename != "" {
		return filepath.Base(in.Filename)
	}
	if in.Path != "" {
		return filepath.Base(in.Path)
	}
	return ""
}

// canonicalFilename replaces the extension of name with ext. Inputs without
// a usable base name are named after their class.
func canonicalFilename(name, ext string, class mediatypes.Class) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" || base == "." {
		base = string(class)
	}
	return base + ext
}

// declaredDisagrees reports whether a declared content type names a
// different media class than the one chosen.
func declaredDisagrees(declared string, class mediatypes.Class) bool {
	major, _, ok := strings.Cut(strings.ToLower(strings.TrimSpace(declared)), "/")
	if !ok {
		return false
	}
	switch major {
	case "audio", "video", "image":
		return major != string(class)
	default:
		return false
	}
}
