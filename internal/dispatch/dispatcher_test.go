package dispatch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"media-relay/internal/database"
	"media-relay/internal/mediatypes"
	"media-relay/internal/metrics"
	"media-relay/internal/profile"
	"media-relay/internal/tempfiles"
	"media-relay/internal/transcoder"
)

type fakeEngine struct {
	mu     sync.Mutex
	jobs   []*transcoder.Job
	inputs [][]byte
	output []byte
	err    error
}

func (f *fakeEngine) Transcode(_ context.Context, job *transcoder.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	in, _ := os.ReadFile(job.InputPath)
	f.jobs = append(f.jobs, job)
	f.inputs = append(f.inputs, in)

	if f.err != nil {
		job.State = transcoder.JobFailed
		return f.err
	}
	job.State = transcoder.JobSucceeded
	return os.WriteFile(job.OutputPath, f.output, 0o644)
}

func (f *fakeEngine) lastJob(t *testing.T) *transcoder.Job {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		t.Fatal("engine was not called")
	}
	return f.jobs[len(f.jobs)-1]
}

type fakeTransport struct {
	recipient string
	payload   *Payload
	err       error
	// during runs inside Send, standing in for a slow upload.
	during func(p *Payload)
}

func (f *fakeTransport) Send(_ context.Context, recipient string, p *Payload) (*Receipt, error) {
	f.recipient = recipient
	f.payload = p
	if f.during != nil {
		f.during(p)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Receipt{MessageID: "42", ChatID: recipient, SentAt: time.Now()}, nil
}

type fakeJournal struct {
	mu      sync.Mutex
	records []*database.DispatchRecord
}

func (f *fakeJournal) Record(rec *database.DispatchRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
}

func (f *fakeJournal) last(t *testing.T) *database.DispatchRecord {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) == 0 {
		t.Fatal("nothing journaled")
	}
	return f.records[len(f.records)-1]
}

type fixture struct {
	dir       string
	temp      *tempfiles.Manager
	engine    *fakeEngine
	transport *fakeTransport
	journal   *fakeJournal
	d         *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scratch")
	f := &fixture{
		dir:       dir,
		temp:      tempfiles.New(dir),
		engine:    &fakeEngine{output: []byte("converted")},
		transport: &fakeTransport{},
		journal:   &fakeJournal{},
	}
	f.d = New(f.engine, f.temp, f.transport, f.journal, Config{VideoReleaseDelay: time.Hour})
	t.Cleanup(f.temp.Flush)
	return f
}

func (f *fixture) scratchFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDispatch_VideoConverted(t *testing.T) {
	f := newFixture(t)
	original := []byte("quicktime bytes")

	p, err := f.d.Dispatch(context.Background(), Request{
		Input:   Input{Data: original, Filename: "holiday.MOV", ContentType: "video/quicktime"},
		Caption: "look",
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if p.Kind != KindVideo || p.MIME != "video/mp4" || p.Filename != "holiday.mp4" {
		t.Errorf("payload = %s %s %s, want video video/mp4 holiday.mp4", p.Kind, p.MIME, p.Filename)
	}
	if !p.Converted || p.Fallback {
		t.Errorf("flags = converted %v fallback %v", p.Converted, p.Fallback)
	}
	if string(p.Data) != "converted" || p.Size != len("converted") || p.Caption != "look" {
		t.Errorf("payload data = %q size %d caption %q", p.Data, p.Size, p.Caption)
	}

	job := f.engine.lastJob(t)
	if job.Profile.Intent != profile.IntentVideo {
		t.Errorf("profile intent = %s, want video", job.Profile.Intent)
	}
	if !bytes.Equal(f.engine.inputs[0], original) {
		t.Error("engine did not see the original bytes")
	}

	// Only the converted artifact remains, scheduled for delayed release.
	if files := f.scratchFiles(t); len(files) != 1 || filepath.Join(f.dir, files[0]) != p.Path {
		t.Errorf("scratch = %v, want only %s", files, p.Path)
	}
	if f.temp.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", f.temp.Pending())
	}

	f.temp.Flush()
	if files := f.scratchFiles(t); len(files) != 0 {
		t.Errorf("scratch after Flush = %v", files)
	}
}

func TestDispatch_VideoFallbackSendsOriginal(t *testing.T) {
	f := newFixture(t)
	f.engine.err = transcoder.ErrTimeout
	original := []byte("mkv bytes")
	before := testutil.ToFloat64(metrics.DispatchFallbacks)

	p, err := f.d.Dispatch(context.Background(), Request{Input: Input{Data: original, Filename: "clip.mkv"}})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !bytes.Equal(p.Data, original) {
		t.Errorf("fallback data = %q, want original bytes", p.Data)
	}
	if p.MIME != "video/mp4" || p.Kind != KindVideo {
		t.Errorf("fallback = %s %s, want video video/mp4", p.Kind, p.MIME)
	}
	if !p.Fallback || p.Converted || p.Path != "" {
		t.Errorf("flags = converted %v fallback %v path %q", p.Converted, p.Fallback, p.Path)
	}
	if files := f.scratchFiles(t); len(files) != 0 {
		t.Errorf("scratch should be empty after fallback, got %v", files)
	}
	if got := testutil.ToFloat64(metrics.DispatchFallbacks) - before; got != 1 {
		t.Errorf("DispatchFallbacks delta = %v, want 1", got)
	}
	if rec := f.journal.last(t); !rec.Fallback || rec.Status != database.StatusPrepared {
		t.Errorf("journal = %+v", rec)
	}
}

func TestDispatch_VideoFallbackFromPath(t *testing.T) {
	f := newFixture(t)
	f.engine.err = transcoder.ErrTranscodeFailed

	src := filepath.Join(t.TempDir(), "upload.avi")
	if err := os.WriteFile(src, []byte("avi bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := f.d.Dispatch(context.Background(), Request{Input: Input{Path: src}})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if string(p.Data) != "avi bytes" || p.Filename != "upload.mp4" {
		t.Errorf("payload = %q %s", p.Data, p.Filename)
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("caller-owned input must not be deleted")
	}
	if f.engine.lastJob(t).InputPath != src {
		t.Error("caller path should be transcoded in place")
	}
}

func TestDispatch_VideoFallbackUnreadableOriginal(t *testing.T) {
	f := newFixture(t)
	f.engine.err = transcoder.ErrTranscodeFailed

	missing := filepath.Join(t.TempDir(), "gone.mp4")
	p, err := f.d.Dispatch(context.Background(), Request{Input: Input{Path: missing}})

	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("error = %v, want *SendError", err)
	}
	if sendErr.Stage != StageRead || sendErr.Kind != KindVideo {
		t.Errorf("SendError = %s/%s, want read/video", sendErr.Stage, sendErr.Kind)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should carry the read failure: %v", err)
	}
	if p != nil {
		t.Error("expected no payload")
	}
}

func TestDispatch_AudioVoiceNote(t *testing.T) {
	f := newFixture(t)

	p, err := f.d.Dispatch(context.Background(), Request{
		Input:    Input{Data: []byte("opus"), Filename: "voice.ogg", ContentType: "audio/ogg; codecs=opus"},
		IsRecord: true,
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if p.Kind != KindAudioPTT || p.MIME != "audio/mp4" || p.Filename != "voice.m4a" {
		t.Errorf("payload = %s %s %s", p.Kind, p.MIME, p.Filename)
	}
	job := f.engine.lastJob(t)
	if job.Profile.Intent != profile.IntentVoiceNote || job.Profile.AudioBitrateKbps != 128 {
		t.Errorf("profile = %s %dk", job.Profile.Intent, job.Profile.AudioBitrateKbps)
	}
	if filepath.Ext(job.InputPath) != ".ogg" {
		t.Errorf("input artifact %s should keep the source extension", job.InputPath)
	}
	if files := f.scratchFiles(t); len(files) != 0 {
		t.Errorf("scratch should be empty after audio dispatch, got %v", files)
	}
	if f.temp.Pending() != 0 {
		t.Errorf("audio artifacts should not be pending, got %d", f.temp.Pending())
	}
}

func TestDispatch_AudioClip(t *testing.T) {
	f := newFixture(t)

	p, err := f.d.Dispatch(context.Background(), Request{Input: Input{Data: []byte("mp3"), Filename: "song.mp3"}})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if p.Kind != KindAudioFile || p.Filename != "song.m4a" {
		t.Errorf("payload = %s %s", p.Kind, p.Filename)
	}
	job := f.engine.lastJob(t)
	if job.Profile.Intent != profile.IntentGenericClip || job.Profile.Channels != 2 || job.Profile.AudioBitrateKbps != 192 {
		t.Errorf("profile = %s %dch %dk", job.Profile.Intent, job.Profile.Channels, job.Profile.AudioBitrateKbps)
	}
}

func TestDispatch_MpegIsAudio(t *testing.T) {
	f := newFixture(t)

	p, err := f.d.Dispatch(context.Background(), Request{Input: Input{Data: []byte("mpeg"), Filename: "memo.mpeg", ContentType: "video/mpeg"}})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if p.Kind != KindAudioFile {
		t.Errorf("Kind = %s, want audio-file", p.Kind)
	}
}

func TestDispatch_AudioFailureHasNoFallback(t *testing.T) {
	f := newFixture(t)
	f.engine.err = transcoder.ErrArtifactMissing

	p, err := f.d.Dispatch(context.Background(), Request{Input: Input{Data: []byte("amr"), Filename: "call.amr"}, IsRecord: true})
	if p != nil {
		t.Error("expected no payload on audio failure")
	}
	if !errors.Is(err, transcoder.ErrTranscodeFailed) {
		t.Fatalf("error = %v, want ErrTranscodeFailed", err)
	}
	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.Stage != StageTranscode || sendErr.Kind != KindAudioPTT {
		t.Errorf("error = %#v, want transcode/audio-ptt SendError", err)
	}
	if files := f.scratchFiles(t); len(files) != 0 {
		t.Errorf("scratch should be empty after failure, got %v", files)
	}
	if rec := f.journal.last(t); rec.Status != database.StatusFailed || rec.Kind != string(KindAudioPTT) || rec.Error == "" {
		t.Errorf("journal = %+v", rec)
	}
}

func TestDispatch_EmptyOutputIsFailure(t *testing.T) {
	f := newFixture(t)
	f.engine.output = nil

	_, err := f.d.Dispatch(context.Background(), Request{Input: Input{Data: []byte("wav"), Filename: "a.wav"}})
	if !errors.Is(err, transcoder.ErrArtifactMissing) {
		t.Errorf("error = %v, want ErrArtifactMissing", err)
	}
	if files := f.scratchFiles(t); len(files) != 0 {
		t.Errorf("scratch should be empty, got %v", files)
	}
}

func TestDispatch_Passthrough(t *testing.T) {
	tests := []struct {
		name     string
		input    Input
		kind     Kind
		mime     string
		filename string
	}{
		{"jpeg", Input{Data: []byte("jpg"), Filename: "photo.jpeg"}, KindImage, "image/jpeg", "photo.jpeg"},
		{"image by declared type", Input{Data: []byte("png"), Filename: "scan", ContentType: "image/png"}, KindImage, "image/png", "scan.png"},
		{"pdf", Input{Data: []byte("%PDF-1.4"), Filename: "report.pdf"}, KindDocument, "application/pdf", "report.pdf"},
		{"unknown", Input{Data: []byte{0x00, 0x01, 0x02}, Filename: "blob.xyz"}, KindDocument, "application/octet-stream", "blob.xyz"},
		{"no name", Input{Data: []byte("%PDF-1.4 ...")}, KindDocument, "application/pdf", "document.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			p, err := f.d.Dispatch(context.Background(), Request{Input: tt.input})
			if err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if p.Kind != tt.kind || p.MIME != tt.mime || p.Filename != tt.filename {
				t.Errorf("payload = %s %s %s, want %s %s %s", p.Kind, p.MIME, p.Filename, tt.kind, tt.mime, tt.filename)
			}
			if p.Converted || p.Fallback {
				t.Error("passthrough should not be converted or fallback")
			}
			if len(f.engine.jobs) != 0 {
				t.Error("passthrough must not call the engine")
			}
		})
	}
}

func TestDispatch_EmptyInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Dispatch(context.Background(), Request{Input: Input{Filename: "x.ogg"}})
	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.Stage != StageRead || !errors.Is(err, ErrEmptyInput) {
		t.Errorf("error = %v, want read-stage ErrEmptyInput", err)
	}
}

func TestDispatch_ExtensionBeatsDeclaredType(t *testing.T) {
	f := newFixture(t)

	for _, declared := range []string{"audio/webm", "application/pdf", "audio/mpeg"} {
		p, err := f.d.Dispatch(context.Background(), Request{Input: Input{Data: []byte("webm"), Filename: "rec.webm", ContentType: declared}})
		if err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
		if p.Kind != KindVideo {
			t.Errorf("declared %s: Kind = %s, want video", declared, p.Kind)
		}
	}
}

func TestSend(t *testing.T) {
	f := newFixture(t)

	p, receipt, err := f.d.Send(context.Background(), "@channel", Request{
		Input:   Input{Data: []byte("jpg"), Filename: "cat.jpg"},
		Caption: "cat",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if receipt == nil || receipt.MessageID != "42" {
		t.Errorf("receipt = %+v", receipt)
	}
	if f.transport.recipient != "@channel" || f.transport.payload != p || p.Caption != "cat" {
		t.Errorf("transport got %s %+v", f.transport.recipient, f.transport.payload)
	}
	if rec := f.journal.last(t); rec.Status != database.StatusSent || rec.Recipient != "@channel" || rec.ResolvedClass != string(mediatypes.ClassImage) {
		t.Errorf("journal = %+v", rec)
	}
}

func TestSend_TransportError(t *testing.T) {
	f := newFixture(t)
	f.transport.err = errors.New("Bad Request: chat not found")

	_, _, err := f.d.Send(context.Background(), "1", Request{Input: Input{Data: []byte("x"), Filename: "a.txt"}})

	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.Stage != StageTransport || sendErr.Kind != KindDocument {
		t.Fatalf("error = %v, want transport-stage SendError", err)
	}
	if rec := f.journal.last(t); rec.Status != database.StatusFailed {
		t.Errorf("journal status = %s, want failed", rec.Status)
	}
}

func TestSend_VideoArtifactOutlivesSlowTransport(t *testing.T) {
	f := newFixture(t)
	f.d = New(f.engine, f.temp, f.transport, f.journal, Config{VideoReleaseDelay: 20 * time.Millisecond})

	var statErr error
	f.transport.during = func(p *Payload) {
		// Longer than the release delay, as a throttled upload would be.
		time.Sleep(100 * time.Millisecond)
		_, statErr = os.Stat(p.Path)
	}

	p, _, err := f.d.Send(context.Background(), "42", Request{
		Input: Input{Data: []byte("avi bytes"), Filename: "clip.avi"},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if statErr != nil {
		t.Fatalf("artifact removed while the transport was sending: %v", statErr)
	}
	if f.temp.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1 after delivery", f.temp.Pending())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(p.Path); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("artifact not released after delivery")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSend_VideoTransportErrorReleasesArtifact(t *testing.T) {
	f := newFixture(t)
	f.transport.err = errors.New("Bad Request: chat not found")

	_, _, err := f.d.Send(context.Background(), "42", Request{
		Input: Input{Data: []byte("avi bytes"), Filename: "clip.avi"},
	})
	if err == nil {
		t.Fatal("Send() error = nil, want transport failure")
	}
	if f.temp.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", f.temp.Pending())
	}
	if files := f.scratchFiles(t); len(files) != 0 {
		t.Errorf("scratch = %v, want empty", files)
	}
}

func TestSend_NoTransport(t *testing.T) {
	dir := t.TempDir()
	d := New(&fakeEngine{}, tempfiles.New(dir), nil, nil, Config{})

	if d.HasTransport() {
		t.Error("HasTransport() = true with nil transport")
	}
	_, _, err := d.Send(context.Background(), "1", Request{Input: Input{Data: []byte("x"), Filename: "a.txt"}})
	if !errors.Is(err, ErrNoTransport) {
		t.Errorf("error = %v, want ErrNoTransport", err)
	}
}

func TestConcurrentDispatchesDoNotCollide(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.d.Dispatch(context.Background(), Request{Input: Input{Data: []byte("ogg"), Filename: "v.ogg"}, IsRecord: true}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Dispatch() error = %v", err)
	}
	if files := f.scratchFiles(t); len(files) != 0 {
		t.Errorf("scratch should be empty, got %v", files)
	}
}

func TestCanonicalFilename(t *testing.T) {
	tests := []struct {
		name  string
		ext   string
		class mediatypes.Class
		want  string
	}{
		{"clip.mov", ".mp4", mediatypes.ClassVideo, "clip.mp4"},
		{"voice", ".m4a", mediatypes.ClassAudio, "voice.m4a"},
		{"", ".jpg", mediatypes.ClassImage, "image.jpg"},
		{".ogg", ".m4a", mediatypes.ClassAudio, "audio.m4a"},
		{"a.b.c.wav", ".m4a", mediatypes.ClassAudio, "a.b.c.m4a"},
	}

	for _, tt := range tests {
		if got := canonicalFilename(tt.name, tt.ext, tt.class); got != tt.want {
			t.Errorf("canonicalFilename(%q, %q) = %q, want %q", tt.name, tt.ext, got, tt.want)
		}
	}
}

func TestDeclaredDisagrees(t *testing.T) {
	tests := []struct {
		declared string
		class    mediatypes.Class
		want     bool
	}{
		{"audio/webm", mediatypes.ClassVideo, true},
		{"video/mp4", mediatypes.ClassVideo, false},
		{"image/png", mediatypes.ClassDocument, true},
		{"application/pdf", mediatypes.ClassVideo, false},
		{"", mediatypes.ClassAudio, false},
	}

	for _, tt := range tests {
		if got := declaredDisagrees(tt.declared, tt.class); got != tt.want {
			t.Errorf("declaredDisagrees(%q, %s) = %v, want %v", tt.declared, tt.class, got, tt.want)
		}
	}
}
