package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-relay/internal/filesystem"
	"media-relay/internal/logging"
	"media-relay/internal/metrics"
	"media-relay/internal/profile"
	"media-relay/internal/workers"
)

var (
	// ErrTranscodeFailed is returned when ffmpeg exits non-zero or produces
	// nothing usable.
	ErrTranscodeFailed = errors.New("transcode failed")
	// ErrArtifactMissing is returned when ffmpeg reports success but the
	// output file is absent or empty. It matches ErrTranscodeFailed.
	ErrArtifactMissing = fmt.Errorf("%w: output artifact missing", ErrTranscodeFailed)
	// ErrTimeout is returned when a job exceeds its deadline. It matches
	// ErrTranscodeFailed.
	ErrTimeout = fmt.Errorf("%w: timed out", ErrTranscodeFailed)
	// ErrProbeFailed is returned when ffprobe cannot report a duration.
	ErrProbeFailed = errors.New("duration probe failed")
)

// maxDiagnostic caps how much ffmpeg stderr is carried in an error.
const maxDiagnostic = 2048

// JobState is the outcome state of a Job.
type JobState string

// Job states.
const (
	JobPending   JobState = "pending"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Job binds one input, one output path and one profile for a single ffmpeg
// run. Jobs are never persisted.
type Job struct {
	ID         string
	InputPath  string
	OutputPath string
	Profile    *profile.ConversionProfile

	State    JobState
	Reason   string
	Duration time.Duration
}

// Config holds the executable paths and limits for the transcoder.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	// JobTimeout bounds a single ffmpeg or ffprobe run. Zero means no limit.
	JobTimeout time.Duration
	// Workers caps concurrent ffmpeg processes. Zero sizes it from the CPU count.
	Workers int
}

// DefaultConfig returns a configuration that finds ffmpeg on PATH.
func DefaultConfig() Config {
	return Config{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		JobTimeout:  5 * time.Minute,
	}
}

// Transcoder runs ffmpeg and ffprobe as external processes.
type Transcoder struct {
	config    Config
	slots     chan struct{}
	processes map[string]*exec.Cmd
	processMu sync.Mutex
	retry     filesystem.RetryConfig
}

// New creates a Transcoder. Empty paths fall back to the PATH lookups.
func New(config Config) *Transcoder {
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}
	if config.FFprobePath == "" {
		config.FFprobePath = "ffprobe"
	}
	if config.Workers <= 0 {
		config.Workers = workers.ForCPU(8)
	}

	return &Transcoder{
		config:    config,
		slots:     make(chan struct{}, config.Workers),
		processes: make(map[string]*exec.Cmd),
		retry:     filesystem.DefaultRetryConfig(),
	}
}

// Workers returns the number of concurrent ffmpeg processes allowed.
func (t *Transcoder) Workers() int {
	return cap(t.slots)
}

// Transcode runs ffmpeg for the job and blocks until the process exits.
// On any failure the partial output is removed. The job's State and Reason
// are updated either way.
func (t *Transcoder) Transcode(ctx context.Context, job *Job) error {
	if job.Profile == nil {
		return fmt.Errorf("%w: job has no profile", ErrTranscodeFailed)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.State = JobPending
	intent := string(job.Profile.Intent)

	if err := t.acquire(ctx); err != nil {
		return t.fail(job, intent, "error", fmt.Errorf("%w: %w", ErrTranscodeFailed, err))
	}
	defer t.release()

	metrics.TranscoderJobsInProgress.Inc()
	defer metrics.TranscoderJobsInProgress.Dec()

	runCtx, cancel := t.withTimeout(ctx)
	defer cancel()

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-y", "-i", job.InputPath}
	args = append(args, job.Profile.Args()...)
	args = append(args, job.OutputPath)

	cmd := exec.CommandContext(runCtx, t.config.FFmpegPath, args...)
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logging.Debug("Transcode %s (%s): %s -> %s", job.ID, intent, job.InputPath, job.OutputPath)

	start := time.Now()
	runErr := cmd.Start()
	if runErr == nil {
		t.track(job.ID, cmd)
		runErr = cmd.Wait()
		t.untrack(job.ID)
	}
	job.Duration = time.Since(start)

	metrics.TranscoderJobDuration.WithLabelValues(intent).Observe(job.Duration.Seconds())

	if runErr != nil {
		removePartial(job.OutputPath)

		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return t.fail(job, intent, "timeout", fmt.Errorf("%w after %v", ErrTimeout, job.Duration.Round(time.Millisecond)))
		}
		if ctx.Err() != nil {
			return t.fail(job, intent, "error", fmt.Errorf("%w: %w", ErrTranscodeFailed, ctx.Err()))
		}
		return t.fail(job, intent, "error", fmt.Errorf("%w: %v: %s", ErrTranscodeFailed, runErr, diagnostic(&stderr)))
	}

	info, err := filesystem.StatWithRetry(job.OutputPath, t.retry)
	if err != nil || info.Size() == 0 {
		removePartial(job.OutputPath)
		return t.fail(job, intent, "missing_output", ErrArtifactMissing)
	}

	job.State = JobSucceeded
	metrics.TranscoderJobsTotal.WithLabelValues(intent, "success").Inc()
	logging.Debug("Transcode %s finished in %v (%d bytes)", job.ID, job.Duration.Round(time.Millisecond), info.Size())
	return nil
}

// ProbeDuration returns the container duration of a media file in seconds.
func (t *Transcoder) ProbeDuration(ctx context.Context, path string) (float64, error) {
	runCtx, cancel := t.withTimeout(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.config.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		metrics.ProbeTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("%w: %v: %s", ErrProbeFailed, err, diagnostic(&stderr))
	}

	seconds, err := parseDuration(stdout.Bytes())
	if err != nil {
		metrics.ProbeTotal.WithLabelValues("error").Inc()
		return 0, err
	}

	metrics.ProbeTotal.WithLabelValues("success").Inc()
	return seconds, nil
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseDuration(output []byte) (float64, error) {
	var probe probeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0, fmt.Errorf("%w: unreadable ffprobe output: %v", ErrProbeFailed, err)
	}
	if probe.Format.Duration == "" || probe.Format.Duration == "N/A" {
		return 0, fmt.Errorf("%w: no duration reported", ErrProbeFailed)
	}

	seconds, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad duration %q", ErrProbeFailed, probe.Format.Duration)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("%w: non-positive duration %v", ErrProbeFailed, seconds)
	}
	return seconds, nil
}

// Version returns the first line of `ffmpeg -version`.
func (t *Transcoder) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, t.config.FFmpegPath, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg not available at %s: %w", t.config.FFmpegPath, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// Cleanup stops all active transcoding processes.
func (t *Transcoder) Cleanup() {
	t.processMu.Lock()
	defer t.processMu.Unlock()

	for id, cmd := range t.processes {
		if cmd.Process != nil {
			logging.Info("Killing transcoding process for job %s", id)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill transcoding process for job %s: %v", id, err)
			}
		}
	}
}

// ActiveJobs returns the number of ffmpeg processes currently running.
func (t *Transcoder) ActiveJobs() int {
	t.processMu.Lock()
	defer t.processMu.Unlock()
	return len(t.processes)
}

func (t *Transcoder) acquire(ctx context.Context) error {
	select {
	case t.slots <- struct{}{}:
		return nil
	default:
	}

	metrics.TranscoderJobsWaiting.Inc()
	defer metrics.TranscoderJobsWaiting.Dec()

	select {
	case t.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transcoder) release() {
	<-t.slots
}

func (t *Transcoder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.config.JobTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.config.JobTimeout)
}

func (t *Transcoder) track(id string, cmd *exec.Cmd) {
	t.processMu.Lock()
	t.processes[id] = cmd
	t.processMu.Unlock()
}

func (t *Transcoder) untrack(id string) {
	t.processMu.Lock()
	delete(t.processes, id)
	t.processMu.Unlock()
}

func (t *Transcoder) fail(job *Job, intent, status string, err error) error {
	job.State = JobFailed
	job.Reason = err.Error()
	metrics.TranscoderJobsTotal.WithLabelValues(intent, status).Inc()
	logging.Warn("Transcode %s (%s) failed: %v", job.ID, intent, err)
	return err
}

func removePartial(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Warn("failed to remove partial output %s: %v", path, err)
	}
}

func diagnostic(stderr *bytes.Buffer) string {
	msg := strings.TrimSpace(stderr.String())
	if len(msg) > maxDiagnostic {
		msg = msg[len(msg)-maxDiagnostic:]
	}
	return msg
}
