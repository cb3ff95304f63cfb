package tempfiles

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"media-relay/internal/logging"
	"media-relay/internal/metrics"
)

// timestampLayout prefixes artifact names so a directory listing sorts by age.
const timestampLayout = "20060102T150405Z"

// Artifact is a file in the scratch directory owned by one pipeline run.
type Artifact struct {
	Path    string
	Created time.Time
}

// Name returns the artifact's base name.
func (a *Artifact) Name() string {
	return filepath.Base(a.Path)
}

// Manager creates, names and deletes scratch files. Every artifact it hands
// out is either released by its owner or registered for delayed release.
type Manager struct {
	dir string

	mu      sync.Mutex
	pending map[string]*time.Timer

	cron   *cron.Cron
	parser cron.Parser
}

// New creates a Manager rooted at dir. The directory is created lazily.
func New(dir string) *Manager {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Manager{
		dir:     dir,
		pending: make(map[string]*time.Timer),
		cron:    cron.New(cron.WithParser(parser)),
		parser:  parser,
	}
}

// Dir returns the scratch directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Materialize writes data to a new uniquely named artifact.
func (m *Manager) Materialize(data []byte, ext string) (*Artifact, error) {
	a, f, err := m.create(ext)
	if err != nil {
		return nil, err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		m.Release(a)
		return nil, fmt.Errorf("failed to write temp artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		m.Release(a)
		return nil, fmt.Errorf("failed to close temp artifact: %w", err)
	}

	return a, nil
}

// MaterializeReader streams r into a new uniquely named artifact.
func (m *Manager) MaterializeReader(r io.Reader, ext string) (*Artifact, error) {
	a, f, err := m.create(ext)
	if err != nil {
		return nil, err
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		m.Release(a)
		return nil, fmt.Errorf("failed to write temp artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		m.Release(a)
		return nil, fmt.Errorf("failed to close temp artifact: %w", err)
	}

	return a, nil
}

// Reserve returns a unique artifact path without creating the file. Used
// for ffmpeg output paths.
func (m *Manager) Reserve(ext string) (*Artifact, error) {
	if err := m.ensureDir(); err != nil {
		return nil, err
	}
	metrics.TempArtifactsCreated.Inc()
	return m.newArtifact(ext), nil
}

// Release deletes an artifact immediately. It is safe to call more than once
// and on artifacts whose file is already gone; failures are logged only.
func (m *Manager) Release(a *Artifact) {
	if a == nil || a.Path == "" {
		return
	}
	m.cancelPending(a.Path)
	m.remove(a.Path, "immediate")
}

// ReleaseAfter schedules deletion of an artifact after delay. The caller
// returns immediately; deletion runs on its own timer.
func (m *Manager) ReleaseAfter(a *Artifact, delay time.Duration) {
	if a == nil || a.Path == "" {
		return
	}
	if delay <= 0 {
		m.Release(a)
		return
	}

	path := a.Path

	m.mu.Lock()
	defer m.mu.Unlock()

	if timer, ok := m.pending[path]; ok {
		timer.Reset(delay)
		return
	}

	m.pending[path] = time.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.pending, path)
		metrics.TempPendingReleases.Set(float64(len(m.pending)))
		m.mu.Unlock()

		m.remove(path, "delayed")
	})
	metrics.TempPendingReleases.Set(float64(len(m.pending)))
	logging.Debug("Scheduled release of %s in %v", path, delay)
}

// Pending returns the number of artifacts waiting for delayed release.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Flush deletes every artifact still waiting for delayed release.
func (m *Manager) Flush() {
	m.mu.Lock()
	paths := make([]string, 0, len(m.pending))
	for path, timer := range m.pending {
		timer.Stop()
		paths = append(paths, path)
	}
	clear(m.pending)
	metrics.TempPendingReleases.Set(0)
	m.mu.Unlock()

	for _, path := range paths {
		m.remove(path, "flush")
	}
	if len(paths) > 0 {
		logging.Info("Flushed %d pending temp artifacts", len(paths))
	}
}

// Sweep deletes regular files in the scratch directory older than maxAge
// that are not scheduled for delayed release. It returns the number removed.
func (m *Manager) Sweep(maxAge time.Duration) int {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("Scratch sweep failed to read %s: %v", m.dir, err)
		}
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		if m.isPending(path) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if m.remove(path, "sweep") {
			removed++
		}
	}

	if removed > 0 {
		logging.Info("Scratch sweep removed %d orphaned files older than %v", removed, maxAge)
	}
	return removed
}

// StartSweeper runs Sweep(maxAge) on a cron schedule such as "@every 10m"
// or "*/15 * * * *".
func (m *Manager) StartSweeper(schedule string, maxAge time.Duration) error {
	if _, err := m.parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	if _, err := m.cron.AddFunc(schedule, func() { m.Sweep(maxAge) }); err != nil {
		return fmt.Errorf("failed to schedule sweeper: %w", err)
	}
	m.cron.Start()
	logging.Info("Scratch sweeper scheduled (%s, max age %v)", schedule, maxAge)
	return nil
}

// Stop halts the sweeper and waits for a running sweep to finish.
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()
}

// Clear removes everything in the scratch directory, including artifacts
// waiting for delayed release, and returns the number of bytes freed.
func (m *Manager) Clear() (int64, error) {
	m.mu.Lock()
	for _, timer := range m.pending {
		timer.Stop()
	}
	clear(m.pending)
	metrics.TempPendingReleases.Set(0)
	m.mu.Unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read scratch directory: %w", err)
	}

	var freedBytes int64
	for _, entry := range entries {
		path := filepath.Join(m.dir, entry.Name())

		if entry.IsDir() {
			dirSize, _ := dirSize(path)
			if err := os.RemoveAll(path); err != nil {
				logging.Warn("failed to remove directory %s: %v", path, err)
				continue
			}
			freedBytes += dirSize
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logging.Warn("failed to get info for %s: %v", path, err)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.Warn("failed to remove file %s: %v", path, err)
			continue
		}
		freedBytes += info.Size()
	}

	logging.Info("Cleared scratch directory: freed %d bytes", freedBytes)
	return freedBytes, nil
}

// CollectStats reports scratch usage for the metrics collector.
func (m *Manager) CollectStats() metrics.Stats {
	stats := metrics.Stats{PendingReleases: m.Pending()}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return stats
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stats.ScratchFiles++
		stats.ScratchBytes += info.Size()
	}
	return stats
}

func (m *Manager) ensureDir() error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create scratch directory %s: %w", m.dir, err)
	}
	return nil
}

func (m *Manager) create(ext string) (*Artifact, *os.File, error) {
	if err := m.ensureDir(); err != nil {
		return nil, nil, err
	}

	a := m.newArtifact(ext)
	f, err := os.OpenFile(a.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create temp artifact: %w", err)
	}

	metrics.TempArtifactsCreated.Inc()
	return a, f, nil
}

func (m *Manager) newArtifact(ext string) *Artifact {
	now := time.Now().UTC()
	name := now.Format(timestampLayout) + "-" + uuid.NewString() + normalizeExt(ext)
	return &Artifact{Path: filepath.Join(m.dir, name), Created: now}
}

func (m *Manager) cancelPending(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timer, ok := m.pending[path]; ok {
		timer.Stop()
		delete(m.pending, path)
		metrics.TempPendingReleases.Set(float64(len(m.pending)))
	}
}

func (m *Manager) isPending(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[path]
	return ok
}

// remove deletes path and reports whether a file was actually removed.
func (m *Manager) remove(path, mode string) bool {
	err := os.Remove(path)
	switch {
	case err == nil:
		metrics.TempArtifactsReleased.WithLabelValues(mode).Inc()
		return true
	case errors.Is(err, os.ErrNotExist):
		return false
	default:
		metrics.TempCleanupFailures.Inc()
		logging.Warn("failed to remove temp artifact %s: %v", path, err)
		return false
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
