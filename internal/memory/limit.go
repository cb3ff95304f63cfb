package memory

import (
	"math"
	"runtime/debug"
	"strconv"
	"strings"

	"media-relay/internal/logging"
)

// DefaultHeapRatio is the share of the container limit given to the Go heap.
// The remainder is left for the ffmpeg processes the relay spawns, which
// count against the same cgroup.
const DefaultHeapRatio = 0.6

// Limit sources.
const (
	SourceNone        = "none"
	SourceGOMEMLIMIT  = "GOMEMLIMIT"
	SourceMemoryLimit = "MEMORY_LIMIT"
)

// Limit describes the heap limit in effect.
type Limit struct {
	Source    string
	Container int64
	Heap      int64
	Ratio     float64
}

// Configured reports whether a heap limit is in effect.
func (l Limit) Configured() bool {
	return l.Heap > 0
}

// Configure sets the Go heap limit from the environment. An explicit
// GOMEMLIMIT wins; otherwise MEMORY_LIMIT (bytes, usually from the Kubernetes
// downward API) is scaled by MEMORY_RATIO. getenv is os.Getenv outside tests.
func Configure(getenv func(string) string) Limit {
	if raw := getenv("GOMEMLIMIT"); raw != "" {
		limit := Limit{Source: SourceGOMEMLIMIT}
		// The runtime has already parsed it; -1 reads without changing.
		if current := debug.SetMemoryLimit(-1); current > 0 && current < math.MaxInt64 {
			limit.Heap = current
		}
		logging.Info("Heap limit set via GOMEMLIMIT=%s", raw)
		return limit
	}

	raw := strings.TrimSpace(getenv("MEMORY_LIMIT"))
	if raw == "" {
		logging.Debug("MEMORY_LIMIT not set, heap limit left to the runtime")
		return Limit{Source: SourceNone}
	}

	container, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || container <= 0 {
		logging.Warn("Ignoring invalid MEMORY_LIMIT %q", raw)
		return Limit{Source: SourceNone}
	}

	ratio := parseRatio(getenv("MEMORY_RATIO"))
	heap := int64(float64(container) * ratio)
	debug.SetMemoryLimit(heap)

	logging.Info("Heap limit %s (%.0f%% of %s container limit)",
		FormatBytes(heap), ratio*100, FormatBytes(container))

	return Limit{
		Source:    SourceMemoryLimit,
		Container: container,
		Heap:      heap,
		Ratio:     ratio,
	}
}

func parseRatio(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultHeapRatio
	}
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil || ratio <= 0 || ratio > 1 {
		logging.Warn("MEMORY_RATIO %q must be in (0, 1], using %.2f", raw, DefaultHeapRatio)
		return DefaultHeapRatio
	}
	return ratio
}

// FormatBytes renders b with binary units, e.g. "1.5 MiB".
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
