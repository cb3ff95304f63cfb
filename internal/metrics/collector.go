package metrics

import (
	"runtime"
	"time"

	"media-relay/internal/logging"
)

// StatsProvider interface for collecting scratch directory stats
type StatsProvider interface {
	CollectStats() Stats
}

// Stats holds the current scratch directory statistics
type Stats struct {
	ScratchFiles    int
	ScratchBytes    int64
	PendingReleases int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	GoMemAllocBytes.Set(float64(mem.Alloc))
	GoGoroutines.Set(float64(runtime.NumGoroutine()))

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.CollectStats()

	ScratchFiles.Set(float64(stats.ScratchFiles))
	ScratchBytes.Set(float64(stats.ScratchBytes))
	TempPendingReleases.Set(float64(stats.PendingReleases))

	logging.Debug("Metrics collected: scratch files=%d, bytes=%d, pending releases=%d",
		stats.ScratchFiles, stats.ScratchBytes, stats.PendingReleases)
}
