package database

import (
	"context"
	"sync"

	"media-relay/internal/logging"
	"media-relay/internal/metrics"
)

// Recorder persists journal entries.
type Recorder interface {
	Record(ctx context.Context, rec *DispatchRecord) error
}

// AsyncJournal hands journal entries to a single writer goroutine so the
// dispatch path never waits on SQLite. Entries are dropped when the buffer
// is full.
type AsyncJournal struct {
	store   Recorder
	entries chan *DispatchRecord
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsyncJournal starts the writer goroutine.
func NewAsyncJournal(store Recorder, buffer int) *AsyncJournal {
	if buffer <= 0 {
		buffer = 256
	}
	j := &AsyncJournal{
		store:   store,
		entries: make(chan *DispatchRecord, buffer),
		done:    make(chan struct{}),
	}
	go j.run()
	return j
}

// Record queues an entry without blocking.
func (j *AsyncJournal) Record(rec *DispatchRecord) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		metrics.JournalDropped.Inc()
		return
	}

	select {
	case j.entries <- rec:
	default:
		metrics.JournalDropped.Inc()
		logging.Debug("Journal buffer full, dropped entry for %s", rec.Filename)
	}
}

// Close stops accepting entries and waits until the queue is drained.
func (j *AsyncJournal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		<-j.done
		return
	}
	j.closed = true
	close(j.entries)
	j.mu.Unlock()

	<-j.done
}

func (j *AsyncJournal) run() {
	defer close(j.done)
	for rec := range j.entries {
		if err := j.store.Record(context.Background(), rec); err != nil {
			logging.Warn("failed to record dispatch journal entry: %v", err)
		}
	}
}
