package handlers

import (
	"context"
	"sync/atomic"
	"time"

	"media-relay/internal/database"
	"media-relay/internal/dispatch"
	"media-relay/internal/normalizer"
	"media-relay/internal/startup"
)

// AudioService is implemented by *normalizer.Service.
type AudioService interface {
	Optimize(ctx context.Context, data []byte, ext string, opts normalizer.Options) (*normalizer.Result, error)
	ConvertForTransport(ctx context.Context, data []byte, ext string, opts normalizer.Options) (*normalizer.Result, error)
	CompressToSize(ctx context.Context, data []byte, ext string, targetKB int, opts normalizer.Options) (*normalizer.Result, error)
	Duration(ctx context.Context, data []byte, ext string) (float64, error)
}

// Dispatcher is implemented by *dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Payload, error)
	Send(ctx context.Context, recipient string, req dispatch.Request) (*dispatch.Payload, *dispatch.Receipt, error)
	HasTransport() bool
}

// JournalReader is implemented by *database.Database.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]database.DispatchRecord, error)
	Ping(ctx context.Context) error
}

// Scratch is implemented by *tempfiles.Manager.
type Scratch interface {
	Clear() (int64, error)
	Pending() int
}

// EngineStatus is implemented by *transcoder.Transcoder.
type EngineStatus interface {
	Workers() int
	ActiveJobs() int
}

// Deps groups the services the handlers call into.
type Deps struct {
	Audio      AudioService
	Dispatcher Dispatcher
	Journal    JournalReader
	Scratch    Scratch
	Engine     EngineStatus
}

// Handlers serves the relay HTTP API.
type Handlers struct {
	audio      AudioService
	dispatcher Dispatcher
	journal    JournalReader
	scratch    Scratch
	engine     EngineStatus

	maxUploadBytes int64
	startTime      time.Time
	ready          atomic.Bool
}

func New(deps Deps, config *startup.Config) *Handlers {
	return &Handlers{
		audio:          deps.Audio,
		dispatcher:     deps.Dispatcher,
		journal:        deps.Journal,
		scratch:        deps.Scratch,
		engine:         deps.Engine,
		maxUploadBytes: config.MaxUploadBytes,
		startTime:      time.Now(),
	}
}

// SetReady flips the readiness probe once startup has finished.
func (h *Handlers) SetReady(ready bool) {
	h.ready.Store(ready)
}
